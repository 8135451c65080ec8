package cmd

import (
	"github.com/steveyegge/torctl/internal/client"
	"github.com/steveyegge/torctl/internal/config"
	"github.com/steveyegge/torctl/internal/lock"
	"github.com/steveyegge/torctl/internal/release"
	"github.com/steveyegge/torctl/internal/supervisor"
	"github.com/steveyegge/torctl/internal/updater"
)

func newSupervisor(cfg *config.Config) *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		Binary:           cfg.BinaryPath(),
		Host:             cfg.Control.Host,
		ControlPort:      cfg.Control.Port,
		SocksPort:        cfg.Control.SocksPort,
		Secret:           cfg.Control.Secret,
		ClientUseIPv6:    cfg.Daemon.ClientUseIPv6,
		HardwareAccel:    cfg.Daemon.HardwareAccel,
		DataDir:          cfg.Daemon.DataDir,
		Torrc:            cfg.Daemon.Torrc,
		ExtraArgs:        cfg.Daemon.ExtraArgs,
		TerminateTimeout: cfg.TerminateTimeout(),
		Logger:           settings.logger,
	})
}

func newResolver(cfg *config.Config) *release.Resolver {
	return release.New(
		release.WithBaseURL(cfg.DistURL),
		release.WithComponent(cfg.Component),
		release.WithLogger(settings.logger),
	)
}

func newUpdater(cfg *config.Config, sup *supervisor.Supervisor, res *release.Resolver) *updater.Updater {
	return updater.New(sup, res, updater.Options{
		InstallDir: cfg.InstallDir,
		Platform:   cfg.PlatformValue(),
		Logger:     settings.logger,
	})
}

func newManager(cfg *config.Config, sup *supervisor.Supervisor) *client.Manager {
	opts := client.DefaultOptions()
	opts.ReadTimeout = cfg.ReadTimeout()
	opts.ClientUseIPv6 = cfg.Daemon.ClientUseIPv6
	opts.HardwareAccel = cfg.Daemon.HardwareAccel
	opts.Logger = settings.logger
	return client.NewManager(sup, opts)
}

// withInstallLock runs fn while holding the installation lock.
func withInstallLock(cfg *config.Config, fn func() error) (err error) {
	l, err := lock.TryAcquire(cfg.InstallDir)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := l.Release(); relErr != nil {
			settings.logger.Warn("releasing install lock", "path", l.Path(), "error", relErr)
		}
	}()
	return fn()
}

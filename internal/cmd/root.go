// Package cmd provides the torctl command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/config"
	"github.com/steveyegge/torctl/internal/exitcode"
	"github.com/steveyegge/torctl/internal/logging"
	"github.com/steveyegge/torctl/internal/style"
	"github.com/steveyegge/torctl/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "torctl",
	Short:   "Install, update and run a local Tor daemon",
	Version: version.Version,
	Long: `torctl manages a local Tor daemon installation.

It downloads the newest build from the distribution site, keeps the
installation current, and starts the daemon with an authenticated control
port and a SOCKS proxy for local clients.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

var (
	configPath string
	logLevel   string
)

// Commands that work without a valid configuration.
var configExemptCommands = map[string]bool{
	"version":    true,
	"secret":     true,
	"help":       true,
	"completion": true,
}

// settings is the loaded configuration and logger of the running command.
var settings struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	if configExemptCommands[cmd.Name()] {
		settings.logger = logging.Discard()
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if !cfg.FileFound() {
		logger.Warn("config file not found, using defaults", "path", cfg.Path())
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	settings.cfg = cfg
	settings.logger = logger
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/torctl/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.SetVersionTemplate(version.String() + "\n")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitcode.Wrap(exitcode.ErrUsage, "invalid arguments", err)
	})
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", style.ErrorPrefix, err)
		return exitcode.Code(err)
	}
	return exitcode.Success
}

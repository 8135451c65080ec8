// Package config loads torctl settings from a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/steveyegge/torctl/internal/exitcode"
	"github.com/steveyegge/torctl/internal/release"
	"github.com/steveyegge/torctl/internal/supervisor"
)

// Environment variables that override file settings.
const (
	EnvInstallDir    = "TORCTL_INSTALL_DIR"
	EnvControlSecret = "TORCTL_CONTROL_SECRET"
	EnvLogLevel      = "TORCTL_LOG_LEVEL"
	EnvDistURL       = "TORCTL_DIST_URL"
)

// FileName is the config file name inside the torctl config directory.
const FileName = "config.toml"

// Config is the merged configuration.
type Config struct {
	InstallDir string `toml:"install_dir"`
	Platform   string `toml:"platform"`
	Component  string `toml:"component"`

	// Binary is the daemon executable relative to InstallDir, slash
	// separated. Empty means the executable the platform's archive ships.
	Binary  string `toml:"binary"`
	DistURL string `toml:"dist_url"`

	Control ControlConfig `toml:"control"`
	Daemon  DaemonConfig  `toml:"daemon"`
	Log     LogConfig     `toml:"log"`

	path  string
	found bool
}

// ControlConfig holds the control and SOCKS endpoint settings.
type ControlConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	SocksPort   int    `toml:"socks_port"`
	Secret      string `toml:"secret"`
	ReadTimeout string `toml:"read_timeout"`
}

// DaemonConfig holds flags passed to a spawned daemon.
type DaemonConfig struct {
	ClientUseIPv6    bool     `toml:"client_use_ipv6"`
	HardwareAccel    bool     `toml:"hardware_accel"`
	DataDir          string   `toml:"data_dir"`
	Torrc            string   `toml:"torrc"`
	ExtraArgs        []string `toml:"extra_args"`
	TerminateTimeout string   `toml:"terminate_timeout"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		InstallDir: defaultInstallDir(),
		Platform:   string(release.DefaultPlatform()),
		Component:  release.DefaultComponent,
		DistURL:    release.DefaultBaseURL,
		Control: ControlConfig{
			Host:        supervisor.DefaultHost,
			Port:        supervisor.DefaultControlPort,
			SocksPort:   supervisor.DefaultSocksPort,
			ReadTimeout: "2s",
		},
		Daemon: DaemonConfig{
			ClientUseIPv6:    true,
			HardwareAccel:    true,
			TerminateTimeout: supervisor.DefaultTerminateTimeout.String(),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/torctl/config.toml, falling back to the
// platform config directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			dir = "."
		}
	}
	return filepath.Join(dir, "torctl", FileName)
}

func defaultInstallDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "torctl", "tor")
	}
	if runtime.GOOS == "windows" {
		if dir, err := os.UserCacheDir(); err == nil {
			return filepath.Join(dir, "torctl", "tor")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "torctl", "tor")
	}
	return filepath.Join(os.TempDir(), "torctl", "tor")
}

// Load reads path (DefaultPath when empty) over the defaults and applies the
// environment overrides. A missing file is not an error; FileFound reports it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, exitcode.Usage("parsing config %s: %v", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, exitcode.Usage("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
		cfg.found = true
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, exitcode.Filesystem("reading config", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvInstallDir); v != "" {
		c.InstallDir = v
	}
	if v := os.Getenv(EnvControlSecret); v != "" {
		c.Control.Secret = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvDistURL); v != "" {
		c.DistURL = v
	}
}

// Path is the file the configuration was read from, or would have been.
func (c *Config) Path() string {
	return c.path
}

// FileFound reports whether the config file existed.
func (c *Config) FileFound() bool {
	return c.found
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.InstallDir == "" {
		add("install_dir is empty")
	}
	if _, err := release.ParsePlatform(c.Platform); err != nil {
		add("platform: %v", err)
	}
	if c.Component == "" {
		add("component is empty")
	}
	if c.Binary != "" && !filepath.IsLocal(filepath.FromSlash(c.Binary)) {
		add("binary %q must be a relative path inside install_dir", c.Binary)
	}
	if u, err := url.Parse(c.DistURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("dist_url %q is not an http(s) URL", c.DistURL)
	}

	if c.Control.Host == "" {
		add("control.host is empty")
	}
	if !validPort(c.Control.Port) {
		add("control.port %d out of range", c.Control.Port)
	}
	if !validPort(c.Control.SocksPort) {
		add("control.socks_port %d out of range", c.Control.SocksPort)
	}
	if c.Control.Port == c.Control.SocksPort {
		add("control.port and control.socks_port are both %d", c.Control.Port)
	}
	if _, err := positiveDuration(c.Control.ReadTimeout); err != nil {
		add("control.read_timeout: %v", err)
	}
	if _, err := positiveDuration(c.Daemon.TerminateTimeout); err != nil {
		add("daemon.terminate_timeout: %v", err)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q (want debug, info, warn or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format %q (want text or json)", c.Log.Format)
	}

	if len(problems) > 0 {
		return exitcode.Usage("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireSecret fails when no control secret is configured. Commands that
// talk to or spawn the daemon call it.
func (c *Config) RequireSecret() error {
	if c.Control.Secret == "" {
		return exitcode.Usage("no control secret configured: set control.secret in %s or %s (generate one with 'torctl secret')",
			c.path, EnvControlSecret)
	}
	return nil
}

// BinaryRel is the daemon executable relative to InstallDir.
func (c *Config) BinaryRel() string {
	if c.Binary != "" {
		return c.Binary
	}
	return c.PlatformValue().Executable()
}

// BinaryPath is the absolute daemon executable path.
func (c *Config) BinaryPath() string {
	return filepath.Join(c.InstallDir, filepath.FromSlash(c.BinaryRel()))
}

// Warnings lists settings that are valid but unlikely to work on this host.
func (c *Config) Warnings() []string {
	var warnings []string
	if goos := c.PlatformValue().GOOS(); goos != runtime.GOOS {
		warnings = append(warnings, fmt.Sprintf(
			"platform %s builds run on %s, not %s: installed daemons cannot be started here", c.Platform, goos, runtime.GOOS))
	}
	return warnings
}

// PlatformValue returns the parsed platform, defaulting when invalid.
func (c *Config) PlatformValue() release.Platform {
	p, err := release.ParsePlatform(c.Platform)
	if err != nil {
		return release.DefaultPlatform()
	}
	return p
}

// ReadTimeout returns control.read_timeout. Call Validate first; an invalid
// value yields zero.
func (c *Config) ReadTimeout() time.Duration {
	d, _ := positiveDuration(c.Control.ReadTimeout)
	return d
}

// TerminateTimeout returns daemon.terminate_timeout, zero when invalid.
func (c *Config) TerminateTimeout() time.Duration {
	d, _ := positiveDuration(c.Daemon.TerminateTimeout)
	return d
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

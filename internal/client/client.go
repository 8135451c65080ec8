// Package client ties the supervisor and the control connection together:
// it brings up a daemon, authenticates, applies the client configuration and
// exposes the daemon's SOCKS proxy.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/steveyegge/torctl/internal/control"
	"github.com/steveyegge/torctl/internal/exitcode"
	"github.com/steveyegge/torctl/internal/supervisor"
	"github.com/steveyegge/torctl/internal/util"
)

const (
	// StopTimeout bounds stopping a spawned daemon during Close or a failed
	// Initialize.
	StopTimeout = 10 * time.Second

	// HTTPTimeout is the overall timeout of clients returned by HTTPClient.
	HTTPTimeout = 60 * time.Second
)

// Launcher produces a daemon to talk to.
type Launcher interface {
	Launch(ctx context.Context, useExisting bool) (*supervisor.Handle, error)
}

// Options configures a Manager.
type Options struct {
	// ReadTimeout is the control connection's per-line read timeout.
	ReadTimeout time.Duration

	// DialRetry governs connecting while a fresh daemon opens its control
	// port. Zero means util.DaemonStartupRetryConfig.
	DialRetry util.RetryConfig

	ClientUseIPv6 bool
	HardwareAccel bool

	Logger *slog.Logger
}

// DefaultOptions enables IPv6 and hardware acceleration.
func DefaultOptions() Options {
	return Options{
		ReadTimeout:   control.DefaultReadTimeout,
		DialRetry:     util.DaemonStartupRetryConfig(),
		ClientUseIPv6: true,
		HardwareAccel: true,
	}
}

// Manager creates Clients.
type Manager struct {
	launcher Launcher
	opts     Options
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(l Launcher, opts Options) *Manager {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = control.DefaultReadTimeout
	}
	if opts.DialRetry.MaxAttempts == 0 {
		opts.DialRetry = util.DaemonStartupRetryConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{launcher: l, opts: opts, logger: logger}
}

// InitOptions controls Initialize.
type InitOptions struct {
	// KillExisting terminates a running daemon instead of attaching to it.
	KillExisting bool
}

// Initialize launches or attaches to the daemon, authenticates and applies
// the client configuration. On failure everything acquired is released.
func (m *Manager) Initialize(ctx context.Context, opts InitOptions) (_ *Client, err error) {
	h, err := m.launcher.Launch(ctx, !opts.KillExisting)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), StopTimeout)
			defer cancel()
			if stopErr := h.Stop(stopCtx); stopErr != nil {
				m.logger.Warn("stopping daemon after failed initialize", "error", stopErr)
			}
		}
	}()

	conn, err := util.Retry(ctx, m.opts.DialRetry, func() (*control.Conn, error) {
		return control.Dial(ctx, h.Host, h.ControlPort,
			control.WithReadTimeout(m.opts.ReadTimeout),
			control.WithLogger(m.logger))
	})
	if err != nil {
		return nil, exitcode.Network("connecting to control port "+h.ControlAddr(), err)
	}

	if !conn.Authenticate(ctx, h.Secret) {
		_ = conn.Close()
		return nil, exitcode.AuthFailed(h.ControlAddr())
	}

	c := &Client{conn: conn, handle: h, logger: m.logger}
	if err := c.SetConf(ctx,
		Setting{"ClientUseIPv6", boolValue(m.opts.ClientUseIPv6)},
		Setting{"HardwareAccel", boolValue(m.opts.HardwareAccel)},
		Setting{"SocksPort", strconv.Itoa(h.SocksPort)},
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("configuring daemon: %w", err)
	}

	m.logger.Info("daemon ready", "control", h.ControlAddr(), "socks", h.SocksAddr(), "spawned", h.Spawned)
	return c, nil
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Setting is one configuration key and value.
type Setting struct {
	Key   string
	Value string
}

func (s Setting) String() string {
	if s.Value == "" || strings.ContainsAny(s.Value, " \t\r\n\"\\") {
		return s.Key + "=" + control.Quote(s.Value)
	}
	return s.Key + "=" + s.Value
}

// Client is an authenticated session with a daemon. Calls are serialized;
// each one is a complete command and reply.
type Client struct {
	conn   *control.Conn
	handle *supervisor.Handle
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Handle describes the daemon this client talks to.
func (c *Client) Handle() *supervisor.Handle {
	return c.handle
}

// Command sends one command line and returns the daemon's reply. For data
// replies the trailing status line is consumed too, and a failing trailer
// replaces the reply's status. A transport failure is returned as an error;
// a rejection by the daemon is not.
func (c *Client) Command(ctx context.Context, line string) (control.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return control.Response{}, control.ErrClosed
	}

	resp, err := c.conn.Do(ctx, line)
	if err != nil {
		return resp, err
	}
	if resp.Data {
		trailer := c.conn.Read(ctx)
		if trailer.Code == control.StatusUnknown {
			return trailer, trailer.Err
		}
		if !trailer.Success() {
			resp.Code = trailer.Code
		}
	}
	return resp, nil
}

// SetConf applies settings with a single SETCONF.
func (c *Client) SetConf(ctx context.Context, settings ...Setting) error {
	if len(settings) == 0 {
		return nil
	}
	parts := make([]string, 0, len(settings)+1)
	parts = append(parts, "SETCONF")
	for _, s := range settings {
		if err := checkToken("setting key", s.Key); err != nil {
			return err
		}
		parts = append(parts, s.String())
	}

	resp, err := c.Command(ctx, strings.Join(parts, " "))
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("SETCONF rejected: %w", resp.AsError())
	}
	return nil
}

// GetInfo queries keys and returns their values. Multi-line values are
// joined with newlines.
func (c *Client) GetInfo(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	for _, k := range keys {
		if err := checkToken("info key", k); err != nil {
			return nil, err
		}
	}
	resp, err := c.Command(ctx, "GETINFO "+strings.Join(keys, " "))
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, fmt.Errorf("GETINFO rejected: %w", resp.AsError())
	}
	return parseInfo(resp), nil
}

// checkToken rejects empty keywords and ones that would split the command
// line.
func checkToken(what, tok string) error {
	if tok == "" || strings.ContainsAny(tok, " \t\r\n\"=") {
		return fmt.Errorf("%w: %s %q", control.ErrInvalidArgument, what, tok)
	}
	return nil
}

func parseInfo(resp control.Response) map[string]string {
	info := make(map[string]string)
	if resp.Data {
		key, value, _ := strings.Cut(resp.Lines[0], "=")
		rest := resp.Lines[1:]
		if value != "" {
			rest = append([]string{value}, rest...)
		}
		info[key] = strings.Join(rest, "\n")
		return info
	}
	for _, line := range resp.Lines {
		if key, value, ok := strings.Cut(line, "="); ok {
			info[key] = value
		}
	}
	return info
}

// Signal sends SIGNAL name, e.g. NEWNYM.
func (c *Client) Signal(ctx context.Context, name string) error {
	if err := checkToken("signal name", name); err != nil {
		return err
	}
	resp, err := c.Command(ctx, "SIGNAL "+name)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("SIGNAL %s rejected: %w", name, resp.AsError())
	}
	return nil
}

// Dialer returns a SOCKS5 dialer through the daemon.
func (c *Client) Dialer() (proxy.Dialer, error) {
	return proxy.SOCKS5("tcp", c.handle.SocksAddr(), nil, &net.Dialer{Timeout: 30 * time.Second})
}

// HTTPClient returns an HTTP client whose connections go through the
// daemon's SOCKS proxy.
func (c *Client) HTTPClient() (*http.Client, error) {
	d, err := c.Dialer()
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		Proxy:               nil,
		TLSHandshakeTimeout: 30 * time.Second,
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return d.Dial(network, addr)
		}
	}
	return &http.Client{Transport: transport, Timeout: HTTPTimeout}, nil
}

// Close ends the session and stops the daemon if this client spawned it.
// Attached daemons keep running.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	connErr := c.conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), StopTimeout)
	defer cancel()
	stopErr := c.handle.Stop(ctx)

	return errors.Join(connErr, stopErr)
}

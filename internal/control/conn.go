// Package control speaks the daemon's line-oriented control protocol over TCP.
//
// Commands are single lines terminated by CRLF and encoded as ISO-8859-1.
// Replies are status lines carrying a three-digit code, optionally followed by
// a "-" continuation block or a "+" data block terminated by ".".
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	// DefaultReadTimeout bounds each line read from the daemon.
	DefaultReadTimeout = 2000 * time.Millisecond

	// DefaultWriteTimeout bounds each command write.
	DefaultWriteTimeout = 2000 * time.Millisecond

	// DefaultDialTimeout bounds establishing the TCP connection.
	DefaultDialTimeout = 5 * time.Second

	eol = "\r\n"
)

// State is the lifecycle position of a Conn.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type options struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	dialTimeout  time.Duration
	logger       *slog.Logger
}

// Option configures a Conn.
type Option func(*options)

// WithReadTimeout sets the per-line read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// WithWriteTimeout sets the per-command write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithDialTimeout sets the connect timeout used by Dial.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		dialTimeout:  DefaultDialTimeout,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Conn is one control connection. Commands and replies are strictly
// alternating; a Conn is not meant for concurrent Write/Read pairs, but Close
// may be called from any goroutine to abort a blocked call.
type Conn struct {
	addr string
	opts options

	mu     sync.Mutex
	state  State
	sock   net.Conn
	reader *bufio.Reader

	cleanup runtime.Cleanup
}

// leaked is what the cleanup backstop needs to close a forgotten connection.
type leaked struct {
	addr   string
	sock   net.Conn
	logger *slog.Logger
}

// Dial connects to the control port at host:port.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Conn, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidArgument)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}

	o := buildOptions(opts)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: o.dialTimeout}
	sock, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial control port %s: %w", addr, err)
	}
	return NewConn(sock, opts...), nil
}

// NewConn wraps an already established stream.
func NewConn(sock net.Conn, opts ...Option) *Conn {
	o := buildOptions(opts)
	addr := ""
	if ra := sock.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	c := &Conn{
		addr:   addr,
		opts:   o,
		state:  StateConnected,
		sock:   sock,
		reader: bufio.NewReader(sock),
	}
	c.cleanup = runtime.AddCleanup(c, func(l leaked) {
		l.logger.Warn("control connection was not closed", "addr", l.addr)
		_ = closeSocket(l.sock)
	}, leaked{addr: addr, sock: sock, logger: o.logger})

	o.logger.Debug("control connection opened", "addr", addr)
	return c
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() string {
	return c.addr
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) active() (net.Conn, *bufio.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed || c.sock == nil {
		return nil, nil, ErrClosed
	}
	return c.sock, c.reader, nil
}

// Write sends one command line, appending CRLF when missing.
func (c *Conn) Write(ctx context.Context, line string) error {
	if line == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}
	if !strings.HasSuffix(line, eol) {
		line += eol
	}

	buf, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(line))
	if err != nil {
		return fmt.Errorf("%w: encode command: %v", ErrWrite, err)
	}

	sock, _, err := c.active()
	if err != nil {
		return err
	}

	guard, err := newDeadlineGuard(ctx, sock.SetWriteDeadline)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	defer guard.release()

	if err := guard.arm(c.opts.writeTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if _, err := sock.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, guard.cause(err))
	}

	c.opts.logger.Debug("control command sent", "addr", c.addr, "command", redact(line))
	return nil
}

// Writef formats a command line and sends it.
func (c *Conn) Writef(ctx context.Context, format string, args ...any) error {
	return c.Write(ctx, fmt.Sprintf(format, args...))
}

// Read reads one complete reply. It never returns an error directly: a
// reply that could not be read yields StatusUnknown with Err set.
func (c *Conn) Read(ctx context.Context) Response {
	sock, reader, err := c.active()
	if err != nil {
		return unknownResponse(err)
	}

	guard, err := newDeadlineGuard(ctx, sock.SetReadDeadline)
	if err != nil {
		return unknownResponse(err)
	}
	defer guard.release()

	next := func() (string, error) {
		if err := guard.arm(c.opts.readTimeout); err != nil {
			return "", err
		}
		raw, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && raw != "" {
				return decodeLine(raw), nil
			}
			return "", guard.cause(err)
		}
		return decodeLine(raw), nil
	}

	resp, err := parseResponse(next)
	if err != nil {
		c.opts.logger.Debug("control reply read failed", "addr", c.addr, "error", err)
		return unknownResponse(err)
	}
	return resp
}

// Do writes a command and reads its reply. A failed write or unreadable
// reply is returned as an error; a daemon-side rejection is not.
func (c *Conn) Do(ctx context.Context, line string) (Response, error) {
	if err := c.Write(ctx, line); err != nil {
		return unknownResponse(err), err
	}
	resp := c.Read(ctx)
	if resp.Code == StatusUnknown {
		return resp, resp.Err
	}
	return resp, nil
}

// Authenticate sends AUTHENTICATE with the quoted password and reports
// whether the daemon accepted it.
func (c *Conn) Authenticate(ctx context.Context, password string) bool {
	if err := c.Writef(ctx, "AUTHENTICATE %s", Quote(password)); err != nil {
		c.opts.logger.Debug("authenticate write failed", "addr", c.addr, "error", err)
		return false
	}
	resp := c.Read(ctx)
	if !resp.Success() {
		c.opts.logger.Warn("control authentication rejected",
			"addr", c.addr, "status", resp.Code.String(), "reply", resp.Text())
		return false
	}

	c.mu.Lock()
	if c.state == StateConnected {
		c.state = StateAuthenticated
	}
	c.mu.Unlock()
	return true
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	sock := c.sock
	c.sock = nil
	c.reader = nil
	c.state = StateClosed
	c.mu.Unlock()

	c.cleanup.Stop()
	c.opts.logger.Debug("control connection closed", "addr", c.addr)
	return closeSocket(sock)
}

func closeSocket(sock net.Conn) error {
	if sock == nil {
		return nil
	}
	if tcp, ok := sock.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	return sock.Close()
}

// Quote renders s as a control-protocol quoted string.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func decodeLine(raw string) string {
	raw = strings.TrimRight(raw, "\r\n")
	s, err := charmap.ISO8859_1.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return s
}

// redact hides credentials from debug logs.
func redact(line string) string {
	line = strings.TrimRight(line, "\r\n")
	upper := strings.ToUpper(line)
	if strings.HasPrefix(upper, "AUTHENTICATE") {
		return "AUTHENTICATE <redacted>"
	}
	if strings.Contains(upper, "HASHEDCONTROLPASSWORD") {
		return strings.SplitN(line, " ", 2)[0] + " <redacted>"
	}
	return line
}

// deadlineGuard ties a context to socket deadlines. When the context ends the
// deadline is pushed into the past, and later arm calls cannot undo that.
type deadlineGuard struct {
	ctx  context.Context
	set  func(time.Time) error
	mu   sync.Mutex
	done bool
	stop func() bool
}

func newDeadlineGuard(ctx context.Context, set func(time.Time) error) (*deadlineGuard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := &deadlineGuard{ctx: ctx, set: set}
	g.stop = context.AfterFunc(ctx, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.done = true
		_ = g.set(time.Unix(1, 0))
	})
	return g, nil
}

// arm sets the next deadline to now+timeout, capped by the context deadline.
func (g *deadlineGuard) arm(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return g.ctx.Err()
	}
	deadline := time.Now().Add(timeout)
	if d, ok := g.ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return g.set(deadline)
}

// cause prefers the context error when the context ended the I/O.
func (g *deadlineGuard) cause(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return errors.Join(g.ctx.Err(), err)
	}
	return err
}

func (g *deadlineGuard) release() {
	g.stop()
	_ = g.set(time.Time{})
}

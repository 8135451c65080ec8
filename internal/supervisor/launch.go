package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/torctl/internal/exitcode"
)

// Handle describes a daemon the caller can talk to.
type Handle struct {
	Host        string
	ControlPort int
	SocksPort   int
	Secret      string
	PID         int

	// Spawned is true when this Handle started the daemon. Attached handles
	// never stop the process they found.
	Spawned bool

	cmd         *exec.Cmd
	done        chan struct{}
	waitErr     error
	stopTimeout time.Duration
	logger      *slog.Logger
	stopOnce    sync.Once
	stopErr     error
}

// ControlAddr is the host:port of the control listener.
func (h *Handle) ControlAddr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.ControlPort))
}

// SocksAddr is the host:port of the SOCKS listener.
func (h *Handle) SocksAddr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.SocksPort))
}

// Done is closed when a spawned daemon exits. It is nil for attached
// handles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitErr returns the daemon's exit status once Done is closed.
func (h *Handle) ExitErr() error {
	if h.done == nil {
		return nil
	}
	select {
	case <-h.done:
		return h.waitErr
	default:
		return nil
	}
}

// Stop shuts down a spawned daemon: interrupt, wait, then kill. It is a
// no-op for attached handles and safe to call more than once.
func (h *Handle) Stop(ctx context.Context) error {
	if !h.Spawned || h.cmd == nil {
		return nil
	}
	h.stopOnce.Do(func() { h.stopErr = h.stop(ctx) })
	return h.stopErr
}

func (h *Handle) stop(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if err := interrupt(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Debug("interrupt failed, killing daemon", "pid", h.PID, "error", err)
		return h.kill()
	}

	timer := time.NewTimer(h.stopTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
		h.logger.Info("daemon stopped", "pid", h.PID)
		return nil
	case <-timer.C:
		h.logger.Warn("daemon did not exit in time, killing", "pid", h.PID, "timeout", h.stopTimeout)
		return h.kill()
	case <-ctx.Done():
		_ = h.kill()
		return ctx.Err()
	}
}

func (h *Handle) kill() error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing daemon pid %d: %w", h.PID, err)
	}
	<-h.done
	return nil
}

// Launch returns a Handle for a usable daemon. With useExisting, a running
// daemon for this binary is attached to and nothing is spawned. Otherwise
// any running instance is terminated and a fresh daemon is started.
//
// A daemon started by someone else between the running check and the spawn
// is not detected; the spawned daemon will then fail to bind its ports.
func (s *Supervisor) Launch(ctx context.Context, useExisting bool) (*Handle, error) {
	if s.cfg.Secret == "" {
		return nil, exitcode.Usage("a control secret is required to launch the daemon")
	}

	h := &Handle{
		Host:        s.cfg.Host,
		ControlPort: s.cfg.ControlPort,
		SocksPort:   s.cfg.SocksPort,
		Secret:      s.cfg.Secret,
		stopTimeout: s.cfg.TerminateTimeout,
		logger:      s.logger,
	}

	if useExisting {
		report, err := s.Scan(ctx)
		if err != nil {
			s.logger.Warn("process scan failed, starting a new daemon", "error", err)
		} else if m := report.Matches(); len(m) > 0 {
			h.PID = int(m[0].PID)
			s.logger.Info("attached to running daemon", "pid", h.PID)
			return h, nil
		}
	}

	if !s.Installed() {
		return nil, exitcode.NotInstalled(s.cfg.Binary)
	}

	s.Terminate(ctx)

	hashed, err := s.HashSecret(ctx, s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("hashing control secret: %w", err)
	}

	cmd := exec.Command(s.cfg.Binary, s.runArgs(hashed)...)
	cmd.Dir = filepath.Dir(s.cfg.Binary)
	cmd.SysProcAttr = daemonSysProcAttr()
	out := &lineLogger{logger: s.logger}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Binary, err)
	}

	h.Spawned = true
	h.PID = cmd.Process.Pid
	h.cmd = cmd
	h.done = make(chan struct{})
	go func() {
		h.waitErr = cmd.Wait()
		out.flush()
		s.logger.Debug("daemon exited", "pid", h.PID, "error", h.waitErr)
		close(h.done)
	}()

	s.logger.Info("started daemon", "pid", h.PID, "control", h.ControlAddr(), "socks", h.SocksAddr())
	return h, nil
}

// runArgs builds the daemon's command line.
func (s *Supervisor) runArgs(hashedSecret string) []string {
	var args []string
	if s.cfg.Torrc != "" {
		args = append(args, "-f", s.cfg.Torrc)
	}
	args = append(args,
		"--ControlPort", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.ControlPort)),
		"--SocksPort", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.SocksPort)),
		"--HashedControlPassword", hashedSecret,
		"--ClientUseIPv6", boolArg(s.cfg.ClientUseIPv6),
		"--HardwareAccel", boolArg(s.cfg.HardwareAccel),
	)
	if s.cfg.DataDir != "" {
		args = append(args, "--DataDirectory", s.cfg.DataDir)
	}
	return append(args, s.cfg.ExtraArgs...)
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// lineLogger forwards daemon output to the logger one line at a time.
type lineLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it for the next write.
			l.buf.Reset()
			l.buf.WriteString(line)
			return len(p), nil
		}
		l.emit(line)
	}
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line string) {
	if line = strings.TrimRight(line, "\r\n"); line != "" {
		l.logger.Debug("daemon", "line", line)
	}
}

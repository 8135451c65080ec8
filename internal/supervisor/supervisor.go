// Package supervisor finds, launches and stops the daemon process.
//
// A process counts as "ours" only when its executable path resolves to the
// configured binary; a matching name alone is never enough.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultHost is the loopback address the daemon listens on.
	DefaultHost = "127.0.0.1"

	// DefaultControlPort and DefaultSocksPort are the ports the daemon is
	// started with unless configured otherwise.
	DefaultControlPort = 9451
	DefaultSocksPort   = 9450

	// DefaultTerminateTimeout is how long a process gets to exit after a
	// termination request before it is killed.
	DefaultTerminateTimeout = 5 * time.Second

	// QueryTimeout bounds --version and --hash-password invocations.
	QueryTimeout = 30 * time.Second

	pollInterval = 100 * time.Millisecond
)

// Config describes the daemon installation and how to run it.
type Config struct {
	// Binary is the path of the daemon executable.
	Binary string

	Host        string
	ControlPort int
	SocksPort   int

	// Secret is the control-port password. It has no default.
	Secret string

	ClientUseIPv6 bool
	HardwareAccel bool
	DataDir       string
	Torrc         string
	ExtraArgs     []string

	TerminateTimeout time.Duration

	// Lister enumerates processes; nil means SystemProcesses.
	Lister ProcessLister
	Logger *slog.Logger
}

// Supervisor inspects and controls daemon processes for one installation.
type Supervisor struct {
	cfg    Config
	lister ProcessLister
	logger *slog.Logger
}

// New creates a Supervisor, filling unset fields with defaults.
func New(cfg Config) *Supervisor {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.ControlPort == 0 {
		cfg.ControlPort = DefaultControlPort
	}
	if cfg.SocksPort == 0 {
		cfg.SocksPort = DefaultSocksPort
	}
	if cfg.TerminateTimeout <= 0 {
		cfg.TerminateTimeout = DefaultTerminateTimeout
	}
	s := &Supervisor{cfg: cfg, lister: cfg.Lister, logger: cfg.Logger}
	if s.lister == nil {
		s.lister = SystemProcesses{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Binary returns the configured daemon executable path.
func (s *Supervisor) Binary() string {
	return s.cfg.Binary
}

// Outcome classifies one inspected process.
type Outcome int

const (
	NotMatched Outcome = iota
	Matched
	InspectionDenied
	InspectionFailed
)

func (o Outcome) String() string {
	switch o {
	case NotMatched:
		return "not-matched"
	case Matched:
		return "matched"
	case InspectionDenied:
		return "denied"
	case InspectionFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ProcessResult is the inspection result for one candidate process.
type ProcessResult struct {
	PID     int32
	Name    string
	Exe     string
	Outcome Outcome
	Err     error

	proc Process
}

// ScanReport lists every process whose name matched the binary.
type ScanReport struct {
	Results []ProcessResult
}

// Matches returns the processes confirmed to run the configured binary.
func (r ScanReport) Matches() []ProcessResult {
	var out []ProcessResult
	for _, res := range r.Results {
		if res.Outcome == Matched {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many results have the given outcome.
func (r ScanReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Scan enumerates processes and classifies those named like the binary.
// Per-process failures are recorded in the report; only a failure to
// enumerate processes at all is returned as an error.
func (s *Supervisor) Scan(ctx context.Context) (ScanReport, error) {
	procs, err := s.lister.Processes(ctx)
	if err != nil {
		return ScanReport{}, fmt.Errorf("enumerating processes: %w", err)
	}

	target := canonicalPath(s.cfg.Binary)
	want := imageName(s.cfg.Binary)

	var report ScanReport
	for _, p := range procs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		name, err := p.Name(ctx)
		if err != nil || !nameMatches(name, want) {
			continue
		}

		res := ProcessResult{PID: p.Pid(), Name: name, proc: p}
		exe, err := p.Exe(ctx)
		switch {
		case err != nil && isPermission(err):
			res.Outcome = InspectionDenied
			res.Err = err
		case err != nil:
			res.Outcome = InspectionFailed
			res.Err = err
		default:
			res.Exe = exe
			if samePath(canonicalPath(exe), target) {
				res.Outcome = Matched
			}
		}

		s.logger.Debug("inspected process",
			"pid", res.PID, "name", res.Name, "exe", res.Exe, "outcome", res.Outcome.String())
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// IsRunning reports whether a process running the configured binary exists.
// Enumeration failures are logged and reported as not running.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	report, err := s.Scan(ctx)
	if err != nil {
		s.logger.Warn("process scan failed", "error", err)
		return false
	}
	return len(report.Matches()) > 0
}

// TerminateResult records how one matched process was stopped.
type TerminateResult struct {
	PID    int32
	Killed bool
	Err    error
}

// TerminateReport aggregates Terminate's per-process results.
type TerminateReport struct {
	Scan    ScanReport
	Results []TerminateResult
	Err     error
}

// Failed returns how many processes could not be stopped.
func (r TerminateReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Terminate stops every process running the configured binary, escalating
// to a kill after TerminateTimeout. Failures are recorded, never returned.
func (s *Supervisor) Terminate(ctx context.Context) TerminateReport {
	scan, err := s.Scan(ctx)
	report := TerminateReport{Scan: scan}
	if err != nil {
		s.logger.Warn("process scan failed before terminate", "error", err)
		report.Err = err
		return report
	}

	for _, m := range scan.Matches() {
		res := s.terminateOne(ctx, m.proc)
		if res.Err != nil {
			s.logger.Warn("could not stop daemon process", "pid", res.PID, "error", res.Err)
		} else {
			s.logger.Info("stopped daemon process", "pid", res.PID, "killed", res.Killed)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

// terminateOne requests termination, polls for exit, and kills on timeout.
func (s *Supervisor) terminateOne(ctx context.Context, p Process) TerminateResult {
	res := TerminateResult{PID: p.Pid()}

	if err := p.Terminate(ctx); err != nil {
		if !s.alive(ctx, p) {
			return res
		}
		s.logger.Debug("terminate request failed, killing", "pid", res.PID, "error", err)
		return s.kill(ctx, p, res)
	}

	exited, err := s.waitExit(ctx, p)
	if err != nil {
		res.Err = err
		return res
	}
	if exited {
		return res
	}

	s.logger.Warn("daemon process did not exit in time, killing",
		"pid", res.PID, "timeout", s.cfg.TerminateTimeout)
	return s.kill(ctx, p, res)
}

// kill force-kills p and waits up to TerminateTimeout for it to disappear.
func (s *Supervisor) kill(ctx context.Context, p Process, res TerminateResult) TerminateResult {
	res.Killed = true
	if err := p.Kill(ctx); err != nil && s.alive(ctx, p) {
		res.Err = fmt.Errorf("killing pid %d: %w", res.PID, err)
		return res
	}

	exited, err := s.waitExit(ctx, p)
	switch {
	case err != nil:
		res.Err = err
	case !exited:
		res.Err = fmt.Errorf("pid %d still running %s after kill", res.PID, s.cfg.TerminateTimeout)
	}
	return res
}

// waitExit polls until p is gone or TerminateTimeout passes. A cancelled
// ctx is returned as the error.
func (s *Supervisor) waitExit(ctx context.Context, p Process) (bool, error) {
	deadline := time.Now().Add(s.cfg.TerminateTimeout)
	for {
		if !s.alive(ctx, p) {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// alive treats an unanswerable liveness check as "gone".
func (s *Supervisor) alive(ctx context.Context, p Process) bool {
	running, err := p.IsRunning(ctx)
	return err == nil && running
}

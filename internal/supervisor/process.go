package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Process is the view of an OS process the supervisor needs.
type Process interface {
	Pid() int32
	Name(ctx context.Context) (string, error)
	Exe(ctx context.Context) (string, error)
	Terminate(ctx context.Context) error
	Kill(ctx context.Context) error
	IsRunning(ctx context.Context) (bool, error)
}

// ProcessLister enumerates OS processes.
type ProcessLister interface {
	Processes(ctx context.Context) ([]Process, error)
}

// SystemProcesses lists real OS processes through gopsutil.
type SystemProcesses struct{}

// Processes implements ProcessLister.
func (SystemProcesses) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, systemProcess{p: p})
	}
	return out, nil
}

type systemProcess struct {
	p *process.Process
}

func (s systemProcess) Pid() int32 { return s.p.Pid }

func (s systemProcess) Name(ctx context.Context) (string, error) {
	return s.p.NameWithContext(ctx)
}

func (s systemProcess) Exe(ctx context.Context) (string, error) {
	return s.p.ExeWithContext(ctx)
}

func (s systemProcess) Terminate(ctx context.Context) error {
	return s.p.TerminateWithContext(ctx)
}

func (s systemProcess) Kill(ctx context.Context) error {
	return s.p.KillWithContext(ctx)
}

func (s systemProcess) IsRunning(ctx context.Context) (bool, error) {
	running, err := s.p.IsRunningWithContext(ctx)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return false, nil
	}
	return running, err
}

// linuxCommLen is the kernel's limit on process names in /proc/<pid>/status.
const linuxCommLen = 15

// imageName normalizes a process or binary name for comparison.
func imageName(name string) string {
	name = strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(name, ".exe")
}

// nameMatches reports whether a process name could belong to the binary.
func nameMatches(procName, want string) bool {
	got := imageName(procName)
	if got == want {
		return true
	}
	return runtime.GOOS == "linux" && len(got) == linuxCommLen && strings.HasPrefix(want, got)
}

// canonicalPath resolves symlinks where possible and cleans the result.
func canonicalPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return filepath.Clean(p)
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// isPermission reports whether err means the caller may not inspect a process.
func isPermission(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access is denied") || strings.Contains(msg, "permission denied")
}

//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

// daemonSysProcAttr detaches the daemon from our process group so terminal
// signals aimed at us do not reach it.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func querySysProcAttr() *syscall.SysProcAttr {
	return nil
}

// interrupt asks a spawned daemon to shut down cleanly.
func interrupt(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

//go:build windows

package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// daemonSysProcAttr runs the daemon without a console window.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

func querySysProcAttr() *syscall.SysProcAttr {
	return daemonSysProcAttr()
}

// interrupt stops a spawned daemon. Windows has no SIGTERM, so this kills.
func interrupt(p *os.Process) error {
	return p.Kill()
}

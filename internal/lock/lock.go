// Package lock serializes torctl invocations that modify an installation.
package lock

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/steveyegge/torctl/internal/exitcode"
)

// Lock is an exclusive advisory lock on an installation directory.
type Lock struct {
	fl *flock.Flock
}

// PathFor returns the lock file guarding dir: a sibling named "<dir>.lock",
// so removing the installation never removes its lock.
func PathFor(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// TryAcquire takes the lock for dir without blocking. If another process
// holds it the error carries exitcode.ErrBusy.
func TryAcquire(dir string) (*Lock, error) {
	path := PathFor(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, exitcode.Filesystem("creating lock directory", filepath.Dir(path), err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, exitcode.Filesystem("acquiring lock", path, err)
	}
	if !locked {
		return nil, exitcode.Busy("installation " + dir)
	}
	return &Lock{fl: fl}, nil
}

// Path is the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks. The lock file stays in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

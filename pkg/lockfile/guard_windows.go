//go:build windows

package lockfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// ErrGuardHeld reports that another process already holds the guard.
var ErrGuardHeld = errors.New("guard already held by another process")

// Flock is a kernel-level single-instance guard for long-running processes
// (one watcher per workspace), backed by LockFileEx on Windows.
type Flock struct {
	f *os.File
}

// AcquireFlock takes an exclusive non-blocking lock on path, creating the
// file if needed. It fails fast with ErrGuardHeld when another process has
// it; guards are not waited on.
func AcquireFlock(path string) (*Flock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open guard %s: %w", path, err)
	}
	ol := new(windows.Overlapped)
	err = windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if err != nil {
		f.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, fmt.Errorf("guard %s: %w", path, ErrGuardHeld)
		}
		return nil, fmt.Errorf("lock guard %s: %w", path, err)
	}
	return &Flock{f: f}, nil
}

// Release drops the guard. The file stays behind; removing it could hand a
// second instance a different handle to lock.
func (g *Flock) Release() error {
	ol := new(windows.Overlapped)
	if err := windows.UnlockFileEx(windows.Handle(g.f.Fd()), 0, 1, 0, ol); err != nil {
		g.f.Close()
		return fmt.Errorf("unlock guard: %w", err)
	}
	return g.f.Close()
}

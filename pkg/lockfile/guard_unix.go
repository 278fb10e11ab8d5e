//go:build unix

package lockfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrGuardHeld reports that another process already holds the guard.
var ErrGuardHeld = errors.New("guard already held by another process")

// Flock is a kernel-level single-instance guard for long-running processes
// (one watcher per workspace). Unlike FileLock it is tied to the open file
// description: the kernel drops it when the holder dies, so it needs no
// staleness heuristics, but it does not travel across network filesystems
// the way the exclusive-create lock does.
type Flock struct {
	f *os.File
}

// AcquireFlock takes an exclusive non-blocking flock on path, creating the
// file if needed. It fails fast with ErrGuardHeld when another process has
// it; guards are not waited on.
func AcquireFlock(path string) (*Flock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open guard %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("guard %s: %w", path, ErrGuardHeld)
		}
		return nil, fmt.Errorf("flock guard %s: %w", path, err)
	}
	return &Flock{f: f}, nil
}

// Release drops the guard. The file stays behind; removing it could hand a
// second instance a different inode to lock.
func (g *Flock) Release() error {
	if err := unix.Flock(int(g.f.Fd()), unix.LOCK_UN); err != nil {
		g.f.Close()
		return fmt.Errorf("unlock guard: %w", err)
	}
	return g.f.Close()
}

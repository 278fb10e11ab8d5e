//go:build unix

package lockfile

import (
	"errors"
	"syscall"
)

// processAlive reports whether pid is running, via a signal-0 probe. Pid 0
// would signal our own process group, so non-positive pids are never alive.
// EPERM means the process exists but belongs to another user; that still
// counts as alive, reclaiming its lock would be wrong.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

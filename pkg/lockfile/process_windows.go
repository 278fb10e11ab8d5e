//go:build windows

package lockfile

import "golang.org/x/sys/windows"

// processAlive reports whether pid is running. Windows has no signal-0, so
// the probe is an open with the narrowest query right.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(h)
	return true
}

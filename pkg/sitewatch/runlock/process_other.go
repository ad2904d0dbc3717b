//go:build !unix

package runlock

import "os"

// IsProcessRunning checks if a process with the given PID exists. Where
// signals are unavailable it relies on os.FindProcess, which fails for a
// PID with no live process on Windows.
func IsProcessRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

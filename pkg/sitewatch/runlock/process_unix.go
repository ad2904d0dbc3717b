//go:build unix

package runlock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessRunning checks if a process with the given PID exists. A process
// owned by another user still counts as running.
func IsProcessRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

//go:build unix

package logging

import (
	"os"
	"syscall"
)

// lockFile takes an exclusive advisory lock so processes sharing a log file
// do not interleave lines.
func lockFile(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if err := syscall.Flock(fd, syscall.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { _ = syscall.Flock(fd, syscall.LOCK_UN) }, nil
}

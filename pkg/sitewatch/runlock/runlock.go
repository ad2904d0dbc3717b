// Package runlock keeps two sitewatch processes from mirroring into the same
// work directory at once. The lock is a PID file; a file left behind by a
// process that no longer exists is recovered on the next Acquire.
package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
)

// FileName is the PID file created in the locked directory.
const FileName = "sitewatch.pid"

// ErrAlreadyRunning is returned when a live process holds the lock.
var ErrAlreadyRunning = errors.New("another sitewatch run is active")

// Lock is a held run lock.
type Lock struct {
	path string
}

// Acquire takes the lock on dir, creating dir if needed.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	path := filepath.Join(dir, FileName)

	if err := recoverStale(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		// Lost a race with another process starting at the same moment.
		return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, path)
	}
	if err != nil {
		return nil, fmt.Errorf("creating lock file: %w", err)
	}

	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if err := errors.Join(werr, f.Close()); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return &Lock{path: path}, nil
}

// Path returns the PID file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the PID file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// recoverStale removes a PID file whose process is gone or whose content is
// unreadable.
func recoverStale(path string) error {
	pid, err := ReadPID(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	log := logging.Get("runlock")
	if err == nil {
		if IsProcessRunning(pid) {
			return fmt.Errorf("%w (pid %d, lock %s)", ErrAlreadyRunning, pid, path)
		}
		log.Warn("removing stale lock", "stale_pid", pid, "path", path)
	} else {
		log.Warn("removing unreadable lock", "path", path, "error", err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale lock: %w", err)
	}
	return nil
}

// ReadPID reads the process ID stored in a PID file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("parsing pid file %s: invalid pid %d", path, pid)
	}
	return pid, nil
}

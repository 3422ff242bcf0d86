// Package lock implements the two-level mutual exclusion from spec §4.4: a
// per-repository process-level advisory file lock acquired non-blocking for
// the duration of a mutating request, and a timed session-scoped user lock
// that survives between requests. The process lock follows the lockFile
// helper from the tessera POSIX storage driver (other_examples), but takes
// a BSD flock(2) lock via unix.Flock rather than an fcntl record lock.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryLock when another process already holds
// the exclusive process lock.
var ErrWouldBlock = errors.New("lock: held by another process")

// ProcessLock is the per-repository advisory file lock.
type ProcessLock struct {
	path string
}

// NewProcessLock returns a ProcessLock for the file at path (conventionally
// <repo_root>/lock_file).
func NewProcessLock(path string) *ProcessLock {
	return &ProcessLock{path: path}
}

// TryLock acquires the lock in exclusive, non-blocking mode. The returned
// unlock func releases it on any exit path (success, error, crash via
// process death closes the fd and drops the flock automatically).
func (l *ProcessLock) TryLock() (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	return func() error {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return f.Close()
	}, nil
}

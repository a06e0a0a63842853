//go:build !windows

package tasting

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// Locker provides mutual exclusion for cache entry operations.
type Locker interface {
	// Lock acquires an exclusive lock on the file.
	// Blocks until the lock is acquired or the timeout expires.
	// A timeout of zero or less waits indefinitely.
	Lock() error

	// Unlock releases the lock.
	// Safe to call multiple times.
	Unlock() error
}

// fileLock implements Locker using flock() advisory locking on Unix
// systems. The kernel releases the lock if the holding process dies, so a
// crashed holder cannot permanently starve other callers.
type fileLock struct {
	// file is the lock file handle.
	file *os.File

	// timeout is the maximum duration to wait for lock acquisition.
	// Zero or negative means wait forever.
	timeout time.Duration

	// locked tracks whether the lock is currently held.
	locked bool
}

// newFileLock creates a new file lock for the given path.
// Creates the lock file if it doesn't exist. The lock file is a marker
// only and never contains payload data.
func newFileLock(path string, timeout time.Duration) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	return &fileLock{
		file:    file,
		timeout: timeout,
	}, nil
}

// Lock acquires an exclusive advisory lock using flock().
// Uses polling with backoff to implement timeout behavior.
func (l *fileLock) Lock() error {
	if l.locked {
		return nil // Already locked
	}

	var deadline time.Time
	if l.timeout > 0 {
		deadline = time.Now().Add(l.timeout)
	}
	sleepDuration := 10 * time.Millisecond

	for {
		// Try non-blocking lock
		err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			l.locked = true
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("lock timeout after %v", l.timeout)
		}

		// Wait before retrying (with backoff)
		time.Sleep(sleepDuration)
		if sleepDuration < 100*time.Millisecond {
			sleepDuration *= 2
		}
	}
}

// Unlock releases the advisory lock and closes the file handle.
func (l *fileLock) Unlock() error {
	if !l.locked {
		// Close the file even if not locked
		if l.file != nil {
			l.file.Close()
			l.file = nil
		}
		return nil
	}

	var unlockErr error
	if l.file != nil {
		unlockErr = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		l.file.Close()
		l.file = nil
	}
	l.locked = false

	return unlockErr
}

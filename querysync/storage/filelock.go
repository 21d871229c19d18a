package storage

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is an exclusive, cross-process lock
type FileLock interface {
	// TryLockContext attempts to acquire the lock, retrying every
	// retryInterval until ctx is done
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// Unlock releases the lock
	Unlock() error
}

// FileLockFactory creates FileLock instances
type FileLockFactory interface {
	New(path string) FileLock
}

// flockFactory creates locks backed by github.com/gofrs/flock
type flockFactory struct{}

func (flockFactory) New(path string) FileLock {
	return flock.New(path)
}

// FlockFactory returns the default FileLockFactory
func FlockFactory() FileLockFactory {
	return flockFactory{}
}

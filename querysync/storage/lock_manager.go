package storage

import "sync"

// OperationType says whether an operation only reads guarded state or
// modifies it
type OperationType int

const (
	// ReadOperation may run concurrently with other reads
	ReadOperation OperationType = iota

	// WriteOperation excludes every other read and write
	WriteOperation
)

// LockManager centralizes the in-process locking of a store so that every
// operation takes the right kind of lock exactly once. A store's mutations,
// its change notifications and its persistence all run under one write
// lock, which makes each operation atomic with respect to the others.
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager creates a ready to use lock manager
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn under a read or write lock, released when fn returns
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// Locked runs fn under lm and returns its result. It is the typed
// counterpart of Execute for operations that produce a value.
//
//	state := storage.Locked(lm, storage.ReadOperation, func() types.Params {
//	    return params.Clone(s.states[path])
//	})
func Locked[T any](lm *LockManager, opType OperationType, fn func() T) T {
	var out T
	_ = lm.Execute(opType, func() error {
		out = fn()
		return nil
	})
	return out
}

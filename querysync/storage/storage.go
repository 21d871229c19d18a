// Package storage provides the persistence layer for query state stores.
// A backend holds any number of snapshots, each under its own key, so that
// many stores (one per browser session, plus the CLI's) can share a single
// cache file.
package storage

import (
	"context"
	"errors"

	"github.com/arthur-debert/querysync/types"
)

// ErrNotFound is returned by Load when nothing was ever saved under a key
var ErrNotFound = errors.New("snapshot not found")

// ErrLocked is returned when the cross-process file lock could not be
// acquired in time
var ErrLocked = errors.New("could not acquire file lock")

// Snapshot is the persisted form of a store: the minimal query state of
// every path and whether the store had already merged with storage.
type Snapshot struct {
	QueryStates       map[string]types.Params `json:"queryStates"`
	MergedWithStorage bool                    `json:"mergedWithStorage"`
}

// Storage defines keyed snapshot persistence. Each Save replaces the whole
// snapshot for its key and leaves other keys untouched.
type Storage interface {
	// Load reads the snapshot stored under key, or ErrNotFound
	Load(ctx context.Context, key string) (*Snapshot, error)

	// Save writes snap under key
	Save(ctx context.Context, key string, snap *Snapshot) error

	// Delete removes the snapshot stored under key, if any
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the storage
	Close() error
}

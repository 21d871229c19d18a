package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/tailscale/hujson"

	"github.com/arthur-debert/querysync/types"
)

const (
	defaultLockTimeout   = 3 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
)

// JSONStorage keeps every snapshot in one JSON object keyed by store key:
//
//	{
//	  "query-store": {"queryStates": {"/products": {...}}, "mergedWithStorage": true},
//	  "query-store:6f1c...": {...}
//	}
//
// Reads accept JSON with comments and trailing commas. Writes hold a
// cross-process lock on "<file>.lock" and replace the file atomically.
type JSONStorage struct {
	filePath    string
	fs          FileSystem
	lockFactory FileLockFactory
	lockTimeout time.Duration
	logger      *slog.Logger
	mu          sync.Mutex
}

// JSONOption configures a JSONStorage
type JSONOption func(*JSONStorage)

// WithFileSystem sets the file system used for reads and writes
func WithFileSystem(fsys FileSystem) JSONOption {
	return func(s *JSONStorage) {
		s.fs = fsys
	}
}

// WithLockFactory sets the factory that creates the cross-process lock
func WithLockFactory(factory FileLockFactory) JSONOption {
	return func(s *JSONStorage) {
		s.lockFactory = factory
	}
}

// WithLockTimeout bounds how long an operation waits for the file lock
func WithLockTimeout(d time.Duration) JSONOption {
	return func(s *JSONStorage) {
		s.lockTimeout = d
	}
}

// WithLogger sets the logger for skipped cache entries
func WithLogger(logger *slog.Logger) JSONOption {
	return func(s *JSONStorage) {
		s.logger = logger
	}
}

// NewJSONStorage creates a JSON file backed storage
func NewJSONStorage(filePath string, opts ...JSONOption) *JSONStorage {
	s := &JSONStorage{
		filePath:    filePath,
		fs:          OSFileSystem{},
		lockFactory: FlockFactory(),
		lockTimeout: defaultLockTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the cache file path
func (s *JSONStorage) Path() string {
	return s.filePath
}

// Load implements Storage.Load. Entries are decoded one at a time, so a
// damaged entry under another key does not affect this one. Within the
// entry, a path whose state is not an object is skipped and logged.
func (s *JSONStorage) Load(ctx context.Context, key string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap *Snapshot
	err := s.withFileLock(ctx, func() error {
		entries, err := s.readLocked()
		if err != nil {
			return err
		}
		raw, ok := entries[key]
		if !ok || isNull(raw) {
			return ErrNotFound
		}
		snap, err = s.decodeSnapshot(key, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Save implements Storage.Save. Other entries are written back byte for
// byte, including ones that do not decode.
func (s *JSONStorage) Save(ctx context.Context, key string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.update(ctx, func(entries map[string]json.RawMessage) {
		entries[key] = data
	})
}

// Delete implements Storage.Delete
func (s *JSONStorage) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(entries map[string]json.RawMessage) {
		delete(entries, key)
	})
}

// Keys lists the store keys present in the cache file
func (s *JSONStorage) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	err := s.withFileLock(ctx, func() error {
		entries, err := s.readLocked()
		if err != nil {
			return err
		}
		for k := range entries {
			keys = append(keys, k)
		}
		return nil
	})
	return keys, err
}

// Close implements Storage.Close
func (s *JSONStorage) Close() error {
	return nil
}

// update runs a read-modify-write cycle of the whole file under both locks.
// A file that is not a JSON object at all is replaced rather than blocking
// every future write.
func (s *JSONStorage) update(ctx context.Context, mutate func(map[string]json.RawMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(ctx, func() error {
		entries, err := s.readLocked()
		if err != nil {
			var syntaxErr *parseError
			if !errors.As(err, &syntaxErr) {
				return err
			}
			s.logger.Warn("replacing unreadable cache file", "file", s.filePath, "error", err)
			entries = make(map[string]json.RawMessage)
		}
		mutate(entries)
		return s.writeLocked(entries)
	})
}

func (s *JSONStorage) withFileLock(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	// the lock file lives next to the cache file
	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	lock := s.lockFactory.New(s.filePath + ".lock")
	locked, err := lock.TryLockContext(ctx, defaultRetryInterval)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}
	if !locked {
		return ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

type parseError struct {
	err error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("failed to parse %s", e.err)
}

func (e *parseError) Unwrap() error {
	return e.err
}

// readLocked returns the raw entry of every key. Only a file that is not a
// JSON object is a parse error; entries are decoded later, one at a time.
func (s *JSONStorage) readLocked() (map[string]json.RawMessage, error) {
	data, err := s.fs.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]json.RawMessage), nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, &parseError{err: fmt.Errorf("cache file: %w", err)}
	}
	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(standardized, &entries); err != nil {
		return nil, &parseError{err: fmt.Errorf("cache file: %w", err)}
	}
	return entries, nil
}

// decodeSnapshot decodes the entry stored under key. An entry that is not
// an object is a parse error for that key only. A queryStates or
// mergedWithStorage value of the wrong type, and any path whose state is
// not an object, are dropped with a warning.
func (s *JSONStorage) decodeSnapshot(key string, raw json.RawMessage) (*Snapshot, error) {
	var fields struct {
		QueryStates       json.RawMessage `json:"queryStates"`
		MergedWithStorage json.RawMessage `json:"mergedWithStorage"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &parseError{err: fmt.Errorf("cache entry %q: %w", key, err)}
	}

	snap := &Snapshot{QueryStates: make(map[string]types.Params)}
	if len(fields.MergedWithStorage) > 0 && !isNull(fields.MergedWithStorage) {
		if err := json.Unmarshal(fields.MergedWithStorage, &snap.MergedWithStorage); err != nil {
			s.logger.Warn("ignoring malformed merged flag", "key", key, "error", err)
		}
	}
	if len(fields.QueryStates) == 0 || isNull(fields.QueryStates) {
		return snap, nil
	}

	var paths map[string]json.RawMessage
	if err := json.Unmarshal(fields.QueryStates, &paths); err != nil {
		s.logger.Warn("ignoring malformed query states", "key", key, "error", err)
		return snap, nil
	}
	for path, rawState := range paths {
		var state types.Params
		if err := json.Unmarshal(rawState, &state); err != nil {
			s.logger.Warn("ignoring malformed query state", "key", key, "path", path, "error", err)
			continue
		}
		if state == nil {
			state = types.Params{}
		}
		snap.QueryStates[path] = state
	}
	return snap, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func (s *JSONStorage) writeLocked(entries map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := s.fs.WriteFileAtomic(s.filePath, data); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

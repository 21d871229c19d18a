package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStorage keeps snapshots in process memory. Snapshots are stored as
// encoded JSON so that a loaded snapshot never aliases a saved one and
// numbers come back the way they would from a file.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string][]byte

	// LoadError and SaveError, when set, are returned by Load and Save
	LoadError error
	SaveError error
	saves     int
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string][]byte)}
}

// Load implements Storage.Load
func (m *MemoryStorage) Load(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.LoadError != nil {
		return nil, m.LoadError
	}
	data, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save implements Storage.Save
func (m *MemoryStorage) Save(_ context.Context, key string, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveError != nil {
		return m.SaveError
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	m.entries[key] = data
	m.saves++
	return nil
}

// Delete implements Storage.Delete
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close implements Storage.Close
func (m *MemoryStorage) Close() error {
	return nil
}

// Saves returns how many successful saves happened
func (m *MemoryStorage) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

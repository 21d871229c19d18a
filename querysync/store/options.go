package store

import (
	"log/slog"
	"time"

	"github.com/arthur-debert/querysync/querysync/storage"
)

// DefaultKey is the storage key used when no other key is configured
const DefaultKey = "query-store"

// Option configures a Store
type Option func(*Store)

// WithStorage sets the backend the store hydrates from and persists to.
// Without one the store keeps its state in memory only.
func WithStorage(s storage.Storage) Option {
	return func(st *Store) {
		st.storage = s
	}
}

// WithKey sets the key the store's snapshot is persisted under
func WithKey(key string) Option {
	return func(st *Store) {
		st.key = key
	}
}

// WithLogger sets the logger for persistence failures and state changes
func WithLogger(logger *slog.Logger) Option {
	return func(st *Store) {
		st.logger = logger
	}
}

// WithSaveTimeout bounds each persist call
func WithSaveTimeout(d time.Duration) Option {
	return func(st *Store) {
		st.saveTimeout = d
	}
}

// Origin tells observers what caused a change
type Origin int

const (
	// OriginUser is a change requested by UI or API code
	OriginUser Origin = iota
	// OriginURL is a change derived from the current URL
	OriginURL
	// OriginStorage is a change applied while hydrating from storage
	OriginStorage
)

func (o Origin) String() string {
	switch o {
	case OriginURL:
		return "url"
	case OriginStorage:
		return "storage"
	}
	return "user"
}

type mutation struct {
	origin Origin
}

// MutationOption tags a single mutation
type MutationOption func(*mutation)

// FromURL marks a mutation as derived from the URL, so that URL writers can
// skip changes they did not cause.
func FromURL() MutationOption {
	return func(m *mutation) {
		m.origin = OriginURL
	}
}

func newMutation(opts []MutationOption) mutation {
	m := mutation{origin: OriginUser}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

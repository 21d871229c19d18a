// Package store implements the query state store: for every known route path
// it keeps the minimal set of parameters that differ from the route's
// defaults, reconciles that state once with a persisted snapshot, and tells
// observers about every mutation that actually changed something.
//
// A store's lifecycle is New, then Hydrate, then ready. Until Hydrate has
// run, EffectiveParams and APIParams report unavailable so that callers do
// not fetch data for parameters that are about to change.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arthur-debert/querysync/querysync/codec"
	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/storage"
	"github.com/arthur-debert/querysync/types"
)

// Change describes a mutation that changed the query state of a path
type Change struct {
	Path   string
	State  types.Params
	Origin Origin
}

// Observer receives changes. It runs after the store lock is released and
// may call back into the store.
type Observer func(Change)

// Store holds the query state of every route path
type Store struct {
	reg         *registry.Registry
	storage     storage.Storage
	key         string
	logger      *slog.Logger
	saveTimeout time.Duration

	lm     *storage.LockManager
	states map[string]types.Params
	merged bool

	hydrateOnce sync.Once
	hydrateErr  error
	ready       chan struct{}

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

// New creates a store with an empty query state for every path in reg
func New(reg *registry.Registry, opts ...Option) *Store {
	s := &Store{
		reg:         reg,
		key:         DefaultKey,
		logger:      slog.Default(),
		saveTimeout: 5 * time.Second,
		lm:          storage.NewLockManager(),
		states:      make(map[string]types.Params),
		ready:       make(chan struct{}),
		observers:   make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, path := range reg.Paths() {
		s.states[path] = types.Params{}
	}
	return s
}

// Registry returns the route table the store was built with
func (s *Store) Registry() *registry.Registry {
	return s.reg
}

// Key returns the storage key of the store
func (s *Store) Key() string {
	return s.key
}

// Subscribe registers fn for every future change and returns a function that
// removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store) notify(changes ...Change) {
	s.obsMu.Lock()
	// registration order
	observers := make([]Observer, 0, len(s.observers))
	for id := 0; id < s.nextObsID; id++ {
		if fn, ok := s.observers[id]; ok {
			observers = append(observers, fn)
		}
	}
	s.obsMu.Unlock()

	for _, c := range changes {
		for _, fn := range observers {
			fn(Change{Path: c.Path, State: params.Clone(c.State), Origin: c.Origin})
		}
	}
}

// SetParam sets a single parameter of path and returns the resulting query
// state. Disallowed keys are ignored. Malformed reserved values are replaced
// by their global default. A nil value, or a value equal to the route
// default, removes the key. Setting the value already stored changes nothing
// and notifies nobody.
func (s *Store) SetParam(path, key string, value any, opts ...MutationOption) types.Params {
	return s.UpdateQueryState(path, types.Params{key: value}, opts...)
}

// UpdateQueryState applies several parameters of path at once, with the same
// rules as SetParam. Observers are notified once, and only when at least one
// key actually changed.
func (s *Store) UpdateQueryState(path string, updates types.Params, opts ...MutationOption) types.Params {
	m := newMutation(opts)
	path = registry.NormalizePath(path)
	cfg := s.reg.ConfigFor(path)

	var change *Change
	state := storage.Locked(s.lm, storage.WriteOperation, func() types.Params {
		current := s.stateLocked(path)
		changed := false
		for _, key := range params.SortedKeys(updates) {
			if !cfg.Allows(key) {
				continue
			}
			value := updates[key]
			if value != nil {
				value = params.Repair(key, value)
			}
			if apply(current, cfg.Defaults, key, value) {
				changed = true
			}
		}
		if !changed {
			return params.Clone(current)
		}
		s.states[path] = current
		s.persistLocked()
		change = &Change{Path: path, State: current, Origin: m.origin}
		s.logger.Debug("query state changed",
			"path", path,
			"origin", m.origin.String(),
			"query", codec.Encode(current))
		return params.Clone(current)
	})

	if change != nil {
		s.notify(*change)
	}
	return state
}

// Reset removes every parameter of path, returning it to its defaults
func (s *Store) Reset(path string, opts ...MutationOption) types.Params {
	path = registry.NormalizePath(path)
	current := s.QueryState(path)
	updates := make(types.Params, len(current))
	for k := range current {
		updates[k] = nil
	}
	return s.UpdateQueryState(path, updates, opts...)
}

// apply performs one keyed update of state and reports whether it changed
// anything
func apply(state, defaults types.Params, key string, value any) bool {
	current, present := state[key]
	if value == nil || params.Equal(value, defaults[key]) {
		if present {
			delete(state, key)
			return true
		}
		return false
	}
	if present && params.Equal(current, value) {
		return false
	}
	state[key] = params.Normalize(value)
	return true
}

// stateLocked returns a private copy of the state of path
func (s *Store) stateLocked(path string) types.Params {
	return params.Clone(s.states[path])
}

// QueryState returns a copy of the minimal query state of path
func (s *Store) QueryState(path string) types.Params {
	path = registry.NormalizePath(path)
	return storage.Locked(s.lm, storage.ReadOperation, func() types.Params {
		return s.stateLocked(path)
	})
}

// Merged reports whether the store has reconciled with persisted storage
func (s *Store) Merged() bool {
	return storage.Locked(s.lm, storage.ReadOperation, func() bool {
		return s.merged
	})
}

// Ready is closed once Hydrate has completed
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// EffectiveParams returns the route defaults deep-merged with the query
// state of path. It reports false until the store has merged with storage.
func (s *Store) EffectiveParams(path string) (types.Params, bool) {
	path = registry.NormalizePath(path)
	defaults := s.reg.Defaults(path)
	var merged bool
	state := storage.Locked(s.lm, storage.ReadOperation, func() types.Params {
		merged = s.merged
		return s.stateLocked(path)
	})
	if !merged {
		return nil, false
	}
	return params.Merge(defaults, state), true
}

// APIParams returns the typed filter, pagination and sorts of path, with the
// same availability as EffectiveParams.
func (s *Store) APIParams(path string) (types.APIParams, bool) {
	effective, ok := s.EffectiveParams(path)
	if !ok {
		return types.APIParams{}, false
	}
	return params.APIParamsFrom(effective), true
}

// Snapshot returns a copy of the persisted form of the store
func (s *Store) Snapshot() storage.Snapshot {
	return storage.Locked(s.lm, storage.ReadOperation, func() storage.Snapshot {
		return s.snapshotLocked()
	})
}

func (s *Store) snapshotLocked() storage.Snapshot {
	states := make(map[string]types.Params, len(s.states))
	for path, state := range s.states {
		states[path] = params.Clone(state)
	}
	return storage.Snapshot{QueryStates: states, MergedWithStorage: s.merged}
}

// ResolveURL returns the path of url and its full effective parameters,
// computed from the URL alone: defaults deep-merged with the sanitized
// decoded query. It does not read or modify the store's state, which makes
// it suitable for rendering a first response before hydration.
func (s *Store) ResolveURL(url string) (string, types.Params) {
	path := registry.NormalizePath(codec.PathnameOf(url))
	cfg := s.reg.ConfigFor(path)
	decoded := params.Sanitize(codec.Decode(url), cfg.AllowedParams)
	return path, params.Merge(cfg.Defaults, decoded)
}

// persistLocked saves the snapshot. Nothing is saved before hydration so
// that in-memory state never overwrites a snapshot that has not been
// merged yet. Failures are logged, never returned.
func (s *Store) persistLocked() {
	if s.storage == nil || !s.merged {
		return
	}
	snap := s.snapshotLocked()
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.storage.Save(ctx, s.key, &snap); err != nil {
		s.logger.Warn("failed to persist query state", "key", s.key, "error", err)
	}
}

// Hydrate reconciles the store with its persisted snapshot. It runs once per
// store; later calls return the first call's result. Persisted state is
// deep-merged over the in-memory state, every path is sanitized again and
// stripped of defaults, and the store becomes merged. A snapshot that cannot
// be loaded is logged and the store is merged with what it has; the load
// error is still returned for callers that want to report it.
func (s *Store) Hydrate(ctx context.Context) error {
	s.hydrateOnce.Do(func() {
		s.hydrateErr = s.hydrate(ctx)
		close(s.ready)
	})
	return s.hydrateErr
}

func (s *Store) hydrate(ctx context.Context) error {
	var persisted map[string]types.Params
	var loadErr error
	if s.storage != nil {
		snap, err := s.storage.Load(ctx, s.key)
		switch {
		case err == nil:
			persisted = normalizePaths(snap.QueryStates)
		case errors.Is(err, storage.ErrNotFound):
		default:
			loadErr = err
			s.logger.Warn("failed to load persisted query state, continuing without it",
				"key", s.key, "error", err)
		}
	}

	var changes []Change
	_ = s.lm.Execute(storage.WriteOperation, func() error {
		combined := params.MergeStates(s.states, persisted)
		next := make(map[string]types.Params, len(combined))
		for _, path := range s.reg.Paths() {
			next[path] = types.Params{}
		}
		for path, state := range combined {
			if !s.reg.Has(path) {
				s.logger.Debug("dropping persisted state for unknown path", "path", path)
				continue
			}
			cfg := s.reg.ConfigFor(path)
			next[path] = params.RemoveDefaults(params.Sanitize(state, cfg.AllowedParams), cfg.Defaults)
		}

		for _, path := range params.SortedKeys(next) {
			if !params.Equal(next[path], s.states[path]) {
				changes = append(changes, Change{Path: path, State: next[path], Origin: OriginStorage})
			}
		}
		s.states = next
		s.merged = true
		s.persistLocked()
		return nil
	})

	s.logger.Debug("query state merged with storage", "key", s.key, "changed_paths", len(changes))
	s.notify(changes...)
	return loadErr
}

// normalizePaths rekeys persisted states by normalized path. States whose
// paths normalize to the same route are merged in lexical order of the raw
// paths.
func normalizePaths(states map[string]types.Params) map[string]types.Params {
	out := make(map[string]types.Params, len(states))
	for _, raw := range params.SortedKeys(states) {
		path := registry.NormalizePath(raw)
		out[path] = params.Merge(out[path], states[raw])
	}
	return out
}

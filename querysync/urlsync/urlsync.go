// Package urlsync keeps a store and a URL in agreement.
//
// The inbound side reads a URL into the store and, when the URL was not in
// canonical form, replaces it with the canonical one. The outbound side is a
// store observer that pushes a new URL after every user change and replaces
// the current one when hydration restores state. Changes read from the URL
// are not echoed back. Because the store only notifies on actual changes,
// the two sides cannot trigger each other in a loop.
package urlsync

import (
	"log/slog"
	"sync"

	"github.com/arthur-debert/querysync/querysync/codec"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/store"
	"github.com/arthur-debert/querysync/types"
)

// Navigator changes the current URL. Replace rewrites the current history
// entry; Push adds a new one.
type Navigator interface {
	Replace(url string)
	Push(url string)
}

// Synchronizer connects one store to one Navigator
type Synchronizer struct {
	store  *store.Store
	nav    Navigator
	logger *slog.Logger

	mu          sync.Mutex
	current     string
	unsubscribe func()
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithLogger sets the synchronizer logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithPath sets the current path before any URL is seen, for callers that
// mutate a route's state without navigating to it first
func WithPath(path string) Option {
	return func(s *Synchronizer) {
		s.current = registry.NormalizePath(path)
	}
}

// New creates a synchronizer and subscribes its outbound side to st. Call
// Close to unsubscribe.
func New(st *store.Store, nav Navigator, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:  st,
		nav:    nav,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = st.Subscribe(s.onChange)
	return s
}

// Close stops pushing URLs for store changes
func (s *Synchronizer) Close() {
	s.unsubscribe()
}

// CurrentPath returns the path of the last URL seen or written
func (s *Synchronizer) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnURLChange reads url into the store and returns the canonical URL for the
// resulting state. The Navigator's Replace is called when the canonical URL
// differs from url.
func (s *Synchronizer) OnURLChange(url string) string {
	path := registry.NormalizePath(codec.PathnameOf(url))
	s.mu.Lock()
	s.current = path
	s.mu.Unlock()

	state := s.store.UpdateQueryState(path, codec.Decode(url), store.FromURL())
	canonical := codec.BuildURL(path, state)
	if canonical != stripOrigin(url) {
		s.logger.Debug("replacing non canonical url", "from", url, "to", canonical)
		s.nav.Replace(canonical)
	}
	return canonical
}

// SetParam sets one parameter of the current path, which pushes a new URL
// when it changes anything.
func (s *Synchronizer) SetParam(key string, value any) types.Params {
	return s.store.SetParam(s.CurrentPath(), key, value)
}

// UpdateQueryState updates several parameters of the current path
func (s *Synchronizer) UpdateQueryState(updates types.Params) types.Params {
	return s.store.UpdateQueryState(s.CurrentPath(), updates)
}

// Reset returns the current path to its defaults
func (s *Synchronizer) Reset() types.Params {
	return s.store.Reset(s.CurrentPath())
}

func (s *Synchronizer) onChange(c store.Change) {
	if c.Origin == store.OriginURL {
		return
	}
	// only the route being viewed owns the URL
	if path := s.CurrentPath(); path != "" && path != c.Path {
		return
	}
	url := codec.BuildURL(c.Path, c.State)
	// restored state rewrites the entry the user is already on
	if c.Origin == store.OriginStorage {
		s.logger.Debug("replacing url with restored state", "path", c.Path, "url", url)
		s.nav.Replace(url)
		return
	}
	s.logger.Debug("pushing url for state change", "path", c.Path, "origin", c.Origin.String(), "url", url)
	s.nav.Push(url)
}

// stripOrigin reduces url to its path and query for comparison with a
// canonical URL
func stripOrigin(url string) string {
	path := codec.PathnameOf(url)
	query := codec.QueryOf(url)
	if query == "" {
		return path
	}
	return path + "?" + query
}

package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/arthur-debert/querysync/querysync/metrics"
	"github.com/arthur-debert/querysync/querysync/store"
)

// SessionCookie names the cookie carrying the session id
const SessionCookie = "querysync_session"

// session is one browser's store. Requests of a session are serialized on
// mu, so a request observes only its own mutations.
type session struct {
	id    string
	store *store.Store
	mu    sync.Mutex
}

// storeKey returns the storage key of a session's store
func storeKey(id string) string {
	return store.DefaultKey + ":" + id
}

// session returns the caller's session, creating it (and setting the
// cookie) when the request has none. A known id whose store was evicted is
// rebuilt from storage.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session {
	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if item := s.sessions.Get(id); item != nil {
		return item.Value()
	}

	sess := &session{id: id, store: s.newStore(id)}
	s.sessions.Set(id, sess, ttlcache.DefaultTTL)
	metrics.SetActiveSessions(int(s.active.Add(1)))
	s.logger.Debug("session created", "session", id)
	return sess
}

func (s *Server) newStore(id string) *store.Store {
	opts := []store.Option{store.WithKey(storeKey(id)), store.WithLogger(s.logger)}
	if s.storage != nil {
		opts = append(opts, store.WithStorage(s.storage))
	}
	st := store.New(s.reg, opts...)
	st.Subscribe(func(c store.Change) {
		metrics.RecordStateChange(c.Origin.String())
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.hydrateTimeout)
		defer cancel()
		if err := st.Hydrate(ctx); err != nil {
			metrics.RecordHydrateFailure()
		}
	}()
	return st
}

// waitReady waits for the store to merge with storage, up to readyWait
func (s *Server) waitReady(ctx context.Context, st *store.Store) bool {
	if st.Merged() {
		return true
	}
	timer := time.NewTimer(s.readyWait)
	defer timer.Stop()
	select {
	case <-st.Ready():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

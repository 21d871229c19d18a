// Package testutil provides a persisted-state fixture and assertion helpers
// for tests that need stores hydrated from realistic snapshots.
//
// The fixture holds two sessions:
//
//	query-store          a clean browsing session on /products and /users
//	query-store:damaged  hand-edited state with malformed values, defaults,
//	                     disallowed keys, a trailing slash and a dead route
package testutil

import (
	"context"
	_ "embed"
	"encoding/json"
	"testing"

	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/storage"
	"github.com/arthur-debert/querysync/querysync/store"
	"github.com/arthur-debert/querysync/querysync/urlsync"
	"github.com/arthur-debert/querysync/types"
)

// Fixture storage keys
const (
	BrowsingKey = store.DefaultKey
	DamagedKey  = store.DefaultKey + ":damaged"
)

//go:embed testdata/snapshots.json
var snapshotsJSON []byte

// SessionData gives typed access to the fixture snapshots as they were
// loaded, before any store touched them
type SessionData struct {
	Browsing *storage.Snapshot
	Damaged  *storage.Snapshot

	ByKey map[string]*storage.Snapshot
}

// LoadSessions returns a memory storage seeded with every fixture snapshot
func LoadSessions(t testing.TB) (*storage.MemoryStorage, *SessionData) {
	t.Helper()

	var byKey map[string]*storage.Snapshot
	if err := json.Unmarshal(snapshotsJSON, &byKey); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	mem := storage.NewMemoryStorage()
	for _, key := range params.SortedKeys(byKey) {
		if err := mem.Save(context.Background(), key, byKey[key]); err != nil {
			t.Fatalf("failed to seed %s: %v", key, err)
		}
	}

	return mem, &SessionData{
		Browsing: byKey[BrowsingKey],
		Damaged:  byKey[DamagedKey],
		ByKey:    byKey,
	}
}

// NewStore returns a store over the builtin routes, hydrated from the fixture
// snapshot saved under key, and the storage behind it
func NewStore(t testing.TB, key string, opts ...store.Option) (*store.Store, *storage.MemoryStorage) {
	t.Helper()

	mem, _ := LoadSessions(t)
	opts = append([]store.Option{store.WithStorage(mem), store.WithKey(key)}, opts...)
	st := store.New(registry.Builtin(), opts...)
	if err := st.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate %s: %v", key, err)
	}
	return st, mem
}

// AssertState checks the minimal query state of path
func AssertState(t testing.TB, st *store.Store, path string, want types.Params) {
	t.Helper()
	if diff := params.Diff(want, st.QueryState(path)); diff != "" {
		t.Errorf("query state of %s mismatch (-want +got):\n%s", path, diff)
	}
}

// AssertEffective checks the effective parameters of path, failing when the
// store has not merged yet
func AssertEffective(t testing.TB, st *store.Store, path string, want types.Params) {
	t.Helper()
	got, ok := st.EffectiveParams(path)
	if !ok {
		t.Errorf("effective params of %s unavailable before hydration", path)
		return
	}
	if diff := params.Diff(want, got); diff != "" {
		t.Errorf("effective params of %s mismatch (-want +got):\n%s", path, diff)
	}
}

// AssertPersisted checks the state of path inside the snapshot saved under key
func AssertPersisted(t testing.TB, s storage.Storage, key, path string, want types.Params) {
	t.Helper()
	snap, err := s.Load(context.Background(), key)
	if err != nil {
		t.Errorf("load %s: %v", key, err)
		return
	}
	if diff := params.Diff(want, snap.QueryStates[path]); diff != "" {
		t.Errorf("persisted state of %s mismatch (-want +got):\n%s", path, diff)
	}
}

// AssertNavigations checks the URLs a recorder saw, in order
func AssertNavigations(t testing.TB, rec *urlsync.Recorder, want ...string) {
	t.Helper()
	history := rec.History()
	got := make([]string, len(history))
	for i, n := range history {
		got[i] = n.URL
	}
	if diff := params.Diff(want, got); diff != "" {
		t.Errorf("navigations mismatch (-want +got):\n%s", diff)
	}
}

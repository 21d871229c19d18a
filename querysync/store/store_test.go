package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/storage"
	"github.com/arthur-debert/querysync/types"
)

func newReadyStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(registry.Builtin(), opts...)
	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	return s
}

// recorder collects the changes an observer receives
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) observe(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *recorder) last() Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[len(r.changes)-1]
}

func TestPaginationScenario(t *testing.T) {
	s := newReadyStore(t)
	rec := &recorder{}
	s.Subscribe(rec.observe)

	state := s.SetParam("/products", "pagination", map[string]any{"page": 1, "pageSize": 20})
	if len(state) != 0 {
		t.Errorf("default pagination should not be stored, got %v", state)
	}
	if rec.count() != 0 {
		t.Errorf("setting the default must not notify, got %d changes", rec.count())
	}

	state = s.SetParam("/products", "pagination", map[string]any{"page": 2, "pageSize": 20})
	want := types.Params{"pagination": map[string]any{"page": 2.0, "pageSize": 20.0}}
	if diff := cmp.Diff(want, state); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	effective, ok := s.EffectiveParams("/products")
	if !ok {
		t.Fatal("expected effective params after hydrate")
	}
	if !params.Equal(effective["pagination"], map[string]any{"page": 2, "pageSize": 20}) {
		t.Errorf("effective pagination = %v", effective["pagination"])
	}
	if effective["layout"] != "grid" {
		t.Errorf("expected default layout, got %v", effective["layout"])
	}
	if rec.count() != 1 {
		t.Errorf("expected exactly one change, got %d", rec.count())
	}
}

func TestSetParamRules(t *testing.T) {
	t.Run("disallowed key is ignored", func(t *testing.T) {
		s := newReadyStore(t)
		state := s.SetParam("/products", "color", "red")
		if len(state) != 0 {
			t.Errorf("expected empty state, got %v", state)
		}
	})

	t.Run("malformed reserved value heals to global default", func(t *testing.T) {
		s := newReadyStore(t)
		s.SetParam("/users", "sorts", []any{map[string]any{"key": "name", "order": "asc"}})
		state := s.SetParam("/users", "sorts", []any{map[string]any{"key": "name"}})
		if _, ok := state["sorts"]; ok {
			t.Errorf("healed value equals the default and must not be stored, got %v", state)
		}
	})

	t.Run("no-op is idempotent and silent", func(t *testing.T) {
		s := newReadyStore(t)
		rec := &recorder{}
		s.Subscribe(rec.observe)

		first := s.SetParam("/users", "layout", "grid")
		second := s.SetParam("/users", "layout", "grid")
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("second call changed state (-first +second):\n%s", diff)
		}
		if rec.count() != 1 {
			t.Errorf("expected one notification, got %d", rec.count())
		}
	})

	t.Run("nil resets to default", func(t *testing.T) {
		s := newReadyStore(t)
		s.SetParam("/users", "tab", "activity")
		state := s.SetParam("/users", "tab", nil)
		if _, ok := state["tab"]; ok {
			t.Errorf("expected tab removed, got %v", state)
		}
		effective, _ := s.EffectiveParams("/users")
		if effective["tab"] != "profile" {
			t.Errorf("expected default tab, got %v", effective["tab"])
		}
	})

	t.Run("value equal to default removes the key", func(t *testing.T) {
		s := newReadyStore(t)
		s.SetParam("/products", "layout", "list")
		state := s.SetParam("/products", "layout", "grid")
		if len(state) != 0 {
			t.Errorf("expected empty state, got %v", state)
		}
	})

	t.Run("returned state is a copy", func(t *testing.T) {
		s := newReadyStore(t)
		state := s.SetParam("/products", "filter", map[string]any{"category": "books"})
		state["filter"].(map[string]any)["category"] = "toys"
		again := s.QueryState("/products")
		if again["filter"].(map[string]any)["category"] != "books" {
			t.Error("store state was mutated through a returned copy")
		}
	})
}

func TestUpdateQueryState(t *testing.T) {
	s := newReadyStore(t)
	rec := &recorder{}
	s.Subscribe(rec.observe)

	state := s.UpdateQueryState("/users", types.Params{
		"filter":     map[string]any{"role": "admin"},
		"pagination": map[string]any{"page": 2},
		"layout":     "table",
		"unknown":    "x",
	})
	// malformed pagination heals to the default and is therefore not stored
	want := types.Params{
		"filter": map[string]any{"role": "admin"},
	}
	if diff := cmp.Diff(want, state); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if rec.count() != 1 {
		t.Fatalf("expected one batched notification, got %d", rec.count())
	}

	s.UpdateQueryState("/users", types.Params{"filter": map[string]any{"role": "admin"}, "tab": "profile"})
	if rec.count() != 1 {
		t.Errorf("unchanged batch must not notify, got %d", rec.count())
	}

	s.UpdateQueryState("/users", types.Params{"filter": nil, "tab": "activity"}, FromURL())
	last := rec.last()
	if last.Origin != OriginURL || last.Path != "/users" {
		t.Errorf("unexpected change %+v", last)
	}
	if diff := cmp.Diff(types.Params{"tab": "activity"}, last.State); diff != "" {
		t.Errorf("change state mismatch (-want +got):\n%s", diff)
	}
}

func TestMinimality(t *testing.T) {
	s := newReadyStore(t)
	defaults := s.Registry().Defaults("/products")
	ops := []types.Params{
		{"layout": "list"},
		{"pagination": map[string]any{"page": 3, "pageSize": 50}},
		{"layout": "grid", "tab": "specs"},
		{"pagination": map[string]any{"page": 1, "pageSize": 20}},
		{"sorts": []any{map[string]any{"key": "price", "order": "desc"}}},
		{"sorts": []any{}},
		{"filter": map[string]any{}},
		{"tab": "basic-info"},
	}
	for _, op := range ops {
		state := s.UpdateQueryState("/products", op)
		for k, v := range state {
			if params.Equal(v, defaults[k]) {
				t.Fatalf("after %v state holds default for %q", op, k)
			}
		}
	}
	if len(s.QueryState("/products")) != 0 {
		t.Errorf("expected every key back at its default, got %v", s.QueryState("/products"))
	}
}

func TestReset(t *testing.T) {
	s := newReadyStore(t)
	s.UpdateQueryState("/products", types.Params{"layout": "list", "tab": "specs"})
	rec := &recorder{}
	s.Subscribe(rec.observe)

	if state := s.Reset("/products"); len(state) != 0 {
		t.Errorf("expected empty state, got %v", state)
	}
	if rec.count() != 1 {
		t.Errorf("expected one notification, got %d", rec.count())
	}
	s.Reset("/products")
	if rec.count() != 1 {
		t.Errorf("resetting an empty state must not notify, got %d", rec.count())
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newReadyStore(t)
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.observe)
	s.SetParam("/products", "layout", "list")
	unsubscribe()
	unsubscribe()
	s.SetParam("/products", "layout", "table")
	if rec.count() != 1 {
		t.Errorf("expected 1 change before unsubscribe, got %d", rec.count())
	}
}

func TestMergedGate(t *testing.T) {
	mem := storage.NewMemoryStorage()
	s := New(registry.Builtin(), WithStorage(mem))

	if _, ok := s.EffectiveParams("/products"); ok {
		t.Error("effective params must be unavailable before hydrate")
	}
	if _, ok := s.APIParams("/products"); ok {
		t.Error("api params must be unavailable before hydrate")
	}
	select {
	case <-s.Ready():
		t.Fatal("ready must not be closed before hydrate")
	default:
	}

	s.SetParam("/products", "layout", "list")
	if mem.Saves() != 0 {
		t.Error("nothing may be persisted before hydrate")
	}

	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-s.Ready()
	if !s.Merged() {
		t.Error("expected merged after hydrate")
	}
	if _, ok := s.EffectiveParams("/products"); !ok {
		t.Error("expected effective params after hydrate")
	}
	if mem.Saves() != 1 {
		t.Errorf("expected hydrate to persist the merged state once, got %d saves", mem.Saves())
	}
}

func TestHydrate(t *testing.T) {
	t.Run("persisted wins and invalid values are repaired", func(t *testing.T) {
		mem := storage.NewMemoryStorage()
		err := mem.Save(context.Background(), DefaultKey, &storage.Snapshot{
			QueryStates: map[string]types.Params{
				"/products": {
					"layout":     "list",
					"pagination": map[string]any{"page": 0, "pageSize": 20},
					"evil":       true,
				},
				"/users":   {"tab": "activity"},
				"/removed": {"layout": "grid"},
			},
			MergedWithStorage: true,
		})
		if err != nil {
			t.Fatal(err)
		}

		s := New(registry.Builtin(), WithStorage(mem))
		s.SetParam("/products", "layout", "table")
		s.SetParam("/products", "tab", "specs")

		rec := &recorder{}
		s.Subscribe(rec.observe)
		if err := s.Hydrate(context.Background()); err != nil {
			t.Fatal(err)
		}

		want := types.Params{"layout": "list", "tab": "specs"}
		if diff := cmp.Diff(want, s.QueryState("/products")); diff != "" {
			t.Errorf("products state mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(types.Params{"tab": "activity"}, s.QueryState("/users")); diff != "" {
			t.Errorf("users state mismatch (-want +got):\n%s", diff)
		}
		if _, ok := s.Snapshot().QueryStates["/removed"]; ok {
			t.Error("unknown paths should be dropped")
		}
		for _, c := range rec.changes {
			if c.Origin != OriginStorage {
				t.Errorf("expected storage origin, got %v", c.Origin)
			}
		}
		if rec.count() != 2 {
			t.Errorf("expected changes for both paths, got %d", rec.count())
		}

		snap, err := mem.Load(context.Background(), DefaultKey)
		if err != nil {
			t.Fatal(err)
		}
		if !snap.MergedWithStorage {
			t.Error("persisted snapshot should record the merge")
		}
	})

	t.Run("load failure degrades and is logged", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		mem := storage.NewMemoryStorage()
		mem.LoadError = errors.New("corrupt")

		s := New(registry.Builtin(), WithStorage(mem), WithLogger(logger))
		err := s.Hydrate(context.Background())
		if err == nil || !strings.Contains(err.Error(), "corrupt") {
			t.Errorf("expected load error to be reported, got %v", err)
		}
		if !s.Merged() {
			t.Error("store must still become merged")
		}
		if !strings.Contains(logs.String(), "failed to load persisted query state") {
			t.Errorf("expected warning in logs, got %q", logs.String())
		}
	})

	t.Run("runs once", func(t *testing.T) {
		mem := storage.NewMemoryStorage()
		s := New(registry.Builtin(), WithStorage(mem))
		_ = s.Hydrate(context.Background())
		_ = mem.Save(context.Background(), DefaultKey, &storage.Snapshot{
			QueryStates: map[string]types.Params{"/users": {"tab": "activity"}},
		})
		_ = s.Hydrate(context.Background())
		if len(s.QueryState("/users")) != 0 {
			t.Error("second hydrate must not merge again")
		}
	})
}

func TestPersistence(t *testing.T) {
	t.Run("every change is saved under the key", func(t *testing.T) {
		mem := storage.NewMemoryStorage()
		s := newReadyStore(t, WithStorage(mem), WithKey("query-store:abc"))
		saves := mem.Saves()

		s.SetParam("/users", "layout", "grid")
		s.SetParam("/users", "layout", "grid")
		if mem.Saves() != saves+1 {
			t.Errorf("expected one save per actual change, got %d", mem.Saves()-saves)
		}

		restored := newReadyStore(t, WithStorage(mem), WithKey("query-store:abc"))
		if restored.QueryState("/users")["layout"] != "grid" {
			t.Errorf("expected state restored from storage, got %v", restored.QueryState("/users"))
		}
		other := newReadyStore(t, WithStorage(mem))
		if len(other.QueryState("/users")) != 0 {
			t.Error("stores with different keys must not share state")
		}
	})

	t.Run("save failure is logged and not returned", func(t *testing.T) {
		var logs bytes.Buffer
		mem := storage.NewMemoryStorage()
		s := newReadyStore(t, WithStorage(mem), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		mem.SaveError = errors.New("disk full")

		state := s.SetParam("/products", "layout", "list")
		if state["layout"] != "list" {
			t.Errorf("mutation must succeed despite save failure, got %v", state)
		}
		if !strings.Contains(logs.String(), "failed to persist query state") {
			t.Errorf("expected warning in logs, got %q", logs.String())
		}
	})
}

func TestAPIParams(t *testing.T) {
	s := newReadyStore(t)
	s.UpdateQueryState("/products", types.Params{
		"filter": map[string]any{"category": "books"},
		"sorts":  []any{map[string]any{"key": "price", "order": "desc"}},
	})
	got, ok := s.APIParams("/products")
	if !ok {
		t.Fatal("expected api params")
	}
	want := types.APIParams{
		Filter:     types.Filter{"category": "books"},
		Pagination: types.Pagination{Page: 1, PageSize: 20},
		Sorts:      []types.Sort{{Key: "price", Order: types.Desc}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("APIParams() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveURL(t *testing.T) {
	s := New(registry.Builtin())
	path, effective := s.ResolveURL("http://localhost:3000/users/?filter[role]=admin&pagination[page]=2&evil=1")
	if path != "/users" {
		t.Errorf("expected /users, got %q", path)
	}
	if _, ok := effective["evil"]; ok {
		t.Error("disallowed params must be dropped")
	}
	if effective["layout"] != "table" {
		t.Errorf("expected default layout, got %v", effective["layout"])
	}
	if !params.Equal(effective["pagination"], params.DefaultPagination()) {
		t.Errorf("malformed pagination should heal, got %v", effective["pagination"])
	}
	if len(s.QueryState("/users")) != 0 {
		t.Error("ResolveURL must not modify the store")
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := newReadyStore(t, WithStorage(storage.NewMemoryStorage()))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetParam("/products", "pagination", map[string]any{"page": i + 2, "pageSize": 20})
			_, _ = s.EffectiveParams("/products")
		}(i)
	}
	wg.Wait()
	page, ok := params.Int(s.QueryState("/products")["pagination"].(map[string]any)["page"])
	if !ok || page < 2 || page > 21 {
		t.Errorf("unexpected final page %v", page)
	}
}

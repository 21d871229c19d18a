package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/querysync/querysync/catalog"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/storage"
	"github.com/arthur-debert/querysync/querysync/view"
	"github.com/arthur-debert/querysync/types"
)

type testPage struct {
	Path        string
	Query       string
	Params      types.Params
	Layout      any
	Tab         any
	Data        *types.PaginatedData[types.Record]
	Error       *ErrorView
	Pages       []any
	TotalPages  int
	SortOptions []view.SortOption
}

func newTestServer(t *testing.T, st storage.Storage, opts ...Option) (*Server, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.New()
	require.NoError(t, err)
	return New(registry.Builtin(), cat, st, opts...), cat
}

// client carries the session cookie between requests
type client struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (c *client) do(method, target, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			c.cookie = ck
		}
	}
	return rec
}

func (c *client) page(target string) testPage {
	c.t.Helper()
	rec := c.do(http.MethodGet, target, "")
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	var pv testPage
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &pv))
	return pv
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Nil(t, c.cookie, "healthz must not open a session")
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, h: srv.Handler()}
	c.page("/users")

	rec := c.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "querysync_http_requests_total")
}

func TestPageRedirectsToCanonicalURL(t *testing.T) {
	srv, _ := newTestServer(t, storage.NewMemoryStorage())
	c := &client{t: t, h: srv.Handler()}

	tests := []struct {
		target string
		want   string
	}{
		{"/products?layout=grid&tab=specs", "/products?tab=specs"},
		{"/users?evil=1", "/users"},
		{"/users/", "/users"},
		{"/users?pagination[page]=3", "/users"},
	}
	for _, tt := range tests {
		rec := c.do(http.MethodGet, tt.target, "")
		assert.Equal(t, http.StatusSeeOther, rec.Code, tt.target)
		assert.Equal(t, tt.want, rec.Header().Get("Location"), tt.target)
	}
	require.NotNil(t, c.cookie)
}

func TestPageView(t *testing.T) {
	srv, _ := newTestServer(t, storage.NewMemoryStorage())
	c := &client{t: t, h: srv.Handler()}

	pv := c.page("/products?tab=specs")
	assert.Equal(t, "/products", pv.Path)
	assert.Equal(t, "tab=specs", pv.Query)
	assert.Equal(t, "grid", pv.Layout)
	assert.Equal(t, "specs", pv.Tab)
	require.NotNil(t, pv.Data)
	assert.Equal(t, 200, pv.Data.Total)
	assert.Len(t, pv.Data.Data, 20)
	assert.Equal(t, types.Pagination{Page: 1, PageSize: 20}, pv.Data.Pagination)
	assert.Equal(t, 10, pv.TotalPages)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0, "...", 10.0}, pv.Pages)
	assert.Equal(t, view.SortOption{Key: "name"}, pv.SortOptions[0])

	pv = c.page("/users?filter[role]=admin&pagination[page]=1&pagination[pageSize]=10&sorts[0][key]=name&sorts[0][order]=desc")
	require.NotNil(t, pv.Data)
	assert.Equal(t, 2, pv.Data.Total)
	assert.Equal(t, "John Doe", pv.Data.Data[0]["name"])
	assert.Equal(t, "table", pv.Layout)
	assert.Equal(t, []any{1.0}, pv.Pages)
	assert.Equal(t, view.SortOption{Key: "name", Order: types.Desc}, pv.SortOptions[0])

	fresh := &client{t: t, h: srv.Handler()}
	pv = fresh.page("/products?pagination[page]=10001&pagination[pageSize]=999999999999999")
	require.NotNil(t, pv.Data)
	assert.Empty(t, pv.Data.Data)
	assert.Equal(t, 1, pv.TotalPages)
	assert.Equal(t, []any{1.0}, pv.Pages)
}

func TestPageUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(http.MethodGet, "/orders", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStateRoutes(t *testing.T) {
	mem := storage.NewMemoryStorage()
	srv, _ := newTestServer(t, mem)
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(http.MethodPost, "/state/products", `{"key":"layout","value":"list"}`)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/products?layout=list", rec.Header().Get("Location"))

	t.Run("same value changes nothing", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/state/products", `{"key":"layout","value":"list"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("disallowed key changes nothing", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/state/products", `{"key":"color","value":"red"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("stored state is restored into the url", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/products", "")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/products?layout=list", rec.Header().Get("Location"))
	})

	t.Run("updates", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/state/products",
			`{"updates":{"pagination":{"page":2,"pageSize":20},"layout":null}}`)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/products?pagination[page]=2&pagination[pageSize]=20", rec.Header().Get("Location"))
	})

	t.Run("get state", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/state/products", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var sv StateView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sv))
		assert.Equal(t, "/products", sv.Path)
		assert.Equal(t, "/products?pagination[page]=2&pagination[pageSize]=20", sv.URL)
		assert.Equal(t, "grid", sv.Params["layout"])
	})

	t.Run("state is persisted under the session key", func(t *testing.T) {
		snap, err := mem.Load(context.Background(), storeKey(c.cookie.Value))
		require.NoError(t, err)
		assert.True(t, snap.MergedWithStorage)
		assert.Equal(t, map[string]any{"page": 2.0, "pageSize": 20.0}, snap.QueryStates["/products"]["pagination"])
	})

	t.Run("reset", func(t *testing.T) {
		rec := c.do(http.MethodDelete, "/state/products", "")
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/products", rec.Header().Get("Location"))

		rec = c.do(http.MethodDelete, "/state/products", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestStateRouteErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, h: srv.Handler()}

	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/state/orders", `{"key":"tab","value":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/state/users", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/state/users", `{}`).Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	mem := storage.NewMemoryStorage()
	srv, _ := newTestServer(t, mem)
	alice := &client{t: t, h: srv.Handler()}
	bob := &client{t: t, h: srv.Handler()}

	alice.do(http.MethodPost, "/state/users", `{"key":"tab","value":"activity"}`)
	pv := bob.page("/users")
	assert.Equal(t, "profile", pv.Tab)
	assert.NotEqual(t, alice.cookie.Value, bob.cookie.Value)
}

func TestSessionRebuiltFromStorage(t *testing.T) {
	mem := storage.NewMemoryStorage()
	first, _ := newTestServer(t, mem)
	c := &client{t: t, h: first.Handler()}
	c.do(http.MethodPost, "/state/users", `{"key":"tab","value":"activity"}`)

	// a fresh server holds no sessions in memory
	second, _ := newTestServer(t, mem)
	c.h = second.Handler()
	rec := c.do(http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/users?tab=activity", rec.Header().Get("Location"))
}

type blockingStorage struct {
	*storage.MemoryStorage
	release chan struct{}
}

func (b *blockingStorage) Load(ctx context.Context, key string) (*storage.Snapshot, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.MemoryStorage.Load(ctx, key)
}

func TestNotReadyBeforeHydration(t *testing.T) {
	st := &blockingStorage{MemoryStorage: storage.NewMemoryStorage(), release: make(chan struct{})}
	srv, _ := newTestServer(t, st, WithReadyWait(10*time.Millisecond))
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	close(st.release)
	require.Eventually(t, func() bool {
		return c.do(http.MethodGet, "/users", "").Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListAPI(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(http.MethodGet, "/api/users?filter[role]=admin&sorts[0][key]=name&sorts[0][order]=desc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var data types.PaginatedData[types.Record]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, 2, data.Total)
	assert.Equal(t, "John Doe", data.Data[0]["name"])
	assert.Equal(t, "Diana Prince", data.Data[1]["name"])
	assert.Equal(t, types.Pagination{Page: 1, PageSize: 20}, data.Pagination)
	assert.Nil(t, c.cookie, "the list api is stateless")

	rec = c.do(http.MethodGet, "/api/users?pagination[page]=2&pagination[pageSize]=4&sorts[0][key]=name", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, types.Pagination{Page: 2, PageSize: 4}, data.Pagination)
	assert.Len(t, data.Data, 4, "malformed sorts heal to no sort")

	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/orders", "").Code)

	rec = c.do(http.MethodGet, "/api/products?pagination[page]=10001&pagination[pageSize]=999999999999999", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = types.PaginatedData[types.Record]{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Empty(t, data.Data)
	assert.Equal(t, 200, data.Total)
}

func TestSharedFetchSurvivesCanceledCaller(t *testing.T) {
	cat, err := catalog.New(catalog.WithLatency(200 * time.Millisecond))
	require.NoError(t, err)
	srv := New(registry.Builtin(), cat, nil, WithDedupInterval(0))
	api := types.APIParams{Filter: types.Filter{"status": "all"}, Pagination: types.Pagination{Page: 1, PageSize: 20}}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var leaderErr, followerErr error
	var follower types.PaginatedData[types.Record]

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, leaderErr = srv.fetch(leaderCtx, catalog.Users, api)
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		follower, followerErr = srv.fetch(context.Background(), catalog.Users, api)
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()
	wg.Wait()

	assert.ErrorIs(t, leaderErr, context.Canceled)
	require.NoError(t, followerErr)
	assert.Equal(t, 10, follower.Total)
}

func TestListAPIDedup(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     int
	}{
		{"cached within interval", time.Minute, 10},
		{"disabled", 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, cat := newTestServer(t, nil, WithDedupInterval(tt.interval))
			c := &client{t: t, h: srv.Handler()}

			require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/users", "").Code)
			d, _ := cat.Dataset(catalog.Users)
			d.Records = d.Records[:3]

			rec := c.do(http.MethodGet, "/api/users", "")
			var data types.PaginatedData[types.Record]
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
			assert.Equal(t, tt.want, data.Total)
		})
	}
}

func TestListAPIFetchError(t *testing.T) {
	cat, err := catalog.New(catalog.WithLatency(time.Hour))
	require.NoError(t, err)
	srv := New(registry.Builtin(), cat, nil, WithFetchTimeout(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/users?filter[role]=admin", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var ev ErrorView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "/api/users?filter[role]=admin", ev.Retry)
	assert.NotEmpty(t, ev.Error)
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/arthur-debert/querysync/querysync/codec"
	"github.com/arthur-debert/querysync/querysync/metrics"
	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/store"
	"github.com/arthur-debert/querysync/querysync/urlsync"
	"github.com/arthur-debert/querysync/querysync/view"
	"github.com/arthur-debert/querysync/types"
)

// ErrorView is the body of a failed request. Retry is the URL to request
// again.
type ErrorView struct {
	Error string `json:"error"`
	Retry string `json:"retry,omitempty"`
}

// PageView is the body of a page route
type PageView struct {
	Path            string                             `json:"path"`
	Query           string                             `json:"query"`
	Params          types.Params                       `json:"params"`
	Layout          any                                `json:"layout,omitempty"`
	Tab             any                                `json:"tab,omitempty"`
	Data            *types.PaginatedData[types.Record] `json:"data,omitempty"`
	Error           *ErrorView                         `json:"error,omitempty"`
	Pages           []view.PageItem                    `json:"pages"`
	TotalPages      int                                `json:"totalPages"`
	SortOptions     []view.SortOption                  `json:"sortOptions"`
	PageSizeOptions []int                              `json:"pageSizeOptions"`
}

// StateView is the body of GET /state{path}
type StateView struct {
	Path   string       `json:"path"`
	State  types.Params `json:"state"`
	Params types.Params `json:"params"`
	URL    string       `json:"url"`
}

// stateRequest is the body of POST /state{path}: either a single key and
// value, or a map of updates
type stateRequest struct {
	Key     string       `json:"key"`
	Value   any          `json:"value"`
	Updates types.Params `json:"updates"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, retry string) {
	writeJSON(w, code, ErrorView{Error: msg, Retry: retry})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// notReady answers 503 and tells the client to come back shortly
func notReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, "query state is loading", r.URL.RequestURI())
}

// handlePage runs the request URL through the session store. A URL that is
// not canonical for the resulting state is redirected; a canonical one gets
// the page view.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	path := registry.NormalizePath(r.URL.Path)
	if !s.reg.Has(path) {
		writeError(w, http.StatusNotFound, "unknown route "+r.URL.Path, "")
		return
	}

	sess := s.session(w, r)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.waitReady(r.Context(), sess.store) {
		notReady(w, r)
		return
	}

	nav := &urlsync.Recorder{}
	sync := urlsync.New(sess.store, nav, urlsync.WithLogger(s.logger))
	defer sync.Close()

	canonical := sync.OnURLChange(r.URL.RequestURI())
	if _, replaced := nav.Last(); replaced {
		http.Redirect(w, r, canonical, http.StatusSeeOther)
		return
	}

	writeJSON(w, http.StatusOK, s.pageView(r.Context(), sess.store, path, canonical))
}

func (s *Server) pageView(ctx context.Context, st *store.Store, path, canonical string) PageView {
	effective, _ := st.EffectiveParams(path)
	api, _ := st.APIParams(path)
	pv := PageView{
		Path:            path,
		Query:           codec.Encode(st.QueryState(path)),
		Params:          effective,
		Layout:          effective["layout"],
		Tab:             effective["tab"],
		Pages:           []view.PageItem{},
		SortOptions:     []view.SortOption{},
		PageSizeOptions: view.PageSizeOptions,
	}

	name := s.reg.Dataset(path)
	if name == "" {
		return pv
	}
	if d, ok := s.catalog.Dataset(name); ok {
		pv.SortOptions = view.SortOptions(d.SortKeys, api.Sorts)
	}

	data, err := s.fetch(ctx, name, api)
	if err != nil {
		s.logger.Error("failed to fetch page data", "path", path, "dataset", name, "error", err)
		pv.Error = &ErrorView{Error: err.Error(), Retry: canonical}
		return pv
	}
	pv.Data = &data
	pv.TotalPages = view.TotalPages(data.Total, api.Pagination.PageSize)
	if pages := view.PageNumbers(api.Pagination.Page, pv.TotalPages); pages != nil {
		pv.Pages = pages
	}
	return pv
}

// handleList serves GET /api/{dataset}. Only the reserved keys of the query
// are read; malformed values heal to their defaults.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("dataset")
	if _, ok := s.catalog.Dataset(name); !ok {
		writeError(w, http.StatusNotFound, "unknown dataset "+name, "")
		return
	}

	decoded := params.Sanitize(codec.Decode(r.URL.RawQuery), types.APIKeys)
	api := params.APIParamsFrom(decoded)
	data, err := s.fetch(r.Context(), name, api)
	if err != nil {
		s.logger.Error("failed to fetch dataset", "dataset", name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error(), r.URL.RequestURI())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// fetch returns a page of a dataset. Identical requests within the dedup
// interval share one result; concurrent identical requests share one fetch.
// The shared fetch is detached from ctx and bounded by the fetch timeout;
// ctx only ends this caller's wait.
func (s *Server) fetch(ctx context.Context, name string, api types.APIParams) (types.PaginatedData[types.Record], error) {
	key := "/api/" + name + "?" + codec.Encode(params.FromAPIParams(api))
	if s.responses != nil {
		if item := s.responses.Get(key); item != nil {
			metrics.RecordCacheHit()
			return item.Value(), nil
		}
	}
	metrics.RecordCacheMiss()

	ch := s.inflight.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		start := time.Now()
		data, err := s.catalog.Fetch(fetchCtx, name, api)
		metrics.RecordFetch(name, time.Since(start), err)
		if err != nil {
			return nil, err
		}
		if s.responses != nil {
			s.responses.Set(key, data, ttlcache.DefaultTTL)
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return types.PaginatedData[types.Record]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return types.PaginatedData[types.Record]{}, res.Err
		}
		return res.Val.(types.PaginatedData[types.Record]), nil
	}
}

// statePath maps the {path...} wildcard of the state routes to a route path
func (s *Server) statePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := registry.NormalizePath("/" + r.PathValue("path"))
	if !s.reg.Has(path) {
		writeError(w, http.StatusNotFound, "unknown route "+path, "")
		return "", false
	}
	return path, true
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	path, ok := s.statePath(w, r)
	if !ok {
		return
	}
	sess := s.session(w, r)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.waitReady(r.Context(), sess.store) {
		notReady(w, r)
		return
	}

	state := sess.store.QueryState(path)
	effective, _ := sess.store.EffectiveParams(path)
	writeJSON(w, http.StatusOK, StateView{
		Path:   path,
		State:  state,
		Params: effective,
		URL:    codec.BuildURL(path, state),
	})
}

// handleSetState applies a mutation and redirects to the URL of the new
// state. A mutation that changes nothing answers 204.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	path, ok := s.statePath(w, r)
	if !ok {
		return
	}
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return
	}
	if req.Key == "" && req.Updates == nil {
		writeError(w, http.StatusBadRequest, `request needs "key" or "updates"`, "")
		return
	}

	s.mutate(w, r, path, func(sync *urlsync.Synchronizer) {
		if req.Key != "" {
			sync.SetParam(req.Key, req.Value)
			return
		}
		sync.UpdateQueryState(req.Updates)
	})
}

func (s *Server) handleResetState(w http.ResponseWriter, r *http.Request) {
	path, ok := s.statePath(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, path, func(sync *urlsync.Synchronizer) {
		sync.Reset()
	})
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, path string, fn func(*urlsync.Synchronizer)) {
	sess := s.session(w, r)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.waitReady(r.Context(), sess.store) {
		notReady(w, r)
		return
	}

	nav := &urlsync.Recorder{}
	sync := urlsync.New(sess.store, nav, urlsync.WithLogger(s.logger), urlsync.WithPath(path))
	defer sync.Close()

	fn(sync)
	last, changed := nav.Last()
	if !changed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, last.URL, http.StatusSeeOther)
}

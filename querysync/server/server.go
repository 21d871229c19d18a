// Package server serves the list views over HTTP.
//
// Every browser session owns a query state store persisted under its own
// key. Page routes run the URL through the session's store and redirect to
// the canonical URL when it differs; otherwise they answer with a JSON view
// of the effective parameters and the page of data they select. State
// routes mutate a store and redirect to the URL of the new state.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/arthur-debert/querysync/querysync/catalog"
	"github.com/arthur-debert/querysync/querysync/metrics"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/storage"
	"github.com/arthur-debert/querysync/types"
)

// Defaults for the server options
const (
	DefaultDedupInterval   = 2 * time.Second
	DefaultSessionTTL      = 30 * time.Minute
	DefaultReadyWait       = 2 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
)

// Server is the HTTP front end of the query state stores
type Server struct {
	reg     *registry.Registry
	catalog *catalog.Catalog
	storage storage.Storage
	logger  *slog.Logger

	dedupInterval   time.Duration
	sessionTTL      time.Duration
	readyWait       time.Duration
	hydrateTimeout  time.Duration
	shutdownTimeout time.Duration
	fetchTimeout    time.Duration

	sessionMu sync.Mutex
	sessions  *ttlcache.Cache[string, *session]
	active    atomic.Int64
	responses *ttlcache.Cache[string, types.PaginatedData[types.Record]]
	inflight  singleflight.Group

	handler http.Handler
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDedupInterval sets how long identical list responses are reused.
// Zero disables the response cache.
func WithDedupInterval(d time.Duration) Option {
	return func(s *Server) {
		s.dedupInterval = d
	}
}

// WithSessionTTL sets how long an idle session's store stays in memory.
// Evicted sessions are rebuilt from storage on their next request.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) {
		s.sessionTTL = d
	}
}

// WithReadyWait sets how long a request waits for its store to hydrate
// before it is answered with 503
func WithReadyWait(d time.Duration) Option {
	return func(s *Server) {
		s.readyWait = d
	}
}

// WithHydrateTimeout bounds the persisted state load of a new session
func WithHydrateTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.hydrateTimeout = d
	}
}

// WithFetchTimeout bounds a shared dataset fetch. The fetch outlives the
// request that started it, so that other requests waiting on it are not
// failed by that request going away.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.fetchTimeout = d
	}
}

// WithShutdownTimeout bounds the graceful shutdown in Run
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// New creates a server over reg and cat. Session stores persist to st; a
// nil st keeps them in memory only.
func New(reg *registry.Registry, cat *catalog.Catalog, st storage.Storage, opts ...Option) *Server {
	s := &Server{
		reg:             reg,
		catalog:         cat,
		storage:         st,
		logger:          slog.Default(),
		dedupInterval:   DefaultDedupInterval,
		sessionTTL:      DefaultSessionTTL,
		readyWait:       DefaultReadyWait,
		hydrateTimeout:  10 * time.Second,
		shutdownTimeout: DefaultShutdownTimeout,
		fetchTimeout:    DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sessions = ttlcache.New(ttlcache.WithTTL[string, *session](s.sessionTTL))
	s.sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *session]) {
		s.logger.Debug("session evicted", "session", item.Key(), "reason", reason)
		metrics.SetActiveSessions(int(s.active.Add(-1)))
	})
	if s.dedupInterval > 0 {
		s.responses = ttlcache.New(
			ttlcache.WithTTL[string, types.PaginatedData[types.Record]](s.dedupInterval),
			ttlcache.WithDisableTouchOnHit[string, types.PaginatedData[types.Record]](),
		)
	}

	metrics.Register()
	s.handler = s.routes()
	return s
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.sessions.Start()
		return nil
	})
	if s.responses != nil {
		g.Go(func() error {
			s.responses.Start()
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("server shutting down")
		s.sessions.Stop()
		if s.responses != nil {
			s.responses.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/{dataset}", s.handleList)
	mux.HandleFunc("GET /state/{path...}", s.handleGetState)
	mux.HandleFunc("POST /state/{path...}", s.handleSetState)
	mux.HandleFunc("DELETE /state/{path...}", s.handleResetState)
	mux.HandleFunc("GET /", s.handlePage)
	return s.instrument(mux)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(route, sw.code)
		s.logger.Debug("request served",
			"method", r.Method,
			"uri", r.URL.RequestURI(),
			"status", sw.code,
			"elapsed", time.Since(start))
	})
}

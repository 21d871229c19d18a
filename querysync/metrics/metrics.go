// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "querysync"

// Registry holds every querysync collector plus the Go and process
// collectors. It is separate from prometheus.DefaultRegisterer so tests can
// gather it in isolation.
var Registry = prometheus.NewRegistry()

var (
	stateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Count of query state changes by origin.",
		},
		[]string{"origin"},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_fetch_duration_seconds",
			Help:      "Latency of dataset fetches by dataset and result.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"dataset", "result"},
	)
	responseCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_total",
			Help:      "Count of list responses served from the dedup cache (hit) or computed (miss).",
		},
		[]string{"result"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions with a store held in memory.",
		},
	)
	hydrateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hydrate_failures_total",
			Help:      "Count of persisted state loads that failed and were skipped.",
		},
	)
)

var registerMetrics sync.Once

// Register registers all metrics with Registry. It is safe to call more
// than once.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(
			stateChanges,
			requests,
			fetchDuration,
			responseCache,
			activeSessions,
			hydrateFailures,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves Registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordStateChange counts a query state change
func RecordStateChange(origin string) {
	stateChanges.WithLabelValues(origin).Inc()
}

// RecordRequest counts a served request
func RecordRequest(route string, code int) {
	requests.WithLabelValues(route, statusLabel(code)).Inc()
}

// RecordFetch observes a dataset fetch
func RecordFetch(dataset string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fetchDuration.WithLabelValues(dataset, result).Observe(elapsed.Seconds())
}

// RecordCacheHit counts a list response served from the dedup cache
func RecordCacheHit() {
	responseCache.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a list response that had to be computed
func RecordCacheMiss() {
	responseCache.WithLabelValues("miss").Inc()
}

// SetActiveSessions sets the number of in-memory sessions
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordHydrateFailure counts a failed persisted state load
func RecordHydrateFailure() {
	hydrateFailures.Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

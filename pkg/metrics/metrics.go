// Package metrics provides Prometheus metrics for the cohort dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dashboard"

// Manager owns the service's Prometheus metrics and their registry.
type Manager struct {
	registry *prometheus.Registry

	// Aggregation metrics
	aggregations     prometheus.Counter
	aggregationErrs  prometheus.Counter
	batchFetchTime   prometheus.Histogram
	batchFetchErrors prometheus.Counter

	// Auth gate metrics
	roleRejections   prometheus.Counter
	sessionRefreshes prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Manager with its own registry.
func New(namespace string) *Manager {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Manager{
		registry: registry,

		aggregations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_aggregations_total",
			Help:      "Completed leaderboard aggregations.",
		}),
		aggregationErrs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_aggregation_errors_total",
			Help:      "Leaderboard aggregations that failed with a fetch error.",
		}),
		batchFetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_fetch_duration_seconds",
			Help:      "Latency of individual batch queries against the table store.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_fetch_errors_total",
			Help:      "Individual batch queries that failed.",
		}),

		roleRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_role_rejections_total",
			Help:      "Sessions force-signed-out because of a role mismatch.",
		}),
		sessionRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_session_refreshes_total",
			Help:      "Successful access token rotations.",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// RecordAggregation counts one aggregation outcome.
func (m *Manager) RecordAggregation(err bool) {
	if m == nil {
		return
	}
	if err {
		m.aggregationErrs.Inc()
		return
	}
	m.aggregations.Inc()
}

// RecordBatchFetch records one batch query.
func (m *Manager) RecordBatchFetch(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.batchFetchTime.Observe(d.Seconds())
	if failed {
		m.batchFetchErrors.Inc()
	}
}

// RecordRoleRejection counts a forced sign-out.
func (m *Manager) RecordRoleRejection() {
	if m == nil {
		return
	}
	m.roleRejections.Inc()
}

// RecordSessionRefresh counts a token rotation.
func (m *Manager) RecordSessionRefresh() {
	if m == nil {
		return
	}
	m.sessionRefreshes.Inc()
}

// RecordHTTPRequest records one served request.
func (m *Manager) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler returns the scrape endpoint handler for this manager's registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

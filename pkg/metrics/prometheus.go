// Package metrics provides Prometheus metrics for the surgilog record service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets suit in-memory and single-row database operations, in milliseconds.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250} //nolint:gochecknoglobals // constant bucket layout

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Lifecycle
	transitions       *prometheus.CounterVec
	transitionLatency *prometheus.HistogramVec
	recordsCreated    prometheus.Counter
	idempotentReplays prometheus.Counter
	recordsTracked    prometheus.Gauge

	// Analytics
	analyticsQueries *prometheus.CounterVec
	analyticsLatency *prometheus.HistogramVec
	analyticsSkipped *prometheus.CounterVec

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "surgilog",
		subsystem:        "records",
		histogramBuckets: latencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collector definitions
	auto := promauto.With(m.registry)

	m.transitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transitions_total",
		Help:      "Lifecycle transitions by name and outcome (ok or error kind)",
	}, []string{"transition", "outcome"})

	m.transitionLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transition_latency_milliseconds",
		Help:      "Load-apply-save latency of lifecycle transitions in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"transition"})

	m.recordsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "created_total",
		Help:      "Total number of records created",
	})

	m.idempotentReplays = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "idempotent_replays_total",
		Help:      "Create requests answered from the idempotency cache",
	})

	m.recordsTracked = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked",
		Help:      "Number of non-deleted records in the store",
	})

	m.analyticsQueries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "analytics",
		Name:      "queries_total",
		Help:      "Analytics projections computed, by projection",
	}, []string{"projection"})

	m.analyticsLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "analytics",
		Name:      "query_latency_milliseconds",
		Help:      "Analytics projection latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"projection"})

	m.analyticsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "analytics",
		Name:      "skipped_records_total",
		Help:      "Records left out of projections because their surgery could not be resolved",
	}, []string{"projection"})

	m.repositoryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "repository",
		Name:      "operation_latency_milliseconds",
		Help:      "Store operation latency in milliseconds, by driver and operation",
		Buckets:   m.histogramBuckets,
	}, []string{"driver", "operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "HTTP error responses by endpoint, method and error code",
	}, []string{"endpoint", "method", "code"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Number of goroutines",
	})
}

// RecordTransition counts a transition attempt with its outcome.
func RecordTransition(transition, outcome string) {
	globalManager.transitions.WithLabelValues(transition, outcome).Inc()
}

// RecordTransitionLatency records a transition's latency in milliseconds.
func RecordTransitionLatency(transition string, latencyMs float64) {
	globalManager.transitionLatency.WithLabelValues(transition).Observe(latencyMs)
}

// RecordRecordCreated increments the created-records counter.
func RecordRecordCreated() {
	globalManager.recordsCreated.Inc()
}

// RecordIdempotentReplay increments the idempotent replay counter.
func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

// UpdateRecordsTracked sets the number of live records.
func UpdateRecordsTracked(count int) {
	globalManager.recordsTracked.Set(float64(count))
}

// RecordAnalyticsQuery counts a projection and records its latency.
func RecordAnalyticsQuery(projection string, latencyMs float64) {
	globalManager.analyticsQueries.WithLabelValues(projection).Inc()
	globalManager.analyticsLatency.WithLabelValues(projection).Observe(latencyMs)
}

// RecordAnalyticsSkipped adds n skipped records for a projection.
func RecordAnalyticsSkipped(projection string, n int) {
	if n <= 0 {
		return
	}
	globalManager.analyticsSkipped.WithLabelValues(projection).Add(float64(n))
}

// RecordRepositoryLatency records a store operation latency in milliseconds.
func RecordRepositoryLatency(driver, operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(driver, operation).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error response with its code.
func RecordErrorByEndpoint(endpoint, method, code string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, code).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Connection states exported by the connection state gauge
var connectionStates = []string{"connecting", "connected", "error"}

// Metrics holds all Prometheus metrics for the console
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec
	DocumentsTotal       *prometheus.GaugeVec
	ConnectionState      *prometheus.GaugeVec

	// Report API metrics
	ReportRequestsTotal          *prometheus.CounterVec
	ReportRequestDurationSeconds *prometheus.HistogramVec

	// Auth
	LoginAttemptsTotal     *prometheus.CounterVec
	RateLimitExceededTotal prometheus.Counter
	LiveClients            prometheus.Gauge

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techsupport_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "techsupport_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techsupport_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techsupport_store_operations_total",
				Help: "Total number of document store writes",
			},
			[]string{"collection", "op", "result"},
		),
		DocumentsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "techsupport_documents",
				Help: "Number of documents per collection",
			},
			[]string{"collection"},
		),
		ConnectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "techsupport_store_connection_state",
				Help: "Document store connection state (1 for the current state)",
			},
			[]string{"state"},
		),

		ReportRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techsupport_report_requests_total",
				Help: "Total number of report API requests",
			},
			[]string{"operation", "result"},
		),
		ReportRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "techsupport_report_request_duration_seconds",
				Help:    "Report API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techsupport_login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"result"},
		),
		RateLimitExceededTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "techsupport_ratelimit_exceeded_total",
				Help: "Total number of rejected login attempts due to rate limiting",
			},
		),
		LiveClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "techsupport_live_clients",
				Help: "Number of connected live update clients",
			},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "techsupport_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "techsupport_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "techsupport_storage_used_bytes",
				Help: "Document store file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.StoreOperationsTotal,
		m.DocumentsTotal,
		m.ConnectionState,
		m.ReportRequestsTotal,
		m.ReportRequestDurationSeconds,
		m.LoginAttemptsTotal,
		m.RateLimitExceededTotal,
		m.LiveClients,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// SetConnectionState marks state as the current store connection state
func SetConnectionState(state string) {
	m := Global()
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

// ObserveReportRequest records a report API call
func ObserveReportRequest(operation, result string, seconds float64) {
	m := Global()
	if m == nil {
		return
	}
	m.ReportRequestsTotal.WithLabelValues(operation, result).Inc()
	m.ReportRequestDurationSeconds.WithLabelValues(operation).Observe(seconds)
}

// IncLoginAttempts increments the login attempt counter
func IncLoginAttempts(result string) {
	m := Global()
	if m != nil {
		m.LoginAttemptsTotal.WithLabelValues(result).Inc()
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded() {
	m := Global()
	if m != nil {
		m.RateLimitExceededTotal.Inc()
	}
}

// AddLiveClients adjusts the live client gauge by delta
func AddLiveClients(delta float64) {
	m := Global()
	if m != nil {
		m.LiveClients.Add(delta)
	}
}

package observability

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for Mingafix
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database metrics
	dbQueriesTotal    *prometheus.CounterVec
	dbQueryDuration   *prometheus.HistogramVec
	dbConnections     prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
	dbConnectionsMax  prometheus.Gauge

	// Report metrics
	reportsCreatedTotal  *prometheus.CounterVec
	duplicatesTotal      *prometheus.CounterVec
	statusUpdatesTotal   *prometheus.CounterVec
	statusConflictsTotal prometheus.Counter
	dedupCheckFailures   prometheus.Counter
	statsComputeFailures prometheus.Counter

	// Rate limiting metrics
	rateLimitRejectedTotal *prometheus.CounterVec
	rateLimitStoreErrors   prometheus.Counter

	// Storage metrics
	storageOperationsTotal   *prometheus.CounterVec
	storageOperationDuration *prometheus.HistogramVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		// HTTP metrics
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mingafix_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mingafix_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mingafix_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Database metrics
		dbQueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mingafix_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		dbQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mingafix_db_query_duration_seconds",
				Help:    "Database query latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "table"},
		),
		dbConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mingafix_db_connections",
				Help: "Current number of database connections",
			},
		),
		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mingafix_db_connections_idle",
				Help: "Current number of idle database connections",
			},
		),
		dbConnectionsMax: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mingafix_db_connections_max",
				Help: "Maximum number of database connections",
			},
		),

		// Report metrics
		reportsCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mingafix_reports_created_total",
				Help: "Total number of reports created",
			},
			[]string{"category"},
		),
		duplicatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mingafix_reports_duplicates_total",
				Help: "Total number of report submissions rejected as duplicates",
			},
			[]string{"category"},
		),
		statusUpdatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mingafix_report_status_updates_total",
				Help: "Total number of report status updates",
			},
			[]string{"status"},
		),
		statusConflictsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mingafix_report_status_conflicts_total",
				Help: "Total number of version conflicts during status updates",
			},
		),
		dedupCheckFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mingafix_dedup_check_failures_total",
				Help: "Total number of duplicate checks skipped because the store failed",
			},
		),
		statsComputeFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mingafix_stats_compute_failures_total",
				Help: "Total number of statistics computations that fell back to empty",
			},
		),

		// Rate limiting metrics
		rateLimitRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mingafix_rate_limit_rejected_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
		rateLimitStoreErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mingafix_rate_limit_store_errors_total",
				Help: "Total number of rate limit store failures (requests admitted open)",
			},
		),

		// Storage metrics
		storageOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mingafix_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "bucket", "status"},
		),
		storageOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mingafix_storage_operation_duration_seconds",
				Help:    "Storage operation latency in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "bucket"},
		),

		// System metrics
		systemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mingafix_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}

	return m
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueriesTotal.WithLabelValues(operation, table).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDBStats updates database connection pool stats
func (m *Metrics) UpdateDBStats(total, idle, max int32) {
	m.dbConnections.Set(float64(total))
	m.dbConnectionsIdle.Set(float64(idle))
	m.dbConnectionsMax.Set(float64(max))
}

// RecordReportCreated records a successfully created report
func (m *Metrics) RecordReportCreated(category string) {
	m.reportsCreatedTotal.WithLabelValues(category).Inc()
}

// RecordDuplicate records a submission rejected as a duplicate
func (m *Metrics) RecordDuplicate(category string) {
	m.duplicatesTotal.WithLabelValues(category).Inc()
}

// RecordStatusUpdate records a report status transition
func (m *Metrics) RecordStatusUpdate(status string) {
	m.statusUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordStatusConflict records a version conflict during a status update
func (m *Metrics) RecordStatusConflict() {
	m.statusConflictsTotal.Inc()
}

// RecordDedupCheckFailure records a duplicate check that was skipped
// because the report store returned an error.
func (m *Metrics) RecordDedupCheckFailure() {
	m.dedupCheckFailures.Inc()
}

// RecordStatsComputeFailure records a statistics computation that fell
// back to an empty result.
func (m *Metrics) RecordStatsComputeFailure() {
	m.statsComputeFailures.Inc()
}

// RecordRateLimitRejection records a request rejected by the rate limiter
func (m *Metrics) RecordRateLimitRejection(endpoint string) {
	m.rateLimitRejectedTotal.WithLabelValues(endpoint).Inc()
}

// RecordRateLimitStoreError records a rate limit store failure
func (m *Metrics) RecordRateLimitStoreError() {
	m.rateLimitStoreErrors.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, bucket string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.storageOperationsTotal.WithLabelValues(operation, bucket, status).Inc()
	m.storageOperationDuration.WithLabelValues(operation, bucket).Observe(duration.Seconds())
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// normalizePath groups report detail paths under a placeholder so the
// path label stays low-cardinality.
func normalizePath(path string) string {
	if rest, ok := strings.CutPrefix(path, "/reports/"); ok && rest != "" && rest != "nearby" {
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return "/reports/:id" + rest[idx:]
		}
		return "/reports/:id"
	}
	if strings.HasPrefix(path, "/storage/") {
		return "/storage/:bucket/:key"
	}
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Execution metrics
	ExecutionsStarted    prometheus.Counter
	ExecutionTransitions *prometheus.CounterVec
	StepsDispatched      *prometheus.CounterVec
	DispatchDuration     prometheus.Histogram
	DispatchRetries      prometheus.Counter
	ComplianceBlocks     *prometheus.CounterVec
	ComplianceScore      *prometheus.HistogramVec

	// Sweeper metrics
	SweepsTotal   prometheus.Counter
	SweepDuration prometheus.Histogram
	SweepErrors   prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec

	// Lock metrics
	LockAcquisitions *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every metric on reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		ExecutionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "followup_executions_started_total",
			Help: "Total number of sequence executions started",
		}),
		ExecutionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_execution_transitions_total",
				Help: "Execution status transitions by target status",
			},
			[]string{"status"},
		),
		StepsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_steps_dispatched_total",
				Help: "Steps handed to the mail provider",
			},
			[]string{"result"}, // sent, failed
		),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "followup_dispatch_duration_seconds",
			Help:    "Mail provider call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DispatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "followup_dispatch_retries_total",
			Help: "Dispatch attempts retried after a transient failure",
		}),
		ComplianceBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_compliance_blocks_total",
				Help: "Steps blocked by the tone gate",
			},
			[]string{"tier"},
		),
		ComplianceScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "followup_compliance_score",
				Help:    "Cultural score of rendered steps",
				Buckets: []float64{40, 50, 60, 70, 80, 85, 90, 95, 100},
			},
			[]string{"tier"},
		),

		SweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "followup_sweeps_total",
			Help: "Sweeper runs",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "followup_sweep_duration_seconds",
			Help:    "Sweeper run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "followup_sweep_errors_total",
			Help: "Executions that errored during a sweep",
		}),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),

		LockAcquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_lock_acquisitions_total",
				Help: "Execution lock attempts",
			},
			[]string{"backend", "result"}, // redis|local, acquired|contended
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /api/v1/executions/:id/continue

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// RecordExecutionStarted increments executions started counter
func (m *Metrics) RecordExecutionStarted() {
	if m == nil {
		return
	}
	m.ExecutionsStarted.Inc()
}

// RecordTransition counts an execution entering status
func (m *Metrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.ExecutionTransitions.WithLabelValues(status).Inc()
}

// RecordDispatch records one provider call
func (m *Metrics) RecordDispatch(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "sent"
	}
	m.StepsDispatched.WithLabelValues(result).Inc()
	m.DispatchDuration.Observe(duration.Seconds())
}

// RecordDispatchRetry increments dispatch retries counter
func (m *Metrics) RecordDispatchRetry() {
	if m == nil {
		return
	}
	m.DispatchRetries.Inc()
}

// RecordCompliance observes a score and counts blocked steps
func (m *Metrics) RecordCompliance(tier string, score int, blocked bool) {
	if m == nil {
		return
	}
	m.ComplianceScore.WithLabelValues(tier).Observe(float64(score))
	if blocked {
		m.ComplianceBlocks.WithLabelValues(tier).Inc()
	}
}

// RecordSweep records a sweeper run
func (m *Metrics) RecordSweep(duration time.Duration, errored int) {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepErrors.Add(float64(errored))
}

// RecordDBQuery records database query duration
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLock counts a lock attempt
func (m *Metrics) RecordLock(backend string, acquired bool) {
	if m == nil {
		return
	}
	result := "contended"
	if acquired {
		result = "acquired"
	}
	m.LockAcquisitions.WithLabelValues(backend, result).Inc()
}

package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for lifecycle runs.
// Every method is safe on a nil or disabled *Metrics.
type Metrics struct {
	config MetricsConfig

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	adapterCalls  *prometheus.CounterVec
	adapterErrors *prometheus.CounterVec

	verificationPolls *prometheus.CounterVec
	resourcesByState  *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of lifecycle runs started",
			},
			[]string{"provider"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of lifecycle runs completed, by final state",
			},
			[]string{"state"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of lifecycle runs in seconds",
				Buckets:   buckets,
			},
			[]string{"state"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of recorded operation results",
			},
			[]string{"step", "kind", "success"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of recorded operations in seconds",
				Buckets:   buckets,
			},
			[]string{"step", "kind"},
		),

		adapterCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_calls_total",
				Help:      "Total number of resource adapter calls",
			},
			[]string{"operation"},
		),
		adapterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_errors_total",
				Help:      "Total number of resource adapter errors",
			},
			[]string{"operation"},
		),

		verificationPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_polls_total",
				Help:      "Total number of Describe polls issued by the verifier",
			},
			[]string{"kind", "expected"},
		),
		resourcesByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources",
				Help:      "Current number of tracked resources by kind and state",
			},
			[]string{"kind", "state"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.activeRuns,
		m.operations,
		m.operationDuration,
		m.adapterCalls,
		m.adapterErrors,
		m.verificationPolls,
		m.resourcesByState,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(provider string) {
	if !m.enabled() {
		return
	}
	m.runsStarted.WithLabelValues(provider).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its final state and duration.
func (m *Metrics) RecordRunCompleted(state string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(state).Inc()
	m.runDuration.WithLabelValues(state).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordOperation records one OperationResult.
func (m *Metrics) RecordOperation(step, kind string, success bool, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.operations.WithLabelValues(step, kind, strconv.FormatBool(success)).Inc()
	m.operationDuration.WithLabelValues(step, kind).Observe(duration.Seconds())
}

// RecordAdapterCall counts a call into the resource adapter.
func (m *Metrics) RecordAdapterCall(operation string) {
	if !m.enabled() {
		return
	}
	m.adapterCalls.WithLabelValues(operation).Inc()
}

// RecordAdapterError counts a failed adapter call.
func (m *Metrics) RecordAdapterError(operation string) {
	if !m.enabled() {
		return
	}
	m.adapterErrors.WithLabelValues(operation).Inc()
}

// RecordVerificationPoll counts one Describe poll.
func (m *Metrics) RecordVerificationPoll(kind, expected string) {
	if !m.enabled() {
		return
	}
	m.verificationPolls.WithLabelValues(kind, expected).Inc()
}

// TrackResourceTransition moves one resource between state gauges.
// An empty from means the resource was just registered.
func (m *Metrics) TrackResourceTransition(kind, from, to string) {
	if !m.enabled() {
		return
	}
	if from != "" {
		m.resourcesByState.WithLabelValues(kind, from).Dec()
	}
	m.resourcesByState.WithLabelValues(kind, to).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves the metrics endpoint on ListenAddress in the background.
// It returns nil when metrics are disabled or no address is configured.
func (m *Metrics) StartMetricsServer(logger *Logger) *http.Server {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return server
}

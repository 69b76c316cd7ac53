package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/queryhub/queryhub/pkg/engine"
)

// Metrics provides Prometheus metrics for queryhub. It implements
// engine.MetricsRecorder; a disabled instance is a safe no-op.
type Metrics struct {
	config MetricsConfig

	reportsStarted   *prometheus.CounterVec
	reportsCompleted *prometheus.CounterVec
	reportDuration   *prometheus.HistogramVec

	componentsCompleted *prometheus.CounterVec
	componentDuration   *prometheus.HistogramVec
	componentAttempts   *prometheus.HistogramVec

	errorsByCode *prometheus.CounterVec

	activeReports prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When cfg.Enabled is false the
// returned instance records nothing and Handler serves 404.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		reportsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_started_total",
				Help:      "Total number of report executions started",
			},
			[]string{"report"},
		),
		reportsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_completed_total",
				Help:      "Total number of report executions completed",
			},
			[]string{"report", "status"},
		),
		reportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_duration_seconds",
				Help:      "Wall-clock duration of report executions in seconds",
				Buckets:   buckets,
			},
			[]string{"report", "status"},
		),

		componentsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "components_completed_total",
				Help:      "Total number of component executions completed",
			},
			[]string{"report", "status"},
		),
		componentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "component_duration_seconds",
				Help:      "Duration of component executions in seconds, retries included",
				Buckets:   buckets,
			},
			[]string{"report"},
		),
		componentAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "component_attempts",
				Help:      "Query attempts per component execution",
				Buckets:   []float64{1, 2, 3, 4, 5, 10},
			},
			[]string{"report"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeReports: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_reports",
				Help:      "Current number of in-flight report executions",
			},
		),
	}

	registry.MustRegister(
		m.reportsStarted,
		m.reportsCompleted,
		m.reportDuration,
		m.componentsCompleted,
		m.componentDuration,
		m.componentAttempts,
		m.errorsByCode,
		m.activeReports,
	)

	return m, nil
}

// ReportStarted implements engine.MetricsRecorder.
func (m *Metrics) ReportStarted(reportID string) {
	if m.reportsStarted == nil {
		return
	}
	m.reportsStarted.WithLabelValues(reportID).Inc()
	m.activeReports.Inc()
}

// ReportCompleted implements engine.MetricsRecorder.
func (m *Metrics) ReportCompleted(reportID string, status engine.RunStatus, duration time.Duration) {
	if m.reportsCompleted == nil {
		return
	}
	m.reportsCompleted.WithLabelValues(reportID, string(status)).Inc()
	m.reportDuration.WithLabelValues(reportID, string(status)).Observe(duration.Seconds())
	m.activeReports.Dec()
}

// ComponentCompleted implements engine.MetricsRecorder.
func (m *Metrics) ComponentCompleted(reportID, componentID string, status engine.ComponentStatus, attempts int, duration time.Duration) {
	if m.componentsCompleted == nil {
		return
	}
	m.componentsCompleted.WithLabelValues(reportID, string(status)).Inc()
	m.componentDuration.WithLabelValues(reportID).Observe(duration.Seconds())
	m.componentAttempts.WithLabelValues(reportID).Observe(float64(attempts))
}

// RecordError counts an error by its classification code.
func (m *Metrics) RecordError(code string) {
	if m.errorsByCode == nil {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer exposes the metrics endpoint on the configured address. The
// server runs until the process exits.
func (m *Metrics) StartServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

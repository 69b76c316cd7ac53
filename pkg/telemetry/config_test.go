package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/queryhub/queryhub/pkg/engine"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}},
		{"sampling rate out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Must not panic without a registry.
	m.ReportStarted("r")
	m.ReportCompleted("r", engine.RunStatusSucceeded, time.Second)
	m.ComponentCompleted("r", "c", engine.ComponentStatusSucceeded, 1, time.Second)
	m.RecordError(engine.ErrCodeTimeout)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	if recorder.Code != 404 {
		t.Errorf("disabled metrics must serve 404, got %d", recorder.Code)
	}
}

func TestMetricsRecordsOutcomes(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "queryhub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.ReportStarted("daily")
	m.ComponentCompleted("daily", "errors", engine.ComponentStatusSucceeded, 2, 300*time.Millisecond)
	m.ReportCompleted("daily", engine.RunStatusSucceeded, time.Second)
	m.RecordError(engine.ErrCodeProviderExecution)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	if recorder.Code != 200 {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	for _, want := range []string{
		"queryhub_reports_started_total",
		"queryhub_reports_completed_total",
		"queryhub_components_completed_total",
		"queryhub_errors_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestNewTracerDisabled(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: false}, "queryhub", "test", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracer.Tracer() == nil {
		t.Fatal("expected a usable no-op tracer")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown must succeed: %v", err)
	}
}

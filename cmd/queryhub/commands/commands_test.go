package commands

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunCommandFlags(t *testing.T) {
	cmd := newRunCommand()
	for _, name := range []string{"output", "trace-exporter", "trace-endpoint", "metrics-addr"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("run command missing flag %q", name)
		}
	}
}

func TestValidateCommandFlags(t *testing.T) {
	if newValidateCommand().Flags().Lookup("watch") == nil {
		t.Error("validate command missing flag \"watch\"")
	}
}

func TestNewMetricsServesRegistry(t *testing.T) {
	metrics, err := newMetrics("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	metrics.ReportStarted("daily-health")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint to serve, got %d", rec.Code)
	}
}

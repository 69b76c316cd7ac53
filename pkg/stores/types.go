package stores

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/queryhub/queryhub/pkg/engine"
)

// Run is one persisted report execution.
type Run struct {
	// ID is the run identifier assigned by the executor.
	ID string

	// ReportID identifies the executed report.
	ReportID string

	// Status is the terminal run status.
	Status string

	// SuccessCount and FailureCount summarize component outcomes.
	SuccessCount int
	FailureCount int

	// Document is the assembled report document, empty when no template
	// engine was configured.
	Document string

	// Components holds the per-component results serialized as JSON.
	Components string

	// Error carries a report-level error message, if any.
	Error *string

	// StartedAt is when component execution began.
	StartedAt time.Time

	// GeneratedAt is when aggregation completed.
	GeneratedAt time.Time

	// Duration is the wall-clock execution time.
	Duration time.Duration

	// CreatedAt is when the row was written.
	CreatedAt time.Time
}

// NewRunFromResult converts an execution result into a persistable record.
// A report-level error (e.g. template failure) is stored alongside it.
func NewRunFromResult(result *engine.ReportExecutionResult, runErr error) (*Run, error) {
	components, err := json.Marshal(result.Components)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize component results: %w", err)
	}

	run := &Run{
		ID:           result.RunID,
		ReportID:     result.ReportID,
		Status:       string(result.Status),
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
		Document:     result.Document,
		Components:   string(components),
		StartedAt:    result.StartedAt.UTC(),
		GeneratedAt:  result.GeneratedAt.UTC(),
		Duration:     result.Duration,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}
	return run, nil
}

// ComponentResults deserializes the stored component outcomes.
func (r *Run) ComponentResults() ([]engine.ComponentExecutionResult, error) {
	var results []engine.ComponentExecutionResult
	if err := json.Unmarshal([]byte(r.Components), &results); err != nil {
		return nil, fmt.Errorf("failed to deserialize component results: %w", err)
	}
	return results, nil
}

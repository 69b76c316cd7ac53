package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// MetricsRecorder receives execution outcomes. Implemented by
// telemetry.Metrics; a nil recorder disables recording.
type MetricsRecorder interface {
	ReportStarted(reportID string)
	ReportCompleted(reportID string, status RunStatus, duration time.Duration)
	ComponentCompleted(reportID, componentID string, status ComponentStatus, attempts int, duration time.Duration)
}

// ReportExecutor loads a report definition, runs all its components
// concurrently, aggregates the outcomes and drives template rendering. One
// executor instance can serve many ExecuteReport calls; providers and
// credentials are cached for its lifetime.
type ReportExecutor struct {
	source      ConfigSource
	credentials *CredentialRegistry
	providers   *ProviderResolver
	components  *ComponentExecutor
	template    TemplateEngine
	metrics     MetricsRecorder
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewReportExecutor wires the execution pipeline. The factory registry and
// credential factory define the closed set of provider and credential
// variants available to this executor.
func NewReportExecutor(
	source ConfigSource,
	factories FactoryRegistry,
	credentialFactory CredentialFactory,
	renderers RendererResolver,
) *ReportExecutor {
	credentials := NewCredentialRegistry(source, credentialFactory)
	providers := NewProviderResolver(source, credentials, factories)
	return &ReportExecutor{
		source:      source,
		credentials: credentials,
		providers:   providers,
		components:  NewComponentExecutor(source, providers, renderers),
		logger:      zerolog.Nop(),
		tracer:      noop.NewTracerProvider().Tracer("engine"),
	}
}

// WithLogger attaches a logger to the executor and its parts.
func (e *ReportExecutor) WithLogger(logger zerolog.Logger) *ReportExecutor {
	e.logger = logger.With().Str("component", "report-executor").Logger()
	e.credentials.WithLogger(logger)
	e.providers.WithLogger(logger)
	e.components.WithLogger(logger)
	return e
}

// WithTracer attaches a tracer for report and component spans.
func (e *ReportExecutor) WithTracer(tracer trace.Tracer) *ReportExecutor {
	if tracer != nil {
		e.tracer = tracer
		e.components.WithTracer(tracer)
	}
	return e
}

// WithTemplateEngine attaches the document template collaborator. Without
// one the result carries no assembled document.
func (e *ReportExecutor) WithTemplateEngine(template TemplateEngine) *ReportExecutor {
	e.template = template
	return e
}

// WithMetrics attaches a metrics recorder.
func (e *ReportExecutor) WithMetrics(metrics MetricsRecorder) *ReportExecutor {
	e.metrics = metrics
	return e
}

// ExecuteReport executes every component of the report concurrently and
// returns the aggregated result. It fails without a result only when the
// report configuration cannot be loaded; per-component failures are captured
// inside the result. A template rendering failure returns the aggregated
// result together with a template-class error so callers can still inspect
// component outcomes.
func (e *ReportExecutor) ExecuteReport(ctx context.Context, reportID string) (*ReportExecutionResult, error) {
	ctx, span := e.tracer.Start(ctx, "report.execute",
		trace.WithAttributes(attribute.String("report.id", reportID)))
	defer span.End()

	report, err := e.source.LoadReport(ctx, reportID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report load failed")
		var engineErr *Error
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return nil, NewPermanentError(
			fmt.Sprintf("failed to load report %q", reportID), err).
			WithCode(ErrCodeConfiguration)
	}

	runID := uuid.New().String()
	logger := e.logger.With().
		Str("report_id", report.ID).
		Str("run_id", runID).
		Logger()
	logger.Info().
		Str("title", report.Title).
		Int("components", len(report.Components)).
		Msg("starting report execution")
	if e.metrics != nil {
		e.metrics.ReportStarted(report.ID)
	}

	startedAt := time.Now()
	results := e.executeComponents(ctx, report)
	duration := time.Since(startedAt)

	result := e.aggregate(report, runID, results, startedAt, duration)
	span.SetAttributes(
		attribute.String("report.status", string(result.Status)),
		attribute.Int("report.success_count", result.SuccessCount),
		attribute.Int("report.failure_count", result.FailureCount),
	)
	logger.Info().
		Str("status", string(result.Status)).
		Int("success", result.SuccessCount).
		Int("failures", result.FailureCount).
		Dur("duration", duration).
		Msg("report execution completed")
	if e.metrics != nil {
		e.metrics.ReportCompleted(report.ID, result.Status, duration)
		for _, item := range result.Components {
			e.metrics.ComponentCompleted(report.ID, item.ComponentID, item.Status, item.Attempts, item.Duration)
		}
	}

	if e.template != nil {
		document, renderErr := e.template.Render(ctx, report, result.Components)
		if renderErr != nil {
			logger.Error().Err(renderErr).Msg("report template rendering failed")
			return result, NewPermanentError(
				fmt.Sprintf("failed to render report %q template", report.ID), renderErr).
				WithCode(ErrCodeTemplate)
		}
		result.Document = document
	}

	return result, nil
}

// executeComponents launches one goroutine per component and joins them all.
// Results land at the component's declared index, so output order matches
// configuration order no matter how tasks interleave. A slow or failing
// component never blocks aggregation of the others: every task yields a
// result object by construction of ComponentExecutor.
func (e *ReportExecutor) executeComponents(ctx context.Context, report *ReportConfig) []ComponentExecutionResult {
	results := make([]ComponentExecutionResult, len(report.Components))

	var wg sync.WaitGroup
	for i := range report.Components {
		wg.Add(1)
		go func(idx int, component *ComponentConfig) {
			defer wg.Done()
			results[idx] = e.components.Execute(ctx, component)
		}(i, &report.Components[i])
	}
	wg.Wait()

	return results
}

func (e *ReportExecutor) aggregate(
	report *ReportConfig,
	runID string,
	results []ComponentExecutionResult,
	startedAt time.Time,
	duration time.Duration,
) *ReportExecutionResult {
	successCount := 0
	cancelled := false
	var failures []string
	for _, item := range results {
		if item.Success() {
			successCount++
			continue
		}
		failures = append(failures, item.ComponentID)
		if item.Err != nil && item.Err.Code == ErrCodeCancelled {
			cancelled = true
		}
	}
	failureCount := len(results) - successCount

	status := RunStatusSucceeded
	switch {
	case cancelled:
		status = RunStatusCancelled
	case failureCount > 0 && successCount > 0:
		status = RunStatusPartial
	case failureCount > 0:
		status = RunStatusFailed
	}

	return &ReportExecutionResult{
		RunID:        runID,
		ReportID:     report.ID,
		Status:       status,
		GeneratedAt:  time.Now().UTC(),
		Components:   results,
		SuccessCount: successCount,
		FailureCount: failureCount,
		StartedAt:    startedAt,
		Duration:     duration,
		Metadata: map[string]any{
			"component_count": len(results),
			"failures":        failures,
		},
	}
}

// Shutdown releases every live provider and credential. Idempotent; close
// failures are collected and reported together.
func (e *ReportExecutor) Shutdown(ctx context.Context) error {
	e.logger.Debug().Msg("shutting down report executor")
	return errors.Join(
		e.providers.ShutdownAll(ctx),
		e.credentials.CloseAll(ctx),
	)
}

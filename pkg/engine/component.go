package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// RetryClassifier is optionally implemented by providers that need their own
// retryable-error classification (e.g. treating malformed-query errors as
// terminal). Without it the default classification applies: everything but
// permanent-class errors is retried.
type RetryClassifier interface {
	ShouldRetry(err error) bool
}

// ComponentExecutor executes one component end to end: resolve provider, run
// the query under retry and per-attempt timeout, resolve the renderer and
// render. It never returns an error; every failure mode is captured in the
// result.
type ComponentExecutor struct {
	source    ConfigSource
	providers *ProviderResolver
	renderers RendererResolver
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewComponentExecutor creates a component executor.
func NewComponentExecutor(source ConfigSource, providers *ProviderResolver, renderers RendererResolver) *ComponentExecutor {
	return &ComponentExecutor{
		source:    source,
		providers: providers,
		renderers: renderers,
		logger:    zerolog.Nop(),
		tracer:    noop.NewTracerProvider().Tracer("engine"),
	}
}

// WithLogger attaches a logger.
func (e *ComponentExecutor) WithLogger(logger zerolog.Logger) *ComponentExecutor {
	e.logger = logger.With().Str("component", "component-executor").Logger()
	return e
}

// WithTracer attaches a tracer for per-component spans.
func (e *ComponentExecutor) WithTracer(tracer trace.Tracer) *ComponentExecutor {
	if tracer != nil {
		e.tracer = tracer
	}
	return e
}

// Execute runs one component and returns its result. Provider resolution
// failures are structural and fail immediately without retry; query failures
// and timeouts are retried per the component's policy; rendering failures
// are never retried.
func (e *ComponentExecutor) Execute(ctx context.Context, component *ComponentConfig) ComponentExecutionResult {
	ctx, span := e.tracer.Start(ctx, "component.execute",
		trace.WithAttributes(
			attribute.String("component.id", component.ID),
			attribute.String("provider.id", component.ProviderID),
		))
	defer span.End()

	logger := e.logger.With().
		Str("component_id", component.ID).
		Str("provider_id", component.ProviderID).
		Logger()
	logger.Info().Msg("starting component execution")

	startedAt := time.Now()
	result := ComponentExecutionResult{
		ComponentID: component.ID,
		Title:       component.Title,
		Status:      ComponentStatusResolving,
		StartedAt:   startedAt,
	}

	provider, err := e.providers.GetProvider(ctx, component.ProviderID)
	if err != nil {
		return e.fail(span, logger, result, e.classify(err, component))
	}

	result.Status = ComponentStatusExecuting
	queryResult, attempts, err := e.executeQuery(ctx, component, provider, logger)
	result.Attempts = attempts
	if err != nil {
		return e.fail(span, logger, result, e.classify(err, component))
	}
	result.Result = queryResult

	result.Status = ComponentStatusRendering
	rendered, err := e.render(component, queryResult)
	if err != nil {
		return e.fail(span, logger, result, e.classify(err, component))
	}

	result.Rendered = rendered
	result.Status = ComponentStatusSucceeded
	result.Duration = time.Since(startedAt)
	span.SetAttributes(attribute.Int("component.attempts", attempts))
	logger.Info().
		Int("attempts", attempts).
		Int("rows", queryResult.RowCount()).
		Dur("duration", result.Duration).
		Msg("component execution succeeded")
	return result
}

// executeQuery runs the provider query under the component's retry strategy
// with a fresh timeout window per attempt.
func (e *ComponentExecutor) executeQuery(
	ctx context.Context,
	component *ComponentConfig,
	provider Provider,
	logger zerolog.Logger,
) (*QueryResult, int, error) {
	providerCfg, _ := e.source.ProviderConfig(component.ProviderID)
	policy := e.retryPolicy(component, providerCfg)
	timeout := e.timeout(component, providerCfg)

	strategy := NewRetryStrategy(policy).WithLogger(logger)
	if classifier, ok := provider.(RetryClassifier); ok {
		strategy = strategy.WithClassifier(classifier.ShouldRetry)
	}

	var queryResult *QueryResult
	attempts, err := strategy.Execute(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, execErr := provider.Execute(attemptCtx, component.Query)
		if execErr != nil {
			return e.wrapQueryError(execErr, attemptCtx, ctx, component, timeout)
		}
		queryResult = res
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return queryResult, attempts, nil
}

// wrapQueryError classifies a single-attempt failure. A deadline on the
// attempt context with a live parent is a retryable timeout; parent
// cancellation is terminal; anything unclassified becomes a transient
// provider execution error.
func (e *ComponentExecutor) wrapQueryError(
	execErr error,
	attemptCtx, parentCtx context.Context,
	component *ComponentConfig,
	timeout time.Duration,
) error {
	if parentCtx.Err() != nil {
		return NewPermanentError(
			fmt.Sprintf("component %q cancelled", component.ID), execErr).
			WithCode(ErrCodeCancelled)
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(execErr, context.DeadlineExceeded) {
		return NewTransientError(
			fmt.Sprintf("component %q timed out after %s", component.ID, timeout), execErr).
			WithCode(ErrCodeTimeout)
	}
	var engineErr *Error
	if errors.As(execErr, &engineErr) {
		return execErr
	}
	return NewTransientError("query execution failed", execErr).
		WithCode(ErrCodeProviderExecution).
		WithProvider(component.ProviderID)
}

func (e *ComponentExecutor) render(component *ComponentConfig, result *QueryResult) (string, error) {
	renderer, err := e.renderers.Resolve(component.Render)
	if err != nil {
		return "", NewPermanentError(
			fmt.Sprintf("no renderer for type %q", component.Render.Type), err).
			WithCode(ErrCodeRendering)
	}
	rendered, err := renderer.Render(component, result)
	if err != nil {
		return "", NewPermanentError(
			fmt.Sprintf("failed to render component %q", component.ID), err).
			WithCode(ErrCodeRendering)
	}
	return rendered, nil
}

// retryPolicy picks the component's policy, falling back to the provider's,
// then the engine default.
func (e *ComponentExecutor) retryPolicy(component *ComponentConfig, providerCfg *ProviderConfig) RetryPolicy {
	switch {
	case component.Retry != nil:
		return *component.Retry
	case providerCfg != nil && providerCfg.Retry != nil:
		return *providerCfg.Retry
	default:
		return DefaultRetryPolicy()
	}
}

// timeout picks the per-attempt timeout window.
func (e *ComponentExecutor) timeout(component *ComponentConfig, providerCfg *ProviderConfig) time.Duration {
	switch {
	case component.Timeout > 0:
		return component.Timeout
	case providerCfg != nil && providerCfg.DefaultTimeout > 0:
		return providerCfg.DefaultTimeout
	default:
		return DefaultComponentTimeout
	}
}

// classify coerces any error into a component-scoped engine error. Cached
// init errors are shared by every component referencing the same provider or
// credential, so the component id is stamped on a copy, never on the cached
// value itself.
func (e *ComponentExecutor) classify(err error, component *ComponentConfig) *Error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		if engineErr.Component != "" {
			return engineErr
		}
		scoped := *engineErr
		scoped.Component = component.ID
		return &scoped
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewPermanentError(
			fmt.Sprintf("component %q cancelled", component.ID), err).
			WithCode(ErrCodeCancelled).
			WithComponent(component.ID)
	}
	return NewPermanentError("component execution failed", err).
		WithCode(ErrCodeInternal).
		WithComponent(component.ID)
}

func (e *ComponentExecutor) fail(
	span trace.Span,
	logger zerolog.Logger,
	result ComponentExecutionResult,
	err *Error,
) ComponentExecutionResult {
	result.Status = ComponentStatusFailed
	result.Err = err
	result.Duration = time.Since(result.StartedAt)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Message)
	logger.Error().
		Err(err).
		Str("code", err.Code).
		Int("attempts", result.Attempts).
		Dur("duration", result.Duration).
		Msg("component execution failed")
	return result
}

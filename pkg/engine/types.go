package engine

import (
	"fmt"
	"time"
)

// ProviderConfig describes one configured data source. It is immutable and
// loaded once per executor lifetime.
type ProviderConfig struct {
	// ID is the unique identifier referenced by components.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Type is the provider type tag (e.g. "sql", "rest", "csv", "adx").
	// It selects the factory used to construct the provider instance.
	Type string `json:"type" yaml:"type" validate:"required"`

	// Settings holds provider-specific connection settings.
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`

	// CredentialsID references a CredentialConfig by id. Empty means the
	// provider needs no credential.
	CredentialsID string `json:"credentials_id,omitempty" yaml:"credentials_id,omitempty"`

	// DefaultTimeout bounds a single query attempt for components that do
	// not set their own timeout.
	DefaultTimeout time.Duration `json:"default_timeout,omitempty" yaml:"default_timeout,omitempty"`

	// Retry is the default retry policy for components using this provider.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// CredentialConfig describes one configured credential. Immutable.
type CredentialConfig struct {
	// ID is the unique identifier referenced by providers.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Cloud identifies the credential backend (e.g. "azure", "aws", "gcp",
	// "generic").
	Cloud string `json:"cloud" yaml:"cloud" validate:"required"`

	// Strategy selects how the credential is constructed (e.g.
	// "default_credentials", "service_principal", "username_password").
	Strategy string `json:"strategy" yaml:"strategy" validate:"required"`

	// Params holds strategy-specific parameters.
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// RenderSpec describes how a component's query result is rendered.
type RenderSpec struct {
	// Type selects the renderer (e.g. "table", "chart", "text", "html").
	Type string `json:"type" yaml:"type" validate:"required"`

	// Template is an optional renderer-specific template reference.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// Options holds renderer-specific options.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// ComponentConfig is one unit of work in a report: a query against a provider
// plus a render specification. Component order within a report is significant.
type ComponentConfig struct {
	// ID is unique within the report.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Title is the human-readable component title.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// ProviderID references a ProviderConfig by id.
	ProviderID string `json:"provider_id" yaml:"provider_id" validate:"required"`

	// Query is the provider-specific query text.
	Query string `json:"query" yaml:"query" validate:"required"`

	// Render describes how the query result is turned into a fragment.
	Render RenderSpec `json:"render" yaml:"render"`

	// Timeout bounds a single query attempt. Zero falls back to the
	// provider's DefaultTimeout; each retry gets a fresh window.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Retry overrides the provider's retry policy for this component.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// EmailSpec carries delivery metadata for a report. The engine does not send
// mail; the value is handed to the delivery collaborator with the result.
type EmailSpec struct {
	Subject string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	To      []string `json:"to,omitempty" yaml:"to,omitempty"`
	CC      []string `json:"cc,omitempty" yaml:"cc,omitempty"`
}

// ReportConfig is a named, ordered collection of components assembled into
// one document.
type ReportConfig struct {
	// ID is the unique report identifier.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Title is the human-readable report title.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Components lists the report components in declared order. The order
	// of results always matches this order.
	Components []ComponentConfig `json:"components" yaml:"components" validate:"min=1,dive"`

	// Template references the document template used to assemble rendered
	// components.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// Email carries delivery metadata for downstream consumers.
	Email EmailSpec `json:"email,omitempty" yaml:"email,omitempty"`
}

// QueryResult is the immutable outcome of one provider query.
type QueryResult struct {
	// Rows is the ordered sequence of row records.
	Rows []map[string]any `json:"rows"`

	// Metadata holds provider-specific result metadata (row counts, query
	// statistics, source identifiers).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RowCount returns the number of rows in the result.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ComponentStatus tracks a component execution through its lifecycle.
type ComponentStatus string

const (
	// ComponentStatusPending indicates execution has not started.
	ComponentStatusPending ComponentStatus = "pending"

	// ComponentStatusResolving indicates the provider is being resolved.
	ComponentStatusResolving ComponentStatus = "resolving"

	// ComponentStatusExecuting indicates the query is running (attempt 1..N).
	ComponentStatusExecuting ComponentStatus = "executing"

	// ComponentStatusRendering indicates the query succeeded and the result
	// is being rendered.
	ComponentStatusRendering ComponentStatus = "rendering"

	// ComponentStatusSucceeded indicates the component completed fully.
	ComponentStatusSucceeded ComponentStatus = "succeeded"

	// ComponentStatusFailed indicates a terminal failure at any stage.
	ComponentStatusFailed ComponentStatus = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s ComponentStatus) IsTerminal() bool {
	return s == ComponentStatusSucceeded || s == ComponentStatusFailed
}

// ComponentExecutionResult is the immutable outcome of one component
// execution, independent of sibling outcomes.
type ComponentExecutionResult struct {
	// ComponentID identifies the component this result belongs to.
	ComponentID string `json:"component_id"`

	// Title is carried over from the component config for downstream
	// template consumers.
	Title string `json:"title,omitempty"`

	// Status is the terminal status (succeeded or failed).
	Status ComponentStatus `json:"status"`

	// Rendered is the presentation-ready fragment on success.
	Rendered string `json:"rendered,omitempty"`

	// Result is the raw query result on success; templates may access it.
	Result *QueryResult `json:"result,omitempty"`

	// Err is the terminal error on failure.
	Err *Error `json:"error,omitempty"`

	// Attempts is the number of query attempts performed.
	Attempts int `json:"attempts"`

	// StartedAt is when execution started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the end-to-end execution time including all retries.
	Duration time.Duration `json:"duration"`
}

// Success returns true if the component completed fully.
func (r *ComponentExecutionResult) Success() bool {
	return r.Status == ComponentStatusSucceeded
}

// RunStatus represents the overall status of a report execution.
type RunStatus string

const (
	// RunStatusSucceeded indicates every component succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusPartial indicates some components succeeded and some failed.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed indicates no component succeeded.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled by the caller.
	RunStatusCancelled RunStatus = "cancelled"
)

// ReportExecutionResult is the aggregate outcome of one report run. It is
// fully constructed or not at all: a structural failure (config load,
// template) surfaces as an error from ExecuteReport instead.
type ReportExecutionResult struct {
	// RunID uniquely identifies this execution.
	RunID string `json:"run_id"`

	// ReportID identifies the executed report.
	ReportID string `json:"report_id"`

	// Status summarises the run (succeeded, partial, failed, cancelled).
	Status RunStatus `json:"status"`

	// GeneratedAt is when aggregation completed.
	GeneratedAt time.Time `json:"generated_at"`

	// Document is the assembled report document from the template engine.
	Document string `json:"document,omitempty"`

	// Components holds one result per component, in declared order.
	Components []ComponentExecutionResult `json:"components"`

	// SuccessCount is the number of fully successful components.
	SuccessCount int `json:"success_count"`

	// FailureCount is the number of failed components.
	FailureCount int `json:"failure_count"`

	// StartedAt is when component execution began.
	StartedAt time.Time `json:"started_at"`

	// Duration is wall-clock elapsed time for the parallel execution, not
	// the sum of component durations.
	Duration time.Duration `json:"duration"`

	// Metadata holds aggregate facts for template and delivery consumers.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HasFailures returns true if any component failed.
func (r *ReportExecutionResult) HasFailures() bool {
	return r.FailureCount > 0
}

// RetryPolicy configures bounded retry with exponential backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" validate:"min=1"`

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// BackoffMultiplier grows the delay after each failed attempt.
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier" validate:"gte=1"`

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff must be non-negative, got %s", p.InitialBackoff)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1, got %g", p.BackoffMultiplier)
	}
	if p.MaxBackoff < 0 {
		return fmt.Errorf("max_backoff must be non-negative, got %s", p.MaxBackoff)
	}
	return nil
}

// DefaultRetryPolicy returns the policy applied when neither the component
// nor its provider configures one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    1500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// NoRetryPolicy returns a policy performing exactly one attempt.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 1}
}

// DefaultComponentTimeout bounds a query attempt when neither the component
// nor its provider sets a timeout.
const DefaultComponentTimeout = 30 * time.Second

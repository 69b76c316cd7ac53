package engine

import (
	"context"
)

// ConfigSource loads report definitions. Implementations live outside the
// engine (see pkg/config for the YAML-backed one).
type ConfigSource interface {
	// LoadReport returns the configuration for the given report id.
	// Missing or invalid reports fail with a configuration-class error.
	LoadReport(ctx context.Context, reportID string) (*ReportConfig, error)

	// ProviderConfig returns the configuration for the given provider id,
	// or false if the id is unknown.
	ProviderConfig(providerID string) (*ProviderConfig, bool)

	// CredentialConfig returns the configuration for the given credential
	// id, or false if the id is unknown.
	CredentialConfig(credentialID string) (*CredentialConfig, bool)
}

// Provider is an abstraction over a concrete data source. Instances are
// shared by every component referencing the same provider id and must
// tolerate concurrent Execute calls.
type Provider interface {
	// Execute runs one query and returns its result. Implementations must
	// honour context cancellation so per-attempt timeouts can interrupt
	// in-flight work.
	Execute(ctx context.Context, query string) (*QueryResult, error)

	// Close releases connections and pools. Best effort; errors are
	// collected by the resolver, not thrown.
	Close(ctx context.Context) error
}

// Credential is an authentication object consumed by providers. Instances
// may be shared across providers and must be treated as read-only after
// construction.
type Credential interface {
	// Close releases any token refresh loops or cached sessions.
	Close(ctx context.Context) error
}

// CredentialFactory constructs a credential from its configuration.
type CredentialFactory func(ctx context.Context, cfg *CredentialConfig) (Credential, error)

// ProviderFactory constructs a provider from its configuration and resolved
// credential. The credential is nil when the config names none.
type ProviderFactory func(ctx context.Context, cfg *ProviderConfig, cred Credential) (Provider, error)

// Renderer converts a query result into a presentation-ready fragment.
type Renderer interface {
	// Render produces the fragment for one component. Rendering is
	// deterministic given the same inputs and is never retried.
	Render(component *ComponentConfig, result *QueryResult) (string, error)
}

// RendererResolver resolves renderers by render spec.
type RendererResolver interface {
	Resolve(spec RenderSpec) (Renderer, error)
}

// TemplateEngine assembles the ordered component results into the final
// report document.
type TemplateEngine interface {
	Render(ctx context.Context, report *ReportConfig, components []ComponentExecutionResult) (string, error)
}

// Sender delivers a completed report. Out of the engine's execution path;
// ReportExecutionResult is the exact contract boundary.
type Sender interface {
	Send(ctx context.Context, result *ReportExecutionResult, email EmailSpec) error
}

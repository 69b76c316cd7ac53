// Package engine implements the QueryHub report execution core.
//
// A report is a named, ordered collection of components; each component runs
// one query against a configured provider and renders the result into a
// fragment. The engine executes all components of a report concurrently,
// with per-component timeout and retry policies, and aggregates the outcomes
// into a single ReportExecutionResult that tolerates partial failure: a
// failing component never aborts its siblings or the report.
//
// The pipeline, leaf-first:
//
//   - RetryStrategy wraps a fallible operation with bounded exponential
//     backoff and a retryable-error classification hook.
//   - CredentialRegistry lazily constructs and caches credentials by id,
//     exactly once per id even under concurrent first access.
//   - ProviderResolver does the same for provider instances, resolving the
//     provider's credential during construction, and owns provider shutdown.
//   - ComponentExecutor executes one component: resolve provider, run the
//     query under retry with a fresh timeout window per attempt, render.
//     All failures are captured in the ComponentExecutionResult.
//   - ReportExecutor fans components out to goroutines, joins them, reorders
//     results to the declared component order and drives the template
//     collaborator.
//
// Concrete data sources, renderers, templates, configuration loading and
// delivery are collaborators behind the interfaces in interfaces.go; the
// closed set of provider variants is supplied explicitly through a
// FactoryRegistry.
//
// Basic usage:
//
//	factories := engine.FactoryRegistry{}
//	factories.Register("sql", newSQLProvider)
//
//	executor := engine.NewReportExecutor(source, factories, newCredential, renderers).
//		WithLogger(logger).
//		WithTemplateEngine(templates)
//	defer executor.Shutdown(context.Background())
//
//	result, err := executor.ExecuteReport(ctx, "weekly-ops")
//	if err != nil {
//		// the report definition could not be loaded or templated
//	}
//	for _, c := range result.Components {
//		// one entry per component, in declared order
//	}
package engine

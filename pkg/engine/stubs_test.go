package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// stubConfigSource serves configs from in-memory maps.
type stubConfigSource struct {
	reports     map[string]*ReportConfig
	providers   map[string]*ProviderConfig
	credentials map[string]*CredentialConfig
}

func newStubConfigSource() *stubConfigSource {
	return &stubConfigSource{
		reports:     make(map[string]*ReportConfig),
		providers:   make(map[string]*ProviderConfig),
		credentials: make(map[string]*CredentialConfig),
	}
}

func (s *stubConfigSource) LoadReport(_ context.Context, reportID string) (*ReportConfig, error) {
	report, ok := s.reports[reportID]
	if !ok {
		return nil, NewPermanentError(
			fmt.Sprintf("report %q not found", reportID), nil).
			WithCode(ErrCodeConfiguration)
	}
	return report, nil
}

func (s *stubConfigSource) ProviderConfig(providerID string) (*ProviderConfig, bool) {
	cfg, ok := s.providers[providerID]
	return cfg, ok
}

func (s *stubConfigSource) CredentialConfig(credentialID string) (*CredentialConfig, bool) {
	cfg, ok := s.credentials[credentialID]
	return cfg, ok
}

// stubCredential counts Close calls.
type stubCredential struct {
	closed atomic.Int32
}

func (c *stubCredential) Close(context.Context) error {
	c.closed.Add(1)
	return nil
}

// stubProvider fails its first failFirst Execute calls, then succeeds. An
// optional delay simulates slow queries and respects context cancellation.
type stubProvider struct {
	calls     atomic.Int32
	closed    atomic.Int32
	failFirst int32
	execErr   error
	closeErr  error
	delay     time.Duration
	rows      []map[string]any
}

func (p *stubProvider) Execute(ctx context.Context, _ string) (*QueryResult, error) {
	call := p.calls.Add(1)

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if call <= p.failFirst {
		if p.execErr != nil {
			return nil, p.execErr
		}
		return nil, errors.New("stub query failure")
	}

	return &QueryResult{
		Rows:     p.rows,
		Metadata: map[string]any{"rowcount": len(p.rows)},
	}, nil
}

func (p *stubProvider) Close(context.Context) error {
	p.closed.Add(1)
	return p.closeErr
}

// terminalProvider always fails and classifies its own errors as terminal.
type terminalProvider struct {
	stubProvider
}

func (p *terminalProvider) ShouldRetry(error) bool { return false }

// stubRenderer renders rows into a deterministic fragment.
type stubRenderer struct {
	err error
}

func (r *stubRenderer) Render(component *ComponentConfig, result *QueryResult) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return fmt.Sprintf("<div id=%q rows=%d></div>", component.ID, result.RowCount()), nil
}

// stubRendererResolver returns a fixed renderer for every spec.
type stubRendererResolver struct {
	renderer   Renderer
	resolveErr error
}

func (r *stubRendererResolver) Resolve(RenderSpec) (Renderer, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	if r.renderer != nil {
		return r.renderer, nil
	}
	return &stubRenderer{}, nil
}

// stubTemplate concatenates rendered fragments.
type stubTemplate struct {
	err error
}

func (t *stubTemplate) Render(_ context.Context, report *ReportConfig, components []ComponentExecutionResult) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	doc := "<report id=" + report.ID + ">"
	for _, c := range components {
		doc += c.Rendered
	}
	return doc + "</report>", nil
}

// countingCredentialFactory counts constructions and can fail.
func countingCredentialFactory(counter *atomic.Int32, err error) CredentialFactory {
	return func(context.Context, *CredentialConfig) (Credential, error) {
		counter.Add(1)
		if err != nil {
			return nil, err
		}
		return &stubCredential{}, nil
	}
}

// countingProviderFactory counts constructions and hands out the given
// provider instance.
func countingProviderFactory(counter *atomic.Int32, provider Provider, err error) ProviderFactory {
	return func(context.Context, *ProviderConfig, Credential) (Provider, error) {
		counter.Add(1)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
}

// fastRetry is a small-backoff policy for tests.
func fastRetry(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        5 * time.Millisecond,
	}
}

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func providerSource() *stubConfigSource {
	source := newStubConfigSource()
	source.credentials["db-creds"] = &CredentialConfig{
		ID:       "db-creds",
		Cloud:    "generic",
		Strategy: "username_password",
	}
	source.providers["warehouse"] = &ProviderConfig{
		ID:            "warehouse",
		Type:          "sql",
		CredentialsID: "db-creds",
	}
	return source
}

func newResolver(source *stubConfigSource, factories FactoryRegistry) *ProviderResolver {
	var credConstructions atomic.Int32
	credentials := NewCredentialRegistry(source, countingCredentialFactory(&credConstructions, nil))
	return NewProviderResolver(source, credentials, factories)
}

func TestProviderResolverUnknownID(t *testing.T) {
	resolver := newResolver(providerSource(), FactoryRegistry{})

	_, err := resolver.GetProvider(context.Background(), "missing")
	if !HasCode(err, ErrCodeProviderNotFound) {
		t.Fatalf("expected %s, got %v", ErrCodeProviderNotFound, err)
	}
}

func TestProviderResolverUnknownType(t *testing.T) {
	source := providerSource()
	source.providers["warehouse"].Type = "kusto"
	resolver := newResolver(source, FactoryRegistry{})

	_, err := resolver.GetProvider(context.Background(), "warehouse")
	if !HasCode(err, ErrCodeProviderInit) {
		t.Fatalf("expected %s, got %v", ErrCodeProviderInit, err)
	}
	if !strings.Contains(err.Error(), "kusto") {
		t.Errorf("error should name the missing type, got %v", err)
	}
}

func TestProviderResolverCachesAndSharesInstance(t *testing.T) {
	var constructions atomic.Int32
	provider := &stubProvider{}
	factories := FactoryRegistry{}
	factories.Register("sql", countingProviderFactory(&constructions, provider, nil))
	resolver := newResolver(providerSource(), factories)

	const workers = 25
	var wg sync.WaitGroup
	instances := make([]Provider, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			p, err := resolver.GetProvider(context.Background(), "warehouse")
			if err != nil {
				t.Errorf("worker %d: %v", idx, err)
				return
			}
			instances[idx] = p
		}(i)
	}
	wg.Wait()

	if got := constructions.Load(); got != 1 {
		t.Fatalf("expected exactly 1 provider construction, got %d", got)
	}
	for i := 1; i < workers; i++ {
		if instances[i] != instances[0] {
			t.Fatalf("worker %d received a different instance", i)
		}
	}
}

func TestProviderResolverCredentialFailure(t *testing.T) {
	source := providerSource()
	credErr := errors.New("vault sealed")
	credentials := NewCredentialRegistry(source, func(context.Context, *CredentialConfig) (Credential, error) {
		return nil, credErr
	})
	factories := FactoryRegistry{}
	factories.Register("sql", func(context.Context, *ProviderConfig, Credential) (Provider, error) {
		t.Fatal("provider factory must not run when credential resolution fails")
		return nil, nil
	})
	resolver := NewProviderResolver(source, credentials, factories)

	_, err := resolver.GetProvider(context.Background(), "warehouse")
	if !HasCode(err, ErrCodeProviderInit) {
		t.Fatalf("expected %s, got %v", ErrCodeProviderInit, err)
	}
	if !errors.Is(err, credErr) {
		t.Errorf("expected wrapped credential error, got %v", err)
	}
}

func TestProviderResolverSharedCredential(t *testing.T) {
	source := providerSource()
	source.providers["metrics-api"] = &ProviderConfig{
		ID:            "metrics-api",
		Type:          "rest",
		CredentialsID: "db-creds",
	}

	var credConstructions atomic.Int32
	credentials := NewCredentialRegistry(source, countingCredentialFactory(&credConstructions, nil))

	var creds []Credential
	var mu sync.Mutex
	capture := func(_ context.Context, _ *ProviderConfig, cred Credential) (Provider, error) {
		mu.Lock()
		creds = append(creds, cred)
		mu.Unlock()
		return &stubProvider{}, nil
	}
	factories := FactoryRegistry{"sql": capture, "rest": capture}
	resolver := NewProviderResolver(source, credentials, factories)

	var wg sync.WaitGroup
	for _, id := range []string{"warehouse", "metrics-api"} {
		wg.Add(1)
		go func(providerID string) {
			defer wg.Done()
			if _, err := resolver.GetProvider(context.Background(), providerID); err != nil {
				t.Errorf("%s: %v", providerID, err)
			}
		}(id)
	}
	wg.Wait()

	if got := credConstructions.Load(); got != 1 {
		t.Fatalf("two providers sharing a credential id must construct it once, got %d", got)
	}
	if len(creds) != 2 || creds[0] != creds[1] {
		t.Error("both providers must receive the same credential instance")
	}
}

func TestProviderResolverShutdownAll(t *testing.T) {
	source := providerSource()
	source.providers["metrics-api"] = &ProviderConfig{ID: "metrics-api", Type: "rest"}

	healthy := &stubProvider{}
	broken := &stubProvider{closeErr: errors.New("connection already gone")}
	factories := FactoryRegistry{
		"sql":  func(context.Context, *ProviderConfig, Credential) (Provider, error) { return healthy, nil },
		"rest": func(context.Context, *ProviderConfig, Credential) (Provider, error) { return broken, nil },
	}
	resolver := newResolver(source, factories)

	for _, id := range []string{"warehouse", "metrics-api"} {
		if _, err := resolver.GetProvider(context.Background(), id); err != nil {
			t.Fatalf("%s: %v", id, err)
		}
	}

	err := resolver.ShutdownAll(context.Background())
	if err == nil {
		t.Fatal("expected the broken provider's close error to be reported")
	}
	if healthy.closed.Load() != 1 {
		t.Error("a failing shutdown must not skip the remaining providers")
	}
	if broken.closed.Load() != 1 {
		t.Error("broken provider should have been closed once")
	}

	// Second shutdown is a no-op: no double close, no error.
	if err := resolver.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("second ShutdownAll must be idempotent, got %v", err)
	}
	if healthy.closed.Load() != 1 || broken.closed.Load() != 1 {
		t.Error("providers must be closed exactly once")
	}
}

func TestProviderResolverShutdownWithoutProviders(t *testing.T) {
	resolver := newResolver(providerSource(), FactoryRegistry{})
	if err := resolver.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("shutdown with no live providers must succeed, got %v", err)
	}
}

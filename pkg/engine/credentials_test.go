package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func credSource() *stubConfigSource {
	source := newStubConfigSource()
	source.credentials["azure-default"] = &CredentialConfig{
		ID:       "azure-default",
		Cloud:    "azure",
		Strategy: "default_credentials",
	}
	return source
}

func TestCredentialRegistryCachesInstance(t *testing.T) {
	var constructions atomic.Int32
	registry := NewCredentialRegistry(credSource(), countingCredentialFactory(&constructions, nil))

	first, err := registry.GetCredential(context.Background(), "azure-default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := registry.GetCredential(context.Background(), "azure-default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the same cached credential instance")
	}
	if got := constructions.Load(); got != 1 {
		t.Errorf("expected exactly 1 construction, got %d", got)
	}
}

func TestCredentialRegistryUnknownID(t *testing.T) {
	var constructions atomic.Int32
	registry := NewCredentialRegistry(credSource(), countingCredentialFactory(&constructions, nil))

	_, err := registry.GetCredential(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for unknown credential id")
	}
	if !HasCode(err, ErrCodeCredentialNotFound) {
		t.Errorf("expected %s, got %v", ErrCodeCredentialNotFound, err)
	}
	if constructions.Load() != 0 {
		t.Error("factory must not run for unknown ids")
	}
}

func TestCredentialRegistryFactoryFailure(t *testing.T) {
	var constructions atomic.Int32
	factoryErr := errors.New("identity endpoint unreachable")
	registry := NewCredentialRegistry(credSource(), countingCredentialFactory(&constructions, factoryErr))

	_, err := registry.GetCredential(context.Background(), "azure-default")
	if !HasCode(err, ErrCodeCredentialInit) {
		t.Fatalf("expected %s, got %v", ErrCodeCredentialInit, err)
	}
	if !errors.Is(err, factoryErr) {
		t.Errorf("expected wrapped factory error, got %v", err)
	}

	// Initialization failures are structural; a second lookup reports the
	// same failure without reconstructing.
	_, err = registry.GetCredential(context.Background(), "azure-default")
	if !HasCode(err, ErrCodeCredentialInit) {
		t.Fatalf("expected cached init failure, got %v", err)
	}
	if got := constructions.Load(); got != 1 {
		t.Errorf("expected exactly 1 construction attempt, got %d", got)
	}
}

func TestCredentialRegistryConcurrentFirstAccess(t *testing.T) {
	var constructions atomic.Int32
	registry := NewCredentialRegistry(credSource(), countingCredentialFactory(&constructions, nil))

	const workers = 50
	creds := make([]Credential, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			cred, err := registry.GetCredential(context.Background(), "azure-default")
			if err != nil {
				t.Errorf("worker %d: %v", idx, err)
				return
			}
			creds[idx] = cred
		}(i)
	}
	wg.Wait()

	if got := constructions.Load(); got != 1 {
		t.Fatalf("expected exactly 1 construction under contention, got %d", got)
	}
	for i := 1; i < workers; i++ {
		if creds[i] != creds[0] {
			t.Fatalf("worker %d received a different instance", i)
		}
	}
}

func TestCredentialRegistryCloseAll(t *testing.T) {
	registry := NewCredentialRegistry(credSource(), func(context.Context, *CredentialConfig) (Credential, error) {
		return &stubCredential{}, nil
	})

	cred, err := registry.GetCredential(context.Background(), "azure-default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := registry.CloseAll(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := registry.CloseAll(context.Background()); err != nil {
		t.Fatalf("second CloseAll must be a no-op, got %v", err)
	}
	if got := cred.(*stubCredential).closed.Load(); got != 1 {
		t.Errorf("expected credential closed exactly once, got %d", got)
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// FactoryRegistry maps provider type tags to constructor functions. It is
// supplied explicitly to the resolver rather than read from global state, so
// callers control the closed set of provider variants.
type FactoryRegistry map[string]ProviderFactory

// Register adds a factory for a provider type tag, replacing any previous
// registration.
func (f FactoryRegistry) Register(typeTag string, factory ProviderFactory) {
	f[typeTag] = factory
}

// Types returns the registered type tags.
func (f FactoryRegistry) Types() []string {
	types := make([]string, 0, len(f))
	for t := range f {
		types = append(types, t)
	}
	return types
}

type providerEntry struct {
	once     sync.Once
	provider Provider
	err      error
}

// ProviderResolver lazily creates and caches provider instances keyed by
// provider id, and owns their shutdown. At most one live instance exists per
// id; all components referencing the same id share it concurrently.
type ProviderResolver struct {
	source      ConfigSource
	credentials *CredentialRegistry
	factories   FactoryRegistry
	logger      zerolog.Logger

	mu      sync.Mutex
	entries map[string]*providerEntry
}

// NewProviderResolver creates a resolver. The factory registry selects the
// constructor by ProviderConfig.Type; the credential registry resolves
// ProviderConfig.CredentialsID during construction.
func NewProviderResolver(source ConfigSource, credentials *CredentialRegistry, factories FactoryRegistry) *ProviderResolver {
	return &ProviderResolver{
		source:      source,
		credentials: credentials,
		factories:   factories,
		logger:      zerolog.Nop(),
		entries:     make(map[string]*providerEntry),
	}
}

// WithLogger attaches a logger.
func (r *ProviderResolver) WithLogger(logger zerolog.Logger) *ProviderResolver {
	r.logger = logger.With().Str("component", "provider-resolver").Logger()
	return r
}

// GetProvider returns the provider for the given id, constructing it on
// first access. The lock covers only the check-and-insert; construction
// (credential resolution included) runs outside it under a per-entry guard,
// so a slow construction never blocks lookups of other ids.
func (r *ProviderResolver) GetProvider(ctx context.Context, providerID string) (Provider, error) {
	cfg, ok := r.source.ProviderConfig(providerID)
	if !ok {
		return nil, NewPermanentError(
			fmt.Sprintf("provider %q not found in configuration", providerID), nil).
			WithCode(ErrCodeProviderNotFound).
			WithProvider(providerID)
	}

	r.mu.Lock()
	entry, ok := r.entries[providerID]
	if !ok {
		entry = &providerEntry{}
		r.entries[providerID] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.provider, entry.err = r.construct(ctx, cfg)
	})

	if entry.err != nil {
		return nil, entry.err
	}
	return entry.provider, nil
}

func (r *ProviderResolver) construct(ctx context.Context, cfg *ProviderConfig) (Provider, error) {
	r.logger.Debug().
		Str("provider_id", cfg.ID).
		Str("type", cfg.Type).
		Msg("constructing provider")

	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, NewPermanentError(
			fmt.Sprintf("no factory registered for provider type %q", cfg.Type), nil).
			WithCode(ErrCodeProviderInit).
			WithProvider(cfg.ID)
	}

	var cred Credential
	if cfg.CredentialsID != "" {
		var err error
		cred, err = r.credentials.GetCredential(ctx, cfg.CredentialsID)
		if err != nil {
			return nil, NewPermanentError(
				fmt.Sprintf("provider %q credential resolution failed", cfg.ID), err).
				WithCode(ErrCodeProviderInit).
				WithProvider(cfg.ID)
		}
	}

	provider, err := factory(ctx, cfg, cred)
	if err != nil {
		return nil, NewPermanentError(
			fmt.Sprintf("provider %q initialization failed", cfg.ID), err).
			WithCode(ErrCodeProviderInit).
			WithProvider(cfg.ID)
	}

	r.logger.Info().
		Str("provider_id", cfg.ID).
		Str("type", cfg.Type).
		Msg("provider initialized")
	return provider, nil
}

// ShutdownAll closes every live provider. Idempotent: the entry map is
// swapped out under the lock, so a second call finds nothing to close.
// Individual close failures are collected and reported together rather than
// aborting the remaining shutdowns.
func (r *ProviderResolver) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*providerEntry)
	r.mu.Unlock()

	var errs []error
	for id, entry := range entries {
		if entry.provider == nil {
			continue
		}
		r.logger.Debug().Str("provider_id", id).Msg("closing provider")
		if err := entry.provider.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Str("provider_id", id).Msg("failed to close provider")
			errs = append(errs, fmt.Errorf("close provider %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

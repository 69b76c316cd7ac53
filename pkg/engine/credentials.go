package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// credentialEntry guards construction of a single credential. The registry
// lock covers only the check-and-insert of entries; construction runs under
// the entry's once, outside the map lock.
type credentialEntry struct {
	once sync.Once
	cred Credential
	err  error
}

// CredentialRegistry lazily creates and caches credentials keyed by id.
// Credentials are defined once and shared across every provider referencing
// the same id. Safe for concurrent first-access: exactly one construction
// per id, even when multiple component tasks race.
type CredentialRegistry struct {
	source  ConfigSource
	factory CredentialFactory
	logger  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*credentialEntry
}

// NewCredentialRegistry creates a registry backed by the given config source
// and factory.
func NewCredentialRegistry(source ConfigSource, factory CredentialFactory) *CredentialRegistry {
	return &CredentialRegistry{
		source:  source,
		factory: factory,
		logger:  zerolog.Nop(),
		entries: make(map[string]*credentialEntry),
	}
}

// WithLogger attaches a logger.
func (r *CredentialRegistry) WithLogger(logger zerolog.Logger) *CredentialRegistry {
	r.logger = logger.With().Str("component", "credential-registry").Logger()
	return r
}

// GetCredential returns the credential for the given id, constructing it on
// first access. Construction failures are cached for the registry lifetime:
// they are structural, not transient, and retrying them per component would
// hammer the credential backend.
func (r *CredentialRegistry) GetCredential(ctx context.Context, credentialID string) (Credential, error) {
	cfg, ok := r.source.CredentialConfig(credentialID)
	if !ok {
		return nil, NewPermanentError(
			fmt.Sprintf("credential %q not found in configuration", credentialID), nil).
			WithCode(ErrCodeCredentialNotFound)
	}

	r.mu.Lock()
	entry, ok := r.entries[credentialID]
	if !ok {
		entry = &credentialEntry{}
		r.entries[credentialID] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		r.logger.Debug().Str("credential_id", credentialID).Msg("constructing credential")
		cred, err := r.factory(ctx, cfg)
		if err != nil {
			entry.err = NewPermanentError(
				fmt.Sprintf("credential %q initialization failed", credentialID), err).
				WithCode(ErrCodeCredentialInit)
			r.logger.Error().Err(err).Str("credential_id", credentialID).Msg("credential initialization failed")
			return
		}
		entry.cred = cred
		r.logger.Info().Str("credential_id", credentialID).Msg("credential initialized")
	})

	if entry.err != nil {
		return nil, entry.err
	}
	return entry.cred, nil
}

// CloseAll closes every constructed credential. Idempotent; individual close
// failures are collected, not short-circuited.
func (r *CredentialRegistry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*credentialEntry)
	r.mu.Unlock()

	var errs []error
	for id, entry := range entries {
		if entry.cred == nil {
			continue
		}
		if err := entry.cred.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Str("credential_id", id).Msg("failed to close credential")
			errs = append(errs, fmt.Errorf("close credential %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

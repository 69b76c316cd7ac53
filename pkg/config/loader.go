package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/queryhub/queryhub/pkg/engine"
)

const (
	providersFileName   = "providers.yaml"
	credentialsFileName = "credentials.yaml"
	reportsDirName      = "reports"

	reloadDelay = 500 * time.Millisecond
)

// Settings is one immutable, validated configuration set. It implements
// engine.ConfigSource; a reload produces a fresh Settings value rather than
// mutating a live one.
type Settings struct {
	providers   map[string]*engine.ProviderConfig
	credentials map[string]*engine.CredentialConfig
	reports     map[string]*engine.ReportConfig
}

// LoadReport returns the report with the given id.
func (s *Settings) LoadReport(_ context.Context, reportID string) (*engine.ReportConfig, error) {
	report, ok := s.reports[reportID]
	if !ok {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("report %q not found in configuration", reportID), nil).
			WithCode(engine.ErrCodeConfiguration)
	}
	return report, nil
}

// ProviderConfig returns the provider definition for the given id.
func (s *Settings) ProviderConfig(providerID string) (*engine.ProviderConfig, bool) {
	cfg, ok := s.providers[providerID]
	return cfg, ok
}

// CredentialConfig returns the credential definition for the given id.
func (s *Settings) CredentialConfig(credentialID string) (*engine.CredentialConfig, bool) {
	cfg, ok := s.credentials[credentialID]
	return cfg, ok
}

// Report returns the report definition for the given id.
func (s *Settings) Report(reportID string) (*engine.ReportConfig, bool) {
	report, ok := s.reports[reportID]
	return report, ok
}

// ReportIDs returns the configured report ids in sorted order.
func (s *Settings) ReportIDs() []string {
	ids := make([]string, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Loader reads a configuration directory into Settings and optionally
// watches it for changes.
type Loader struct {
	dir      string
	logger   zerolog.Logger
	validate *validator.Validate
	watcher  *fsnotify.Watcher
}

// NewLoader creates a loader for the given configuration directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		logger:   zerolog.Nop(),
		validate: validator.New(),
	}
}

// WithLogger attaches a logger.
func (l *Loader) WithLogger(logger zerolog.Logger) *Loader {
	l.logger = logger.With().Str("component", "config-loader").Logger()
	return l
}

// Load reads providers.yaml, credentials.yaml and every report under
// reports/, validates the set and returns it. All failures carry the
// configuration error code.
func (l *Loader) Load(ctx context.Context) (*Settings, error) {
	settings, err := l.load(ctx)
	if err != nil {
		var engineErr *engine.Error
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return nil, engine.NewPermanentError(
			fmt.Sprintf("failed to load configuration from %s", l.dir), err).
			WithCode(engine.ErrCodeConfiguration)
	}

	l.logger.Info().
		Int("providers", len(settings.providers)).
		Int("credentials", len(settings.credentials)).
		Int("reports", len(settings.reports)).
		Msg("configuration loaded")
	return settings, nil
}

func (l *Loader) load(_ context.Context) (*Settings, error) {
	settings := &Settings{
		providers:   make(map[string]*engine.ProviderConfig),
		credentials: make(map[string]*engine.CredentialConfig),
		reports:     make(map[string]*engine.ReportConfig),
	}

	if err := l.loadProviders(settings); err != nil {
		return nil, err
	}
	if err := l.loadCredentials(settings); err != nil {
		return nil, err
	}
	if err := l.loadReports(settings); err != nil {
		return nil, err
	}
	if err := l.checkReferences(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (l *Loader) loadProviders(settings *Settings) error {
	path := filepath.Join(l.dir, providersFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", providersFileName, err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", providersFileName, err)
	}

	for _, spec := range file.Providers {
		cfg := spec.toEngine()
		if err := l.validate.Struct(cfg); err != nil {
			return fmt.Errorf("provider %q: %w", spec.ID, err)
		}
		if cfg.Retry != nil {
			if err := cfg.Retry.Validate(); err != nil {
				return fmt.Errorf("provider %q retry policy: %w", cfg.ID, err)
			}
		}
		if _, exists := settings.providers[cfg.ID]; exists {
			return fmt.Errorf("duplicate provider id %q", cfg.ID)
		}
		settings.providers[cfg.ID] = cfg
	}
	return nil
}

func (l *Loader) loadCredentials(settings *Settings) error {
	path := filepath.Join(l.dir, credentialsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		// Credentials are optional: providers may all be credential-free.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", credentialsFileName, err)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", credentialsFileName, err)
	}

	for _, spec := range file.Credentials {
		cfg := spec.toEngine()
		if err := l.validate.Struct(cfg); err != nil {
			return fmt.Errorf("credential %q: %w", spec.ID, err)
		}
		if _, exists := settings.credentials[cfg.ID]; exists {
			return fmt.Errorf("duplicate credential id %q", cfg.ID)
		}
		settings.credentials[cfg.ID] = cfg
	}
	return nil
}

func (l *Loader) loadReports(settings *Settings) error {
	dirPath := filepath.Join(l.dir, reportsDirName)
	if _, err := os.Stat(dirPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", reportsDirName, err)
	}

	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read report %s: %w", path, err)
		}

		var spec reportSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("parse report %s: %w", path, err)
		}

		report := spec.toEngine()
		if err := l.validate.Struct(report); err != nil {
			return fmt.Errorf("report %q (%s): %w", spec.ID, filepath.Base(path), err)
		}
		for _, component := range report.Components {
			if component.Retry != nil {
				if err := component.Retry.Validate(); err != nil {
					return fmt.Errorf("report %q component %q retry policy: %w",
						report.ID, component.ID, err)
				}
			}
		}
		if _, exists := settings.reports[report.ID]; exists {
			return fmt.Errorf("duplicate report id %q", report.ID)
		}

		settings.reports[report.ID] = report
		l.logger.Debug().
			Str("report_id", report.ID).
			Str("path", path).
			Int("components", len(report.Components)).
			Msg("report loaded")
		return nil
	})
}

// checkReferences rejects dangling ids so resolution failures surface at
// load time instead of mid-run.
func (l *Loader) checkReferences(settings *Settings) error {
	for id, provider := range settings.providers {
		if provider.CredentialsID == "" {
			continue
		}
		if _, ok := settings.credentials[provider.CredentialsID]; !ok {
			return fmt.Errorf("provider %q references unknown credential %q",
				id, provider.CredentialsID)
		}
	}

	for id, report := range settings.reports {
		seen := make(map[string]bool, len(report.Components))
		for _, component := range report.Components {
			if seen[component.ID] {
				return fmt.Errorf("report %q has duplicate component id %q", id, component.ID)
			}
			seen[component.ID] = true
			if _, ok := settings.providers[component.ProviderID]; !ok {
				return fmt.Errorf("report %q component %q references unknown provider %q",
					id, component.ID, component.ProviderID)
			}
		}
	}
	return nil
}

// Watch reloads the configuration whenever a YAML file under the directory
// changes and hands the fresh Settings to reloadFn. Events are debounced so
// an editor save producing several writes triggers a single reload. Watching
// stops when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, reloadFn func(*Settings) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher

	for _, path := range []string{l.dir, filepath.Join(l.dir, reportsDirName)} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := watcher.Add(path); err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("failed to watch path")
		}
	}

	go l.processEvents(ctx, reloadFn)

	l.logger.Info().Str("dir", l.dir).Msg("watching configuration directory")
	return nil
}

func (l *Loader) processEvents(ctx context.Context, reloadFn func(*Settings) error) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			_ = l.watcher.Close()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isYAML(event.Name) {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("configuration file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := l.triggerReload(ctx, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("configuration reload failed")
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// triggerReload loads the full set again. A reload that fails validation
// leaves the previous Settings in effect.
func (l *Loader) triggerReload(ctx context.Context, reloadFn func(*Settings) error) error {
	settings, err := l.Load(ctx)
	if err != nil {
		return err
	}
	if err := reloadFn(settings); err != nil {
		return fmt.Errorf("failed to apply reloaded configuration: %w", err)
	}
	l.logger.Info().Msg("configuration reloaded")
	return nil
}

// StopWatching closes the file watcher.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func isYAML(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}

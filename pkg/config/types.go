package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queryhub/queryhub/pkg/engine"
)

// Duration wraps time.Duration so YAML settings can use human-readable
// values like "30s" or "1m30s". Bare integers are accepted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// providersFile is the document shape of providers.yaml.
type providersFile struct {
	Providers []providerSpec `yaml:"providers"`
}

type providerSpec struct {
	ID             string         `yaml:"id"`
	Type           string         `yaml:"type"`
	Settings       map[string]any `yaml:"settings"`
	CredentialsID  string         `yaml:"credentials_id"`
	DefaultTimeout Duration       `yaml:"default_timeout"`
	Retry          *retrySpec     `yaml:"retry"`
}

func (s providerSpec) toEngine() *engine.ProviderConfig {
	return &engine.ProviderConfig{
		ID:             s.ID,
		Type:           s.Type,
		Settings:       s.Settings,
		CredentialsID:  s.CredentialsID,
		DefaultTimeout: time.Duration(s.DefaultTimeout),
		Retry:          s.Retry.toEngine(),
	}
}

type retrySpec struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialBackoff    Duration `yaml:"initial_backoff"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	MaxBackoff        Duration `yaml:"max_backoff"`
}

func (s *retrySpec) toEngine() *engine.RetryPolicy {
	if s == nil {
		return nil
	}
	policy := &engine.RetryPolicy{
		MaxAttempts:       s.MaxAttempts,
		InitialBackoff:    time.Duration(s.InitialBackoff),
		BackoffMultiplier: s.BackoffMultiplier,
		MaxBackoff:        time.Duration(s.MaxBackoff),
	}
	if policy.BackoffMultiplier == 0 {
		policy.BackoffMultiplier = 1
	}
	return policy
}

// credentialsFile is the document shape of credentials.yaml.
type credentialsFile struct {
	Credentials []credentialSpec `yaml:"credentials"`
}

type credentialSpec struct {
	ID       string            `yaml:"id"`
	Cloud    string            `yaml:"cloud"`
	Strategy string            `yaml:"strategy"`
	Params   map[string]string `yaml:"params"`
}

func (s credentialSpec) toEngine() *engine.CredentialConfig {
	return &engine.CredentialConfig{
		ID:       s.ID,
		Cloud:    s.Cloud,
		Strategy: s.Strategy,
		Params:   s.Params,
	}
}

// reportSpec is the document shape of one file under reports/.
type reportSpec struct {
	ID         string          `yaml:"id"`
	Title      string          `yaml:"title"`
	Components []componentSpec `yaml:"components"`
	Template   string          `yaml:"template"`
	Email      emailSpec       `yaml:"email"`
}

func (s reportSpec) toEngine() *engine.ReportConfig {
	components := make([]engine.ComponentConfig, len(s.Components))
	for i, c := range s.Components {
		components[i] = c.toEngine()
	}
	return &engine.ReportConfig{
		ID:         s.ID,
		Title:      s.Title,
		Components: components,
		Template:   s.Template,
		Email: engine.EmailSpec{
			Subject: s.Email.Subject,
			To:      s.Email.To,
			CC:      s.Email.CC,
		},
	}
}

type componentSpec struct {
	ID         string     `yaml:"id"`
	Title      string     `yaml:"title"`
	ProviderID string     `yaml:"provider_id"`
	Query      string     `yaml:"query"`
	Render     renderSpec `yaml:"render"`
	Timeout    Duration   `yaml:"timeout"`
	Retry      *retrySpec `yaml:"retry"`
}

func (s componentSpec) toEngine() engine.ComponentConfig {
	return engine.ComponentConfig{
		ID:         s.ID,
		Title:      s.Title,
		ProviderID: s.ProviderID,
		Query:      s.Query,
		Render: engine.RenderSpec{
			Type:     s.Render.Type,
			Template: s.Render.Template,
			Options:  s.Render.Options,
		},
		Timeout: time.Duration(s.Timeout),
		Retry:   s.Retry.toEngine(),
	}
}

type renderSpec struct {
	Type     string         `yaml:"type"`
	Template string         `yaml:"template"`
	Options  map[string]any `yaml:"options"`
}

type emailSpec struct {
	Subject string   `yaml:"subject"`
	To      []string `yaml:"to"`
	CC      []string `yaml:"cc"`
}

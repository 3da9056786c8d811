package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// ProviderType names a secrets backend.
type ProviderType string

// Supported provider types.
const (
	ProviderTypeVault ProviderType = "vault"
	ProviderTypeEnv   ProviderType = "env"
	ProviderTypeFile  ProviderType = "file"
)

// Sentinel errors shared by all providers.
var (
	// ErrSecretNotFound is returned when the backend has no secret at
	// the requested path.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrProviderNotConfigured is returned when the provider is missing
	// required configuration.
	ErrProviderNotConfigured = errors.New("secrets provider not configured")

	// ErrInvalidPath is returned for an empty or malformed secret path.
	ErrInvalidPath = errors.New("invalid secret path")

	// ErrProviderUnavailable is returned when the backend cannot be
	// reached.
	ErrProviderUnavailable = errors.New("secrets provider unavailable")
)

// Secret is one fetched secret with key-value data.
type Secret struct {
	// Name is the path the secret was fetched under.
	Name string

	// Data holds the secret key-value pairs.
	Data map[string][]byte

	// Version is the backend version, when the backend tracks one.
	Version string
}

// GetString returns a string value from the secret data.
func (s *Secret) GetString(key string) (string, bool) {
	v, ok := s.GetBytes(key)
	if !ok {
		return "", false
	}
	return string(v), true
}

// GetBytes returns a raw value from the secret data.
func (s *Secret) GetBytes(key string) ([]byte, bool) {
	if s == nil || s.Data == nil {
		return nil, false
	}
	v, ok := s.Data[key]
	return v, ok
}

// Provider is a read-only secrets backend.
type Provider interface {
	// Type returns the provider type.
	Type() ProviderType

	// GetSecret fetches a secret by path. Path format depends on the
	// provider: a KV v2 path for vault, a variable name for env, a
	// directory name for file.
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// HealthCheck reports backend reachability.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures the secrets backend.
type Config struct {
	// Enabled toggles secrets resolution. Disabled yields a noop
	// provider that reports every secret as missing.
	Enabled bool `yaml:"enabled"`

	// Provider selects the backend, env by default.
	Provider ProviderType `yaml:"provider,omitempty"`

	// EnvPrefix prefixes environment variable lookups.
	EnvPrefix string `yaml:"envPrefix,omitempty"`

	// FilePath is the base directory for the file provider.
	FilePath string `yaml:"filePath,omitempty"`

	// Vault configures the Vault provider.
	Vault *VaultConfig `yaml:"vault,omitempty"`
}

// GetEffectiveProvider returns the configured provider type or the
// default.
func (c *Config) GetEffectiveProvider() ProviderType {
	if c.Provider == "" {
		return ProviderTypeEnv
	}
	return c.Provider
}

// Validate checks the provider selection and its settings.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.GetEffectiveProvider() {
	case ProviderTypeEnv:
		return nil
	case ProviderTypeFile:
		if c.FilePath == "" {
			return fmt.Errorf("%w: filePath is required for the file provider", ErrProviderNotConfigured)
		}
		return nil
	case ProviderTypeVault:
		if c.Vault == nil {
			return fmt.Errorf("%w: vault settings are required for the vault provider", ErrProviderNotConfigured)
		}
		return c.Vault.Validate()
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrProviderNotConfigured, c.Provider)
	}
}

// NewProvider creates the provider selected by the configuration.
func NewProvider(cfg *Config, logger observability.Logger, opts ...ProviderOption) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration is nil", ErrProviderNotConfigured)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if !cfg.Enabled {
		return NewNoopProvider(), nil
	}

	settings := newProviderSettings(opts...)

	switch cfg.GetEffectiveProvider() {
	case ProviderTypeEnv:
		return NewEnvProvider(cfg.EnvPrefix, logger, settings.metrics), nil
	case ProviderTypeFile:
		return NewFileProvider(cfg.FilePath, logger, settings.metrics)
	case ProviderTypeVault:
		return NewVaultProvider(cfg.Vault, logger, settings.metrics)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderNotConfigured, cfg.Provider)
	}
}

// ProviderOption is a functional option for providers built through
// NewProvider.
type ProviderOption func(*providerSettings)

type providerSettings struct {
	metrics *Metrics
}

// WithProviderMetrics sets the metrics.
func WithProviderMetrics(metrics *Metrics) ProviderOption {
	return func(s *providerSettings) {
		s.metrics = metrics
	}
}

func newProviderSettings(opts ...ProviderOption) *providerSettings {
	s := &providerSettings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = GetSharedMetrics()
	}
	return s
}

// NoopProvider reports every secret as missing. Used when secrets
// resolution is disabled.
type NoopProvider struct{}

// NewNoopProvider creates a noop provider.
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

// Type returns the provider type.
func (p *NoopProvider) Type() ProviderType { return ProviderType("noop") }

// GetSecret always reports the secret as missing.
func (p *NoopProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
}

// HealthCheck always succeeds.
func (p *NoopProvider) HealthCheck(context.Context) error { return nil }

// Close does nothing.
func (p *NoopProvider) Close() error { return nil }

// observe wraps one provider operation with duration and outcome
// metrics.
func observe(m *Metrics, provider ProviderType, operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.RecordOperation(string(provider), operation, result, time.Since(start))
}

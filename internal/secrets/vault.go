package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// DefaultVaultMount is the default KV v2 mount point.
const DefaultVaultMount = "secret"

// DefaultVaultTimeout bounds Vault requests.
const DefaultVaultTimeout = 10 * time.Second

// VaultConfig configures the Vault provider. Only token authentication
// is supported; the token itself usually arrives via VAULT_TOKEN or the
// env provider.
type VaultConfig struct {
	// Address is the Vault server address.
	Address string `yaml:"address"`

	// Token authenticates the client.
	Token string `yaml:"token,omitempty"`

	// Namespace is the Vault namespace (Enterprise).
	Namespace string `yaml:"namespace,omitempty"`

	// Mount is the KV v2 mount point, "secret" by default.
	Mount string `yaml:"mount,omitempty"`

	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// TLSSkipVerify disables certificate verification. Insecure.
	TLSSkipVerify bool `yaml:"tlsSkipVerify,omitempty"`
}

// GetEffectiveMount returns the configured mount point or the default.
func (c *VaultConfig) GetEffectiveMount() string {
	if c.Mount == "" {
		return DefaultVaultMount
	}
	return c.Mount
}

// GetEffectiveTimeout returns the configured timeout or the default.
func (c *VaultConfig) GetEffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultVaultTimeout
	}
	return c.Timeout
}

// Validate checks required Vault settings.
func (c *VaultConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}
	if c.Token == "" {
		return fmt.Errorf("%w: vault token is required", ErrProviderNotConfigured)
	}
	return nil
}

// VaultProvider reads secrets from a Vault KV v2 mount.
type VaultProvider struct {
	client  *vaultapi.Client
	kv      *vaultapi.KVv2
	logger  observability.Logger
	metrics *Metrics
}

// NewVaultProvider creates a Vault-backed secrets provider.
func NewVaultProvider(cfg *VaultConfig, logger observability.Logger, metrics *Metrics) (*VaultProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: vault settings are required", ErrProviderNotConfigured)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = GetSharedMetrics()
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Timeout = cfg.GetEffectiveTimeout()
	if cfg.TLSSkipVerify {
		if err := apiCfg.ConfigureTLS(&vaultapi.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure vault TLS: %w", err)
		}
	}

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	logger.Info("vault secrets provider initialized",
		observability.String("address", cfg.Address),
		observability.String("mount", cfg.GetEffectiveMount()),
	)

	return &VaultProvider{
		client:  client,
		kv:      client.KVv2(cfg.GetEffectiveMount()),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Type returns the provider type.
func (p *VaultProvider) Type() ProviderType { return ProviderTypeVault }

// GetSecret reads a KV v2 secret.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.getSecret(ctx, path)
	observe(p.metrics, p.Type(), "get", start, err)
	return secret, err
}

func (p *VaultProvider) getSecret(ctx context.Context, path string) (*Secret, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	kvSecret, err := p.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		p.logger.Error("vault secret read failed",
			observability.String("path", path),
			observability.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	data := make(map[string][]byte, len(kvSecret.Data))
	for k, v := range kvSecret.Data {
		if s, ok := v.(string); ok {
			data[k] = []byte(s)
		}
	}

	secret := &Secret{Name: path, Data: data}
	if kvSecret.VersionMetadata != nil {
		secret.Version = fmt.Sprintf("%d", kvSecret.VersionMetadata.Version)
	}
	return secret, nil
}

// HealthCheck queries the Vault health endpoint.
func (p *VaultProvider) HealthCheck(ctx context.Context) error {
	health, err := p.client.Sys().HealthWithContext(ctx)
	healthy := err == nil && health.Initialized && !health.Sealed
	p.metrics.RecordHealth(string(p.Type()), healthy)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if health.Sealed {
		return fmt.Errorf("%w: vault is sealed", ErrProviderUnavailable)
	}
	return nil
}

// Close does nothing; the Vault client has no persistent resources.
func (p *VaultProvider) Close() error { return nil }

// Ensure VaultProvider implements Provider.
var _ Provider = (*VaultProvider)(nil)

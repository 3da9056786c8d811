package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avapbx/internal/audit"
	"github.com/vyrodovalexey/avapbx/internal/auth/session"
	"github.com/vyrodovalexey/avapbx/internal/auth/token"
	"github.com/vyrodovalexey/avapbx/internal/authz/policy"
	"github.com/vyrodovalexey/avapbx/internal/authz/rbac"
	"github.com/vyrodovalexey/avapbx/internal/observability"
	"github.com/vyrodovalexey/avapbx/internal/ratelimit"
	ratelimitstore "github.com/vyrodovalexey/avapbx/internal/ratelimit/store"
	"github.com/vyrodovalexey/avapbx/internal/secrets"
)

// Default server settings.
const (
	DefaultListenAddress   = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
)

// Config is the root configuration for the administration backend.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Observability configures logging, tracing, and metrics exposure.
	Observability ObservabilityConfig `yaml:"observability"`

	// Auth configures identity resolution channels.
	Auth AuthConfig `yaml:"auth"`

	// RBAC is the role table.
	RBAC rbac.Config `yaml:"rbac"`

	// Policy configures the ABAC policy set.
	Policy PolicyConfig `yaml:"policy"`

	// RateLimit configures request rate limiting.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// Audit configures the audit trail.
	Audit audit.Config `yaml:"audit"`

	// Secrets configures the secrets backend.
	Secrets secrets.Config `yaml:"secrets"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string `yaml:"listenAddress,omitempty"`

	// ReadTimeout bounds request reads.
	ReadTimeout Duration `yaml:"readTimeout,omitempty"`

	// WriteTimeout bounds response writes.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty"`

	// IdleTimeout bounds idle keep-alive connections.
	IdleTimeout Duration `yaml:"idleTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty"`

	// TLS enables HTTPS when both files are set.
	TLS *ServerTLSConfig `yaml:"tls,omitempty"`
}

// ServerTLSConfig points at the certificate pair.
type ServerTLSConfig struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// GetEffectiveListenAddress returns the configured address or the default.
func (c *ServerConfig) GetEffectiveListenAddress() string {
	if c.ListenAddress == "" {
		return DefaultListenAddress
	}
	return c.ListenAddress
}

// GetEffectiveReadTimeout returns the configured timeout or the default.
func (c *ServerConfig) GetEffectiveReadTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return c.ReadTimeout.Duration()
}

// GetEffectiveWriteTimeout returns the configured timeout or the default.
func (c *ServerConfig) GetEffectiveWriteTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return c.WriteTimeout.Duration()
}

// GetEffectiveIdleTimeout returns the configured timeout or the default.
func (c *ServerConfig) GetEffectiveIdleTimeout() time.Duration {
	if c.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return c.IdleTimeout.Duration()
}

// GetEffectiveShutdownTimeout returns the configured timeout or the default.
func (c *ServerConfig) GetEffectiveShutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}
	return c.ShutdownTimeout.Duration()
}

// Validate checks the server settings.
func (c *ServerConfig) Validate() error {
	if c.TLS != nil {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("server tls requires both certFile and keyFile")
		}
	}
	return nil
}

// ObservabilityConfig configures logging, tracing, and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig  `yaml:"logging"`
	Tracing TracingConfig  `yaml:"tracing"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// ToLogConfig converts to the observability package config, filling
// defaults.
func (c *LoggingConfig) ToLogConfig() observability.LogConfig {
	cfg := observability.DefaultLogConfig()
	if c.Level != "" {
		cfg.Level = c.Level
	}
	if c.Format != "" {
		cfg.Format = c.Format
	}
	if c.Output != "" {
		cfg.Output = c.Output
	}
	return cfg
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty"`
}

// ToTracerConfig converts to the observability package config.
func (c *TracingConfig) ToTracerConfig() observability.TracerConfig {
	serviceName := c.ServiceName
	if serviceName == "" {
		serviceName = "avapbx"
	}
	return observability.TracerConfig{
		Enabled:      c.Enabled,
		OTLPEndpoint: c.OTLPEndpoint,
		ServiceName:  serviceName,
		SamplingRate: c.SamplingRate,
	}
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// GetEffectivePath returns the configured scrape path or the default.
func (c *MetricsConfig) GetEffectivePath() string {
	if c == nil || c.Path == "" {
		return "/metrics"
	}
	return c.Path
}

// AuthConfig configures identity resolution. At least one channel must
// be configured.
type AuthConfig struct {
	// Token configures bearer token validation.
	Token *token.Config `yaml:"token,omitempty"`

	// Session configures session-cookie resolution.
	Session *SessionConfig `yaml:"session,omitempty"`
}

// SessionConfig configures the session manager and its store.
type SessionConfig struct {
	// Lifetime is the default session lifetime.
	Lifetime Duration `yaml:"lifetime,omitempty"`

	// Hasher selects the handle secret hasher: sha256 (default) or
	// bcrypt.
	Hasher string `yaml:"hasher,omitempty"`

	// Redis selects a Redis-backed store; absent means in-memory.
	Redis *session.RedisConfig `yaml:"redis,omitempty"`
}

// Validate checks that at least one resolution channel is configured.
func (c *AuthConfig) Validate() error {
	if c.Token == nil && c.Session == nil {
		return fmt.Errorf("auth requires a token or session section")
	}
	if c.Session != nil {
		switch c.Session.Hasher {
		case "", "sha256", "bcrypt":
		default:
			return fmt.Errorf("unknown session hasher %q", c.Session.Hasher)
		}
	}
	return nil
}

// PolicyConfig configures the ABAC policy set.
type PolicyConfig struct {
	// File points at a YAML document holding the policy list.
	File string `yaml:"file,omitempty"`

	// Policies is the inline policy list, appended to the file's.
	Policies []*policy.Policy `yaml:"policies,omitempty"`

	// Breaker tunes the policy store circuit breaker.
	Breaker *BreakerConfig `yaml:"breaker,omitempty"`
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	Threshold int      `yaml:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty"`
}

// policyFile is the on-disk policy document shape.
type policyFile struct {
	Policies []*policy.Policy `yaml:"policies"`
}

// LoadPolicies returns the combined policy list from the referenced
// file and the inline section.
func (c *PolicyConfig) LoadPolicies() ([]*policy.Policy, error) {
	var out []*policy.Policy

	if c.File != "" {
		data, err := os.ReadFile(c.File) //nolint:gosec // operator-provided path
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", c.File, err)
		}
		var doc policyFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", c.File, err)
		}
		out = append(out, doc.Policies...)
	}

	out = append(out, c.Policies...)

	seen := make(map[string]bool, len(out))
	for _, p := range out {
		if p.ID == "" {
			return nil, fmt.Errorf("policy %q has no id", p.Name)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate policy id %s", p.ID)
		}
		seen[p.ID] = true
	}

	return out, nil
}

// RateLimitConfig extends the rate limit settings with an optional
// Redis backend for multi-node counting.
type RateLimitConfig struct {
	ratelimit.Config `yaml:",inline"`

	// Redis selects a shared counter store; absent means per-process
	// counting.
	Redis *ratelimitstore.RedisConfig `yaml:"redis,omitempty"`
}

// DefaultConfig returns a configuration with conservative defaults:
// in-memory stores, audit to stdout, rate limiting on.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress: DefaultListenAddress,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			Metrics: &MetricsConfig{Enabled: true},
		},
		Auth: AuthConfig{
			Session: &SessionConfig{},
		},
		RateLimit: RateLimitConfig{
			Config: ratelimit.Config{Enabled: true},
		},
		Audit: *audit.DefaultConfig(),
	}
}

// Validate checks every section. Validation failures name the section
// so operators can find the offending key.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.RBAC.Validate(); err != nil {
		return fmt.Errorf("rbac: %w", err)
	}
	if err := c.RateLimit.Config.Validate(); err != nil {
		return fmt.Errorf("rateLimit: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Secrets.Validate(); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if _, err := c.Policy.LoadPolicies(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// DefaultEnvPrefix is the default prefix for environment variable
// secrets.
const DefaultEnvPrefix = "AVAPBX_SECRET_"

// EnvProvider reads secrets from environment variables. The path
// "token-hmac" maps to ${PREFIX}TOKEN_HMAC. A JSON object value is
// split into keys; anything else is stored under "value".
type EnvProvider struct {
	prefix  string
	logger  observability.Logger
	metrics *Metrics
}

// NewEnvProvider creates an environment variable secrets provider.
func NewEnvProvider(prefix string, logger observability.Logger, metrics *Metrics) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = GetSharedMetrics()
	}
	return &EnvProvider{prefix: prefix, logger: logger, metrics: metrics}
}

// Type returns the provider type.
func (p *EnvProvider) Type() ProviderType { return ProviderTypeEnv }

// GetSecret fetches a secret from the environment.
func (p *EnvProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.getSecret(path)
	observe(p.metrics, p.Type(), "get", start, err)
	return secret, err
}

func (p *EnvProvider) getSecret(path string) (*Secret, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	name := p.envName(path)
	value, ok := os.LookupEnv(name)
	if !ok {
		p.logger.Debug("secret env var not set",
			observability.String("env_var", name))
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	return &Secret{Name: path, Data: splitValue(value)}, nil
}

// envName converts a secret path to an environment variable name.
func (p *EnvProvider) envName(path string) string {
	name := strings.ToUpper(path)
	for _, sep := range []string{"-", ".", "/"} {
		name = strings.ReplaceAll(name, sep, "_")
	}
	return p.prefix + name
}

// splitValue parses a JSON object into keys, or stores the raw value
// under "value".
func splitValue(value string) map[string][]byte {
	var obj map[string]string
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		data := make(map[string][]byte, len(obj))
		for k, v := range obj {
			data[k] = []byte(v)
		}
		return data
	}
	return map[string][]byte{"value": []byte(value)}
}

// HealthCheck always succeeds; the environment is always reachable.
func (p *EnvProvider) HealthCheck(context.Context) error {
	p.metrics.RecordHealth(string(p.Type()), true)
	return nil
}

// Close does nothing.
func (p *EnvProvider) Close() error { return nil }

// Ensure EnvProvider implements Provider.
var _ Provider = (*EnvProvider)(nil)

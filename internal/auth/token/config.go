package token

import "time"

// Supported signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// DefaultClockSkew is the allowed clock skew for time-based claims.
const DefaultClockSkew = 30 * time.Second

// Config holds configuration for the token validator.
type Config struct {
	// Algorithms is the allow list of signing algorithms. Empty means
	// HS256 only.
	Algorithms []string `yaml:"algorithms"`

	// HMACSecret is the shared secret for HS256 verification.
	HMACSecret string `yaml:"hmacSecret"`

	// RSAPublicKeyPEM is the PEM-encoded public key for RS256 verification.
	RSAPublicKeyPEM string `yaml:"rsaPublicKey"`

	// Issuer, when set, must match the token iss claim.
	Issuer string `yaml:"issuer"`

	// ClockSkew is the allowed clock skew for exp/nbf checks.
	ClockSkew time.Duration `yaml:"clockSkew"`
}

// GetEffectiveAlgorithms returns the configured algorithms or the default.
func (c *Config) GetEffectiveAlgorithms() []string {
	if len(c.Algorithms) == 0 {
		return []string{AlgHS256}
	}
	return c.Algorithms
}

// GetEffectiveClockSkew returns the configured clock skew or the default.
func (c *Config) GetEffectiveClockSkew() time.Duration {
	if c.ClockSkew <= 0 {
		return DefaultClockSkew
	}
	return c.ClockSkew
}

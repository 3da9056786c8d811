package token

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// Validator validates bearer tokens.
type Validator interface {
	// Validate validates a token string and returns its claims.
	Validate(ctx context.Context, token string) (*Claims, error)
}

// validator implements the Validator interface.
type validator struct {
	config  *Config
	hmacKey []byte
	rsaKey  *rsa.PublicKey
	logger  observability.Logger
	now     func() time.Time
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*validator)

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *validator) {
		v.logger = logger
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *validator) {
		v.now = now
	}
}

// NewValidator creates a new token validator.
func NewValidator(config *Config, opts ...ValidatorOption) (Validator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	v := &validator{
		config: config,
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	if config.HMACSecret != "" {
		v.hmacKey = []byte(config.HMACSecret)
	}

	if config.RSAPublicKeyPEM != "" {
		key, err := parseRSAPublicKey(config.RSAPublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		v.rsaKey = key
	}

	if v.hmacKey == nil && v.rsaKey == nil {
		return nil, ErrNoKey
	}

	return v, nil
}

// parseRSAPublicKey parses a PEM-encoded RSA public key.
func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return rsaKey, nil
}

// Validate validates a token string and returns its claims.
func (v *validator) Validate(ctx context.Context, token string) (*Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if token == "" {
		return nil, ErrEmptyToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}

	header, err := decodeHeader(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := v.validateAlgorithm(header.Algorithm); err != nil {
		return nil, err
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, err := ParseClaims(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := v.verifySignature(header.Algorithm, parts[0]+"."+parts[1], parts[2]); err != nil {
		return nil, err
	}

	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}

	v.logger.Debug("token validated",
		observability.String("subject", claims.Subject),
	)

	return claims, nil
}

// tokenHeader represents the token header.
type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

// decodeHeader decodes the token header.
func decodeHeader(encoded string) (*tokenHeader, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	var header tokenHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}
	return &header, nil
}

// validateAlgorithm checks the algorithm against the allow list.
func (v *validator) validateAlgorithm(alg string) error {
	for _, allowed := range v.config.GetEffectiveAlgorithms() {
		if alg == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
}

// verifySignature verifies the token signature.
func (v *validator) verifySignature(alg, signingInput, signature string) error {
	sigBytes, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch alg {
	case AlgHS256:
		if v.hmacKey == nil {
			return ErrNoKey
		}
		mac := hmac.New(sha256.New, v.hmacKey)
		mac.Write([]byte(signingInput))
		if !hmac.Equal(mac.Sum(nil), sigBytes) {
			return ErrInvalidSignature
		}
		return nil
	case AlgRS256:
		if v.rsaKey == nil {
			return ErrNoKey
		}
		hashed := sha256.Sum256([]byte(signingInput))
		if err := rsa.VerifyPKCS1v15(v.rsaKey, crypto.SHA256, hashed[:], sigBytes); err != nil {
			return ErrInvalidSignature
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

// validateClaims checks time-based claims and the minimal payload shape.
func (v *validator) validateClaims(claims *Claims) error {
	now := v.now()
	skew := v.config.GetEffectiveClockSkew()

	if claims.Subject == "" {
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.Username == "" {
		return fmt.Errorf("%w: username", ErrMissingClaim)
	}

	// A token without an expiry would validate forever.
	if claims.ExpiresAt == 0 {
		return fmt.Errorf("%w: exp", ErrMissingClaim)
	}
	if now.After(claims.ExpiryTime().Add(skew)) {
		return ErrExpired
	}

	if claims.NotBefore != 0 && now.Add(skew).Before(time.Unix(claims.NotBefore, 0)) {
		return ErrNotYetValid
	}

	if v.config.Issuer != "" && claims.Issuer != v.config.Issuer {
		return fmt.Errorf("%w: iss", ErrMissingClaim)
	}

	return nil
}

// Ensure validator implements Validator.
var _ Validator = (*validator)(nil)

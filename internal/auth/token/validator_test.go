package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-hmac-secret"

// mintHS256 builds and signs a token with the test HMAC secret.
func mintHS256(t *testing.T, mutate func(b *jwt.Builder)) string {
	t.Helper()

	now := time.Now()
	b := jwt.NewBuilder().
		Subject("user-1").
		Claim("username", "alice").
		IssuedAt(now).
		Expiration(now.Add(time.Hour))

	if mutate != nil {
		mutate(b)
	}

	tok, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)

	return string(signed)
}

func newHS256Validator(t *testing.T, opts ...ValidatorOption) Validator {
	t.Helper()

	v, err := NewValidator(&Config{HMACSecret: testSecret}, opts...)
	require.NoError(t, err)
	return v
}

func TestNewValidator_NoKey(t *testing.T) {
	t.Parallel()

	_, err := NewValidator(&Config{})
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestNewValidator_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := NewValidator(nil)
	assert.Error(t, err)
}

func TestValidate_Success(t *testing.T) {
	t.Parallel()

	v := newHS256Validator(t)
	tok := mintHS256(t, nil)

	claims, err := v.Validate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()

	v := newHS256Validator(t)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrEmptyToken},
		{"one part", "abc", ErrMalformed},
		{"two parts", "abc.def", ErrMalformed},
		{"bad base64 header", "!!.payload.sig", ErrMalformed},
		{"bad base64 payload", "eyJhbGciOiJIUzI1NiJ9.!!.sig", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate_Expired(t *testing.T) {
	t.Parallel()

	v := newHS256Validator(t)
	tok := mintHS256(t, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Hour))
	})

	_, err := v.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidate_ExpiredWithinSkew(t *testing.T) {
	t.Parallel()

	v := newHS256Validator(t)
	tok := mintHS256(t, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-10 * time.Second))
	})

	// Inside the default 30s clock skew.
	_, err := v.Validate(context.Background(), tok)
	assert.NoError(t, err)
}

func TestValidate_NotYetValid(t *testing.T) {
	t.Parallel()

	v := newHS256Validator(t)
	tok := mintHS256(t, func(b *jwt.Builder) {
		b.NotBefore(time.Now().Add(time.Hour))
	})

	_, err := v.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrNotYetValid)
}

func TestValidate_InvalidSignature(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(&Config{HMACSecret: "a-different-secret"})
	require.NoError(t, err)

	tok := mintHS256(t, nil)

	_, err = v.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidate_MissingUsername(t *testing.T) {
	t.Parallel()

	v := newHS256Validator(t)

	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject("user-1").
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), string(signed))
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestValidate_MissingExpiry(t *testing.T) {
	t.Parallel()

	v := newHS256Validator(t)

	tok, err := jwt.NewBuilder().
		Subject("user-1").
		Claim("username", "alice").
		IssuedAt(time.Now()).
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), string(signed))
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestValidate_IssuerMismatch(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(&Config{
		HMACSecret: testSecret,
		Issuer:     "avapbx",
	})
	require.NoError(t, err)

	tok := mintHS256(t, func(b *jwt.Builder) {
		b.Issuer("someone-else")
	})

	_, err = v.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestValidate_AlgorithmNotAllowed(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	// Validator only allows RS256; present an HS256 token.
	v, err := NewValidator(&Config{
		Algorithms:      []string{AlgRS256},
		RSAPublicKeyPEM: string(pubPEM),
	})
	require.NoError(t, err)

	tok := mintHS256(t, nil)

	_, err = v.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestValidate_RS256(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	v, err := NewValidator(&Config{
		Algorithms:      []string{AlgRS256},
		RSAPublicKeyPEM: string(pubPEM),
	})
	require.NoError(t, err)

	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject("user-2").
		Claim("username", "bob").
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), string(signed))
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.Subject)
	assert.Equal(t, "bob", claims.Username)
}

func TestValidate_ClockOverride(t *testing.T) {
	t.Parallel()

	future := time.Now().Add(48 * time.Hour)
	v := newHS256Validator(t, WithClock(func() time.Time { return future }))

	tok := mintHS256(t, nil)

	_, err := v.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, []string{AlgHS256}, cfg.GetEffectiveAlgorithms())
	assert.Equal(t, DefaultClockSkew, cfg.GetEffectiveClockSkew())

	cfg = &Config{
		Algorithms: []string{AlgRS256},
		ClockSkew:  5 * time.Second,
	}
	assert.Equal(t, []string{AlgRS256}, cfg.GetEffectiveAlgorithms())
	assert.Equal(t, 5*time.Second, cfg.GetEffectiveClockSkew())
}

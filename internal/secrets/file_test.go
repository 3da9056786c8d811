package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecretDir(t *testing.T, base, name string, keys map[string]string) {
	t.Helper()

	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	for k, v := range keys {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte(v), 0o600))
	}
}

func TestFileProvider_GetSecret(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeSecretDir(t, base, "token-hmac", map[string]string{
		"secret": "topsecret\n",
		"issuer": "avapbx",
	})

	p, err := NewFileProvider(base, nil, NewMetrics("test"))
	require.NoError(t, err)

	secret, err := p.GetSecret(context.Background(), "token-hmac")
	require.NoError(t, err)

	// Trailing newlines are stripped, as in mounted secret volumes.
	v, ok := secret.GetString("secret")
	assert.True(t, ok)
	assert.Equal(t, "topsecret", v)

	issuer, _ := secret.GetString("issuer")
	assert.Equal(t, "avapbx", issuer)
}

func TestFileProvider_SkipsDotfilesAndDirs(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeSecretDir(t, base, "creds", map[string]string{
		"password": "pw",
		"..data":   "symlink target",
		".hidden":  "x",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(base, "creds", "sub"), 0o700))

	p, err := NewFileProvider(base, nil, NewMetrics("test"))
	require.NoError(t, err)

	secret, err := p.GetSecret(context.Background(), "creds")
	require.NoError(t, err)
	assert.Len(t, secret.Data, 1)
	_, ok := secret.GetBytes("password")
	assert.True(t, ok)
}

func TestFileProvider_NotFound(t *testing.T) {
	t.Parallel()

	p, err := NewFileProvider(t.TempDir(), nil, NewMetrics("test"))
	require.NoError(t, err)

	_, err = p.GetSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = p.GetSecret(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = p.GetSecret(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestFileProvider_HealthCheck(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	p, err := NewFileProvider(base, nil, NewMetrics("test"))
	require.NoError(t, err)
	assert.NoError(t, p.HealthCheck(context.Background()))

	gone, err := NewFileProvider(filepath.Join(base, "gone"), nil, NewMetrics("test"))
	require.NoError(t, err)
	assert.ErrorIs(t, gone.HealthCheck(context.Background()), ErrProviderUnavailable)
}

func TestNewFileProvider_RequiresBasePath(t *testing.T) {
	t.Parallel()

	_, err := NewFileProvider("", nil, nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

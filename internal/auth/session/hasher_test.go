package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashers_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		hasher Hasher
	}{
		{"sha256", &SHA256Hasher{}},
		{"bcrypt", &BcryptHasher{Cost: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash, err := tt.hasher.Hash("the-secret")
			require.NoError(t, err)
			assert.NotEqual(t, "the-secret", hash)

			assert.NoError(t, tt.hasher.Compare(hash, "the-secret"))
			assert.ErrorIs(t, tt.hasher.Compare(hash, "wrong"), ErrSecretMismatch)
		})
	}
}

func TestNewHasher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		algorithm string
		wantErr   bool
	}{
		{"", false},
		{HashAlgSHA256, false},
		{HashAlgBcrypt, false},
		{"md5", true},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			t.Parallel()

			h, err := NewHasher(tt.algorithm)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, h)
		})
	}
}

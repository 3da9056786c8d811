package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash algorithm constants.
const (
	HashAlgSHA256 = "sha256"
	HashAlgBcrypt = "bcrypt"
)

// Hasher hashes session handle secrets for storage and compares
// presented secrets against stored hashes.
type Hasher interface {
	// Hash returns the storable hash of a secret.
	Hash(secret string) (string, error)

	// Compare checks a presented secret against a stored hash.
	Compare(hash, secret string) error
}

// SHA256Hasher hashes secrets with SHA-256 and compares in constant time.
type SHA256Hasher struct{}

// Hash returns the hex-encoded SHA-256 hash of the secret.
func (h *SHA256Hasher) Hash(secret string) (string, error) {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:]), nil
}

// Compare checks a presented secret against a stored hash.
func (h *SHA256Hasher) Compare(hash, secret string) error {
	sum := sha256.Sum256([]byte(secret))
	presented := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(presented), []byte(hash)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

// BcryptHasher hashes secrets with bcrypt. Slower than SHA-256; meant
// for deployments where the session store is shared with less trusted
// components.
type BcryptHasher struct {
	// Cost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	Cost int
}

// Hash returns the bcrypt hash of the secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare checks a presented secret against a stored hash.
func (h *BcryptHasher) Compare(hash, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return ErrSecretMismatch
	}
	return nil
}

// NewHasher creates a hasher for the given algorithm.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", HashAlgSHA256:
		return &SHA256Hasher{}, nil
	case HashAlgBcrypt:
		return &BcryptHasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// Ensure hashers implement Hasher.
var (
	_ Hasher = (*SHA256Hasher)(nil)
	_ Hasher = (*BcryptHasher)(nil)
)

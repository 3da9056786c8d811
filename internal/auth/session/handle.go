package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// secretBytes is the entropy of a generated handle secret.
const secretBytes = 32

// BuildHandle joins a session id and secret into a client handle.
func BuildHandle(id, secret string) string {
	return id + "." + secret
}

// ParseHandle splits a client handle into session id and secret.
func ParseHandle(handle string) (id, secret string, err error) {
	parts := strings.SplitN(handle, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrHandleMalformed
	}
	return parts[0], parts[1], nil
}

// newSecret generates a random handle secret.
func newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

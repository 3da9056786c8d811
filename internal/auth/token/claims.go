package token

import (
	"encoding/json"
	"time"
)

// Claims is the decoded bearer token payload.
type Claims struct {
	// Subject is the principal id (sub).
	Subject string `json:"sub"`

	// Username is the principal login name.
	Username string `json:"username"`

	// DomainID is the PBX domain claimed by the token.
	DomainID string `json:"domain_id,omitempty"`

	// SessionID links the token to an issuing session, when present.
	SessionID string `json:"session_id,omitempty"`

	// Issuer is the token issuer (iss).
	Issuer string `json:"iss,omitempty"`

	// IssuedAt is the issue time (iat), unix seconds.
	IssuedAt int64 `json:"iat,omitempty"`

	// ExpiresAt is the expiry time (exp), unix seconds.
	ExpiresAt int64 `json:"exp,omitempty"`

	// NotBefore is the not-before time (nbf), unix seconds.
	NotBefore int64 `json:"nbf,omitempty"`
}

// ParseClaims decodes a JSON payload into Claims.
func ParseClaims(data []byte) (*Claims, error) {
	var claims Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// IssuedTime returns the issue time as a time.Time.
func (c *Claims) IssuedTime() time.Time {
	if c.IssuedAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.IssuedAt, 0)
}

// ExpiryTime returns the expiry time as a time.Time.
func (c *Claims) ExpiryTime() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0)
}

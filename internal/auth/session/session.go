package session

import (
	"time"
)

// Session is a server-side administration session record.
type Session struct {
	// ID is the session identifier (not the handle).
	ID string `json:"id"`

	// PrincipalID is the id of the authenticated administrator.
	PrincipalID string `json:"principal_id"`

	// Username is the administrator login name.
	Username string `json:"username"`

	// DomainID is the PBX domain the session was opened against.
	DomainID string `json:"domain_id,omitempty"`

	// ClientIP is the address the session was opened from.
	ClientIP string `json:"client_ip,omitempty"`

	// IssuedAt is when the session was created.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is the absolute session expiry.
	ExpiresAt time.Time `json:"expires_at"`

	// LastSeenAt is the last time the session was used.
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`

	// Revoked marks the session as administratively terminated.
	Revoked bool `json:"revoked,omitempty"`
}

// IsExpired checks whether the session expiry has passed.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// IsValid checks whether the session is usable at the given time.
func (s *Session) IsValid(now time.Time) bool {
	return !s.Revoked && !s.IsExpired(now)
}

// TTL returns the remaining lifetime of the session, or zero if expired.
func (s *Session) TTL(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	ttl := s.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

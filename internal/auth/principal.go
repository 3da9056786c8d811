package auth

import (
	"context"
	"errors"
	"time"
)

// AuthMethod represents how a principal was authenticated.
type AuthMethod string

// Authentication methods.
const (
	AuthMethodSession AuthMethod = "session"
	AuthMethodToken   AuthMethod = "token"
)

// Principal is the resolved identity for the current request. It is
// created once per request by the Resolver and is immutable afterward.
type Principal struct {
	// ID is the unique identifier of the principal.
	ID string `json:"id"`

	// Username is the login name of the principal.
	Username string `json:"username"`

	// DomainID is the PBX domain the principal belongs to.
	DomainID string `json:"domain_id,omitempty"`

	// Roles contains the role names assigned to the principal.
	Roles []string `json:"roles,omitempty"`

	// Permissions contains effective permission strings (resource:action).
	Permissions []string `json:"permissions,omitempty"`

	// PrimaryRole is the principal's primary role name.
	PrimaryRole string `json:"primary_role,omitempty"`

	// AuthMethod is the authentication method used.
	AuthMethod AuthMethod `json:"auth_method"`

	// IssuedAt is when the credential was issued.
	IssuedAt time.Time `json:"issued_at,omitempty"`

	// ExpiresAt is when the credential expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// SessionID is the session identifier, when session-authenticated.
	SessionID string `json:"session_id,omitempty"`
}

// IsExpired returns true if the principal's credential has expired.
func (p *Principal) IsExpired() bool {
	if p.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(p.ExpiresAt)
}

// HasRole checks if the principal has a specific role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the principal has any of the specified roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// Context key type for the principal.
type principalContextKey struct{}

// ContextWithPrincipal adds a principal to the context.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	return principal, ok
}

// ErrPrincipalNotFound is returned when no principal is found in context.
var ErrPrincipalNotFound = errors.New("principal not found in context")

// PrincipalFromContextOrError extracts the principal from the context or
// returns an error.
func PrincipalFromContextOrError(ctx context.Context) (*Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal == nil {
		return nil, ErrPrincipalNotFound
	}
	return principal, nil
}

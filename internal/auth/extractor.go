package auth

import (
	"net/http"
	"strings"
)

// Default credential locations.
const (
	HeaderAuthorization = "Authorization"
	HeaderSessionToken  = "X-Session-Token"
	SessionCookieName   = "avapbx_session"
	BearerPrefix        = "Bearer "
)

// CredentialType represents the type of extracted credential.
type CredentialType string

// Credential types.
const (
	CredentialTypeSession CredentialType = "session"
	CredentialTypeBearer  CredentialType = "bearer"
)

// Credentials represents credentials extracted from a request.
type Credentials struct {
	// Type is the credential type.
	Type CredentialType

	// Value is the raw credential value.
	Value string

	// Source is where the credential was extracted from.
	Source string

	// ClientIP is the caller address, used for rate-limit keying and audit.
	ClientIP string
}

// ExtractCredentials pulls session and bearer credentials out of an HTTP
// request. The session handle is looked for first (header, then cookie);
// the bearer token is only extracted when no session material is present,
// preserving the session-first trust order.
func ExtractCredentials(r *http.Request) (*Credentials, error) {
	if handle := r.Header.Get(HeaderSessionToken); handle != "" {
		return &Credentials{
			Type:   CredentialTypeSession,
			Value:  handle,
			Source: "header:" + HeaderSessionToken,
		}, nil
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return &Credentials{
			Type:   CredentialTypeSession,
			Value:  cookie.Value,
			Source: "cookie:" + SessionCookieName,
		}, nil
	}

	if header := r.Header.Get(HeaderAuthorization); header != "" {
		if strings.HasPrefix(header, BearerPrefix) {
			token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
			if token != "" {
				return &Credentials{
					Type:   CredentialTypeBearer,
					Value:  token,
					Source: "header:" + HeaderAuthorization,
				}, nil
			}
		}
		return nil, ErrTokenMalformed
	}

	return nil, ErrNoCredentials
}

package session

import "errors"

// Common errors for session validation and storage.
var (
	// ErrSessionNotFound indicates no session exists for the handle.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session expiry has passed.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked indicates the session was administratively terminated.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrHandleMalformed indicates the handle is not of the form "id.secret".
	ErrHandleMalformed = errors.New("malformed session handle")

	// ErrSecretMismatch indicates the handle secret does not match the
	// stored hash.
	ErrSecretMismatch = errors.New("session secret mismatch")

	// ErrSessionExists indicates an attempt to create a session with an id
	// already in use.
	ErrSessionExists = errors.New("session already exists")
)

package token

import "errors"

// Sentinel errors for token validation.
var (
	// ErrEmptyToken indicates an empty token string.
	ErrEmptyToken = errors.New("empty token")

	// ErrMalformed indicates the token does not have three dot-separated parts
	// or a part fails to decode.
	ErrMalformed = errors.New("malformed token")

	// ErrExpired indicates the token expiry is in the past.
	ErrExpired = errors.New("token expired")

	// ErrNotYetValid indicates the token nbf is in the future.
	ErrNotYetValid = errors.New("token not yet valid")

	// ErrInvalidSignature indicates the signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrUnsupportedAlgorithm indicates a signing algorithm outside the
	// configured allow list.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

	// ErrMissingClaim indicates a required claim is absent.
	ErrMissingClaim = errors.New("missing required claim")

	// ErrNoKey indicates no verification key is configured.
	ErrNoKey = errors.New("no verification key configured")
)

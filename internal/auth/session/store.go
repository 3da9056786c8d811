package session

import (
	"context"
	"time"
)

// Record is a stored session together with the hash of its handle secret.
// The raw secret never reaches the store.
type Record struct {
	Session    Session `json:"session"`
	SecretHash string  `json:"secret_hash"`
}

// Store persists session records keyed by session id.
//
// Get returns expired records as-is; callers distinguish expired from
// missing. Backends with native TTL support may drop expired records,
// in which case Get returns ErrSessionNotFound.
type Store interface {
	// Put stores a session record.
	Put(ctx context.Context, rec *Record) error

	// Get retrieves a session record by id.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a session record by id.
	Delete(ctx context.Context, id string) error

	// Touch updates the last-seen time of a session.
	Touch(ctx context.Context, id string, at time.Time) error

	// Close releases store resources.
	Close() error
}

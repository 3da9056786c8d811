package auth

import (
	"context"
	"sync"
	"time"
)

// UserRecord is the stored view of a principal, fetched from the user
// store during resolution. Role and permission data always comes from
// here, never from claims embedded in the credential, so a token issued
// before a demotion cannot keep stale privileges alive until expiry.
type UserRecord struct {
	ID           string
	Username     string
	DomainID     string
	Active       bool
	Roles        []string
	Permissions  []string
	PrimaryRole  string
	Attributes   map[string]string
	LastActivity time.Time
}

// UserStore is the read-only user/attribute lookup service consumed by
// the resolver. Implementations live outside the authorization core.
type UserStore interface {
	// GetUser fetches a user record by principal id.
	GetUser(ctx context.Context, id string) (*UserRecord, error)

	// TouchLastActivity updates the last-activity timestamp. Best effort;
	// callers must not fail a request on error.
	TouchLastActivity(ctx context.Context, id string, at time.Time) error
}

// MemoryUserStore is an in-memory UserStore used in tests and for
// single-node development deployments.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*UserRecord
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*UserRecord)}
}

// Put adds or replaces a user record.
func (s *MemoryUserStore) Put(record *UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[record.ID] = record
}

// GetUser fetches a user record by principal id.
func (s *MemoryUserStore) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.users[id]
	if !ok {
		return nil, ErrSubjectNotFound
	}

	// Return a copy so callers cannot mutate stored state.
	out := *record
	out.Roles = append([]string(nil), record.Roles...)
	out.Permissions = append([]string(nil), record.Permissions...)
	return &out, nil
}

// TouchLastActivity updates the last-activity timestamp.
func (s *MemoryUserStore) TouchLastActivity(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.users[id]; ok {
		record.LastActivity = at
	}
	return nil
}

// Ensure MemoryUserStore implements UserStore.
var _ UserStore = (*MemoryUserStore)(nil)

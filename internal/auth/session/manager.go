package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// DefaultLifetime is the session lifetime used when issuing without an
// explicit expiry.
const DefaultLifetime = 8 * time.Hour

// Manager issues, validates, and revokes administration sessions.
type Manager interface {
	// Issue creates a session and returns the client handle.
	Issue(ctx context.Context, sess *Session) (string, error)

	// Validate checks a client handle and returns the session.
	Validate(ctx context.Context, handle string) (*Session, error)

	// Touch updates the last-seen time of a session.
	Touch(ctx context.Context, id string, at time.Time) error

	// Revoke terminates a session by id.
	Revoke(ctx context.Context, id string) error
}

// manager implements the Manager interface.
type manager struct {
	store    Store
	hasher   Hasher
	lifetime time.Duration
	logger   observability.Logger
	now      func() time.Time
}

// ManagerOption is a functional option for the manager.
type ManagerOption func(*manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger observability.Logger) ManagerOption {
	return func(m *manager) {
		m.logger = logger
	}
}

// WithHasher sets the handle secret hasher.
func WithHasher(hasher Hasher) ManagerOption {
	return func(m *manager) {
		m.hasher = hasher
	}
}

// WithLifetime sets the default session lifetime.
func WithLifetime(lifetime time.Duration) ManagerOption {
	return func(m *manager) {
		m.lifetime = lifetime
	}
}

// WithManagerClock overrides the time source, used in tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *manager) {
		m.now = now
	}
}

// NewManager creates a new session manager backed by the given store.
func NewManager(store Store, opts ...ManagerOption) (Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	m := &manager{
		store:    store,
		hasher:   &SHA256Hasher{},
		lifetime: DefaultLifetime,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Issue creates a session and returns the client handle. The session id
// and times are filled in when absent.
func (m *manager) Issue(ctx context.Context, sess *Session) (string, error) {
	now := m.now()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.IssuedAt.IsZero() {
		sess.IssuedAt = now
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = now.Add(m.lifetime)
	}
	sess.LastSeenAt = now

	secret, err := newSecret()
	if err != nil {
		return "", err
	}

	secretHash, err := m.hasher.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("failed to hash session secret: %w", err)
	}

	rec := &Record{
		Session:    *sess,
		SecretHash: secretHash,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	m.logger.Info("session issued",
		observability.String("session_id", sess.ID),
		observability.String("principal_id", sess.PrincipalID),
		observability.Time("expires_at", sess.ExpiresAt),
	)

	return BuildHandle(sess.ID, secret), nil
}

// Validate checks a client handle and returns the session.
func (m *manager) Validate(ctx context.Context, handle string) (*Session, error) {
	id, secret, err := ParseHandle(handle)
	if err != nil {
		return nil, err
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	if err := m.hasher.Compare(rec.SecretHash, secret); err != nil {
		m.logger.Warn("session secret mismatch",
			observability.String("session_id", id))
		return nil, ErrSecretMismatch
	}

	sess := rec.Session
	now := m.now()
	if sess.Revoked {
		return nil, ErrSessionRevoked
	}
	if sess.IsExpired(now) {
		return nil, ErrSessionExpired
	}

	return &sess, nil
}

// Touch updates the last-seen time of a session.
func (m *manager) Touch(ctx context.Context, id string, at time.Time) error {
	return m.store.Touch(ctx, id, at)
}

// Revoke terminates a session by id.
func (m *manager) Revoke(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("session revoked",
		observability.String("session_id", id))
	return nil
}

// Ensure manager implements Manager.
var _ Manager = (*manager)(nil)

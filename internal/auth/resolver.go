package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avapbx/internal/auth/session"
	"github.com/vyrodovalexey/avapbx/internal/auth/token"
	"github.com/vyrodovalexey/avapbx/internal/observability"
)

// DefaultStoreTimeout bounds user store lookups during resolution.
const DefaultStoreTimeout = 2 * time.Second

// Resolver turns request credentials into an authenticated Principal.
//
// Resolution is session-first: when a session credential is present it
// is the only channel tried, and an invalid session never falls through
// to bearer token validation. Roles and permissions always come from
// the user store, not from token claims.
type Resolver interface {
	// ResolveRequest extracts credentials from the request and resolves them.
	ResolveRequest(ctx context.Context, r *http.Request) (*Principal, error)

	// Resolve resolves already-extracted credentials.
	Resolve(ctx context.Context, creds *Credentials) (*Principal, error)
}

// resolver implements the Resolver interface.
type resolver struct {
	sessions       session.Manager
	tokens         token.Validator
	users          UserStore
	storeTimeout   time.Duration
	touchActivity  bool
	logger         observability.Logger
	metrics        *Metrics
	now            func() time.Time
}

// ResolverOption is a functional option for the resolver.
type ResolverOption func(*resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger observability.Logger) ResolverOption {
	return func(rs *resolver) {
		rs.logger = logger
	}
}

// WithResolverMetrics sets the metrics.
func WithResolverMetrics(metrics *Metrics) ResolverOption {
	return func(rs *resolver) {
		rs.metrics = metrics
	}
}

// WithStoreTimeout sets the user store lookup deadline.
func WithStoreTimeout(d time.Duration) ResolverOption {
	return func(rs *resolver) {
		rs.storeTimeout = d
	}
}

// WithActivityTouch enables best-effort last-activity updates on
// successful resolution.
func WithActivityTouch(enabled bool) ResolverOption {
	return func(rs *resolver) {
		rs.touchActivity = enabled
	}
}

// WithResolverClock overrides the time source, used in tests.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(rs *resolver) {
		rs.now = now
	}
}

// NewResolver creates a new identity resolver.
func NewResolver(sessions session.Manager, tokens token.Validator, users UserStore, opts ...ResolverOption) (Resolver, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessions == nil && tokens == nil {
		return nil, fmt.Errorf("at least one of session manager or token validator is required")
	}

	rs := &resolver{
		sessions:      sessions,
		tokens:        tokens,
		users:         users,
		storeTimeout:  DefaultStoreTimeout,
		touchActivity: true,
		logger:        observability.NopLogger(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(rs)
	}

	if rs.metrics == nil {
		rs.metrics = GetSharedMetrics()
	}

	return rs, nil
}

// ResolveRequest extracts credentials from the request and resolves them.
func (rs *resolver) ResolveRequest(ctx context.Context, r *http.Request) (*Principal, error) {
	creds, err := ExtractCredentials(r)
	if err != nil {
		rs.metrics.RecordResolution("none", "error", "no_credentials", 0)
		return nil, NewResolveError("", err)
	}
	return rs.Resolve(ctx, creds)
}

// Resolve resolves already-extracted credentials.
func (rs *resolver) Resolve(ctx context.Context, creds *Credentials) (*Principal, error) {
	if creds == nil {
		return nil, NewResolveError("", ErrNoCredentials)
	}

	start := rs.now()

	switch creds.Type {
	case CredentialTypeSession:
		p, err := rs.resolveSession(ctx, creds)
		rs.record(AuthMethodSession, start, err)
		return p, err
	case CredentialTypeBearer:
		p, err := rs.resolveToken(ctx, creds)
		rs.record(AuthMethodToken, start, err)
		return p, err
	default:
		return nil, NewResolveError("", ErrNoCredentials)
	}
}

// record updates resolution metrics.
func (rs *resolver) record(method AuthMethod, start time.Time, err error) {
	status, reason := "success", "ok"
	if err != nil {
		status = "error"
		reason = resolveFailureReason(err)
	}
	rs.metrics.RecordResolution(string(method), status, reason, rs.now().Sub(start))
}

// resolveFailureReason maps a resolution error to a metric label.
func resolveFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrSessionInvalid):
		return "session_invalid"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenMalformed):
		return "token_malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrSubjectNotFound):
		return "subject_not_found"
	case errors.Is(err, ErrSubjectInactive):
		return "subject_inactive"
	case errors.Is(err, ErrDomainMismatch):
		return "domain_mismatch"
	case errors.Is(err, ErrStoreTimeout):
		return "store_timeout"
	default:
		return "unauthenticated"
	}
}

// resolveSession resolves a session credential. A present-but-invalid
// session is a terminal failure.
func (rs *resolver) resolveSession(ctx context.Context, creds *Credentials) (*Principal, error) {
	if rs.sessions == nil {
		return nil, NewResolveError(AuthMethodSession, ErrSessionInvalid)
	}

	sess, err := rs.sessions.Validate(ctx, creds.Value)
	if err != nil {
		cause := ErrSessionInvalid
		if errors.Is(err, session.ErrSessionExpired) {
			cause = ErrSessionExpired
		}
		rs.logger.Debug("session validation failed",
			observability.Error(err))
		return nil, NewResolveError(AuthMethodSession, cause)
	}

	user, err := rs.fetchUser(ctx, sess.PrincipalID)
	if err != nil {
		return nil, NewResolveError(AuthMethodSession, err)
	}

	if sess.DomainID != "" && user.DomainID != "" && sess.DomainID != user.DomainID {
		return nil, NewResolveError(AuthMethodSession, ErrDomainMismatch)
	}

	p := rs.principalFromUser(user, AuthMethodSession)
	p.SessionID = sess.ID
	p.IssuedAt = sess.IssuedAt
	p.ExpiresAt = sess.ExpiresAt

	rs.touch(user.ID, sess.ID)

	return p, nil
}

// resolveToken resolves a bearer token credential.
func (rs *resolver) resolveToken(ctx context.Context, creds *Credentials) (*Principal, error) {
	if rs.tokens == nil {
		return nil, NewResolveError(AuthMethodToken, ErrTokenMalformed)
	}

	claims, err := rs.tokens.Validate(ctx, creds.Value)
	if err != nil {
		cause := tokenFailureCause(err)
		rs.logger.Debug("token validation failed",
			observability.Error(err))
		return nil, NewResolveError(AuthMethodToken, cause)
	}

	user, err := rs.fetchUser(ctx, claims.Subject)
	if err != nil {
		return nil, NewResolveError(AuthMethodToken, err)
	}

	if claims.DomainID != "" && user.DomainID != "" && claims.DomainID != user.DomainID {
		return nil, NewResolveError(AuthMethodToken, ErrDomainMismatch)
	}

	p := rs.principalFromUser(user, AuthMethodToken)
	p.SessionID = claims.SessionID
	p.IssuedAt = claims.IssuedTime()
	p.ExpiresAt = claims.ExpiryTime()

	rs.touch(user.ID, "")

	return p, nil
}

// tokenFailureCause maps a token validation error to a resolution cause.
func tokenFailureCause(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrInvalidSignature):
		return ErrInvalidSignature
	case errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrEmptyToken):
		return ErrTokenMalformed
	default:
		return ErrTokenMalformed
	}
}

// fetchUser loads the current user record under the store deadline.
// Roles and permissions always come from this lookup, never from
// credential claims.
func (rs *resolver) fetchUser(ctx context.Context, id string) (*UserRecord, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, rs.storeTimeout)
	defer cancel()

	user, err := rs.users.GetUser(lookupCtx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			rs.metrics.RecordStoreTimeout()
			rs.logger.Warn("user store lookup timed out",
				observability.String("principal_id", id))
			return nil, ErrStoreTimeout
		}
		if errors.Is(err, ErrSubjectNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("user store lookup failed: %w", err)
	}

	if !user.Active {
		return nil, ErrSubjectInactive
	}

	return user, nil
}

// principalFromUser builds a Principal from a user record.
func (rs *resolver) principalFromUser(user *UserRecord, method AuthMethod) *Principal {
	return &Principal{
		ID:          user.ID,
		Username:    user.Username,
		DomainID:    user.DomainID,
		Roles:       user.Roles,
		Permissions: user.Permissions,
		PrimaryRole: user.PrimaryRole,
		AuthMethod:  method,
	}
}

// touch updates last-activity bookkeeping without blocking resolution.
func (rs *resolver) touch(userID, sessionID string) {
	if !rs.touchActivity {
		return
	}

	now := rs.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rs.storeTimeout)
		defer cancel()

		if err := rs.users.TouchLastActivity(ctx, userID, now); err != nil {
			rs.logger.Debug("last-activity touch failed",
				observability.String("principal_id", userID),
				observability.Error(err))
		}
		if sessionID != "" && rs.sessions != nil {
			if err := rs.sessions.Touch(ctx, sessionID, now); err != nil {
				rs.logger.Debug("session touch failed",
					observability.String("session_id", sessionID),
					observability.Error(err))
			}
		}
	}()
}

// Ensure resolver implements Resolver.
var _ Resolver = (*resolver)(nil)

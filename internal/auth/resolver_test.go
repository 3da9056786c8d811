package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapbx/internal/auth/session"
	"github.com/vyrodovalexey/avapbx/internal/auth/token"
)

const testHMACSecret = "resolver-test-secret"

type resolverFixture struct {
	resolver Resolver
	sessions session.Manager
	users    *MemoryUserStore
}

func newResolverFixture(t *testing.T, opts ...ResolverOption) *resolverFixture {
	t.Helper()

	users := NewMemoryUserStore()
	users.Put(&UserRecord{
		ID:          "user-1",
		Username:    "alice",
		DomainID:    "pbx.example.com",
		Active:      true,
		Roles:       []string{"domain_admin"},
		Permissions: []string{"extensions:manage"},
		PrimaryRole: "domain_admin",
	})

	sessions, err := session.NewManager(session.NewMemoryStore())
	require.NoError(t, err)

	tokens, err := token.NewValidator(&token.Config{HMACSecret: testHMACSecret})
	require.NoError(t, err)

	opts = append([]ResolverOption{WithActivityTouch(false)}, opts...)
	r, err := NewResolver(sessions, tokens, users, opts...)
	require.NoError(t, err)

	return &resolverFixture{resolver: r, sessions: sessions, users: users}
}

func (f *resolverFixture) issueSession(t *testing.T, principalID, domainID string) string {
	t.Helper()

	handle, err := f.sessions.Issue(context.Background(), &session.Session{
		PrincipalID: principalID,
		DomainID:    domainID,
	})
	require.NoError(t, err)
	return handle
}

func mintBearer(t *testing.T, subject string, mutate func(b *jwt.Builder)) string {
	t.Helper()

	now := time.Now()
	b := jwt.NewBuilder().
		Subject(subject).
		Claim("username", "alice").
		IssuedAt(now).
		Expiration(now.Add(time.Hour))
	if mutate != nil {
		mutate(b)
	}

	tok, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testHMACSecret)))
	require.NoError(t, err)
	return string(signed)
}

func TestResolver_SessionSuccess(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)
	handle := f.issueSession(t, "user-1", "pbx.example.com")

	p, err := f.resolver.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeSession,
		Value: handle,
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, AuthMethodSession, p.AuthMethod)
	assert.Equal(t, []string{"domain_admin"}, p.Roles)
	assert.Equal(t, []string{"extensions:manage"}, p.Permissions)
	assert.NotEmpty(t, p.SessionID)
}

func TestResolver_InvalidSessionDoesNotFallThrough(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)

	// Both a bogus session handle and a valid bearer token are presented.
	// The session channel is chosen and its failure is terminal.
	r := httptest.NewRequest(http.MethodGet, "/api/v1/extensions", nil)
	r.Header.Set(HeaderSessionToken, "bogus.handle")
	r.Header.Set(HeaderAuthorization, BearerPrefix+mintBearer(t, "user-1", nil))

	_, err := f.resolver.ResolveRequest(context.Background(), r)
	require.Error(t, err)
	assert.True(t, IsUnauthenticated(err))
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestResolver_SessionExpired(t *testing.T) {
	t.Parallel()

	users := NewMemoryUserStore()
	users.Put(&UserRecord{ID: "user-1", Username: "alice", Active: true})

	store := session.NewMemoryStore()
	now := time.Now()
	clock := &now
	sessions, err := session.NewManager(store,
		session.WithLifetime(time.Hour),
		session.WithManagerClock(func() time.Time { return *clock }),
	)
	require.NoError(t, err)

	r, err := NewResolver(sessions, nil, users, WithActivityTouch(false))
	require.NoError(t, err)

	handle, err := sessions.Issue(context.Background(), &session.Session{PrincipalID: "user-1"})
	require.NoError(t, err)

	later := now.Add(2 * time.Hour)
	clock = &later

	_, err = r.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeSession,
		Value: handle,
	})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, IsUnauthenticated(err))
}

func TestResolver_TokenSuccess(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)

	p, err := f.resolver.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeBearer,
		Value: mintBearer(t, "user-1", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, AuthMethodToken, p.AuthMethod)
	assert.Equal(t, []string{"domain_admin"}, p.Roles)
}

func TestResolver_RolesComeFromStoreNotClaims(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)

	// Token claims a role set the store does not have; the store wins.
	bearer := mintBearer(t, "user-1", func(b *jwt.Builder) {
		b.Claim("roles", []string{"superadmin"})
	})

	p, err := f.resolver.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeBearer,
		Value: bearer,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"domain_admin"}, p.Roles)
	assert.NotContains(t, p.Roles, "superadmin")
}

func TestResolver_TokenExpired(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)

	bearer := mintBearer(t, "user-1", func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Hour))
	})

	_, err := f.resolver.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeBearer,
		Value: bearer,
	})
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.True(t, IsUnauthenticated(err))
}

func TestResolver_SubjectNotFound(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)

	_, err := f.resolver.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeBearer,
		Value: mintBearer(t, "ghost", nil),
	})
	assert.ErrorIs(t, err, ErrSubjectNotFound)
	assert.True(t, IsUnauthenticated(err))
}

func TestResolver_SubjectInactive(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)
	f.users.Put(&UserRecord{
		ID:       "user-2",
		Username: "bob",
		Active:   false,
	})

	_, err := f.resolver.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeBearer,
		Value: mintBearer(t, "user-2", nil),
	})
	assert.ErrorIs(t, err, ErrSubjectInactive)
	assert.True(t, IsUnauthenticated(err))
}

func TestResolver_DomainMismatch(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)

	bearer := mintBearer(t, "user-1", func(b *jwt.Builder) {
		b.Claim("domain_id", "other.example.com")
	})

	_, err := f.resolver.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeBearer,
		Value: bearer,
	})
	assert.ErrorIs(t, err, ErrDomainMismatch)
	assert.True(t, IsUnauthenticated(err))
}

// slowUserStore blocks until the lookup context is done.
type slowUserStore struct{}

func (s *slowUserStore) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowUserStore) TouchLastActivity(ctx context.Context, id string, at time.Time) error {
	return nil
}

func TestResolver_StoreTimeout(t *testing.T) {
	t.Parallel()

	tokens, err := token.NewValidator(&token.Config{HMACSecret: testHMACSecret})
	require.NoError(t, err)

	r, err := NewResolver(nil, tokens, &slowUserStore{},
		WithActivityTouch(false),
		WithStoreTimeout(10*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeBearer,
		Value: mintBearer(t, "user-1", nil),
	})
	assert.ErrorIs(t, err, ErrStoreTimeout)
	assert.True(t, IsUnauthenticated(err))
}

func TestResolver_NoCredentials(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/extensions", nil)
	_, err := f.resolver.ResolveRequest(context.Background(), r)
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.True(t, IsUnauthenticated(err))
}

func TestResolver_ActivityTouch(t *testing.T) {
	t.Parallel()

	users := NewMemoryUserStore()
	users.Put(&UserRecord{ID: "user-1", Username: "alice", Active: true})

	sessions, err := session.NewManager(session.NewMemoryStore())
	require.NoError(t, err)

	r, err := NewResolver(sessions, nil, users)
	require.NoError(t, err)

	handle, err := sessions.Issue(context.Background(), &session.Session{PrincipalID: "user-1"})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), &Credentials{
		Type:  CredentialTypeSession,
		Value: handle,
	})
	require.NoError(t, err)

	// The touch runs in the background; poll briefly for it to land.
	assert.Eventually(t, func() bool {
		rec, err := users.GetUser(context.Background(), "user-1")
		return err == nil && !rec.LastActivity.IsZero()
	}, time.Second, 10*time.Millisecond)
}

package server

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/avapbx/internal/auth"
)

// ErrBadCredentials is returned for unknown users, wrong passwords, and
// disabled accounts alike.
var ErrBadCredentials = fmt.Errorf("invalid credentials")

// dummyHash keeps the bcrypt cost constant for unknown usernames.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Directory maps administrator login names to credentials and user
// records. It backs the login route only; request authentication goes
// through the identity resolver.
type Directory struct {
	users auth.UserStore

	mu          sync.RWMutex
	credentials map[string]*credential
}

type credential struct {
	userID       string
	passwordHash []byte
}

// NewDirectory creates a credential directory over the given user
// store.
func NewDirectory(users auth.UserStore) *Directory {
	return &Directory{
		users:       users,
		credentials: make(map[string]*credential),
	}
}

// SetPassword registers or replaces the password for a login name.
func (d *Directory) SetPassword(username, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	d.mu.Lock()
	d.credentials[username] = &credential{userID: userID, passwordHash: hash}
	d.mu.Unlock()

	return nil
}

// Verify checks a username/password pair and returns the user record.
// All failure modes collapse into ErrBadCredentials so callers cannot
// distinguish unknown users from wrong passwords.
func (d *Directory) Verify(ctx context.Context, username, password string) (*auth.UserRecord, error) {
	d.mu.RLock()
	cred, ok := d.credentials[username]
	d.mu.RUnlock()

	if !ok {
		// Burn the same bcrypt cost as a real comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword(cred.passwordHash, []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	record, err := d.users.GetUser(ctx, cred.userID)
	if err != nil {
		return nil, ErrBadCredentials
	}
	if !record.Active {
		return nil, ErrBadCredentials
	}

	return record, nil
}

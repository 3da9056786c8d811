package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantType   CredentialType
		wantValue  string
		wantSource string
		wantErr    error
	}{
		{
			name: "session header",
			setup: func(r *http.Request) {
				r.Header.Set(HeaderSessionToken, "sess-id.secret")
			},
			wantType:   CredentialTypeSession,
			wantValue:  "sess-id.secret",
			wantSource: "header:" + HeaderSessionToken,
		},
		{
			name: "session cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-id.secret"})
			},
			wantType:   CredentialTypeSession,
			wantValue:  "sess-id.secret",
			wantSource: "cookie:" + SessionCookieName,
		},
		{
			name: "bearer token",
			setup: func(r *http.Request) {
				r.Header.Set(HeaderAuthorization, "Bearer abc.def.ghi")
			},
			wantType:   CredentialTypeBearer,
			wantValue:  "abc.def.ghi",
			wantSource: "header:" + HeaderAuthorization,
		},
		{
			name: "session header wins over bearer",
			setup: func(r *http.Request) {
				r.Header.Set(HeaderSessionToken, "sess-id.secret")
				r.Header.Set(HeaderAuthorization, "Bearer abc.def.ghi")
			},
			wantType:  CredentialTypeSession,
			wantValue: "sess-id.secret",
		},
		{
			name: "session cookie wins over bearer",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-id.secret"})
				r.Header.Set(HeaderAuthorization, "Bearer abc.def.ghi")
			},
			wantType:  CredentialTypeSession,
			wantValue: "sess-id.secret",
		},
		{
			name:    "no credentials",
			setup:   func(r *http.Request) {},
			wantErr: ErrNoCredentials,
		},
		{
			name: "non-bearer authorization",
			setup: func(r *http.Request) {
				r.Header.Set(HeaderAuthorization, "Basic dXNlcjpwYXNz")
			},
			wantErr: ErrTokenMalformed,
		},
		{
			name: "bearer with empty token",
			setup: func(r *http.Request) {
				r.Header.Set(HeaderAuthorization, "Bearer   ")
			},
			wantErr: ErrTokenMalformed,
		},
		{
			name: "empty session cookie falls through",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: ""})
				r.Header.Set(HeaderAuthorization, "Bearer abc.def.ghi")
			},
			wantType:  CredentialTypeBearer,
			wantValue: "abc.def.ghi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/api/v1/extensions", nil)
			tt.setup(r)

			creds, err := ExtractCredentials(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantType, creds.Type)
			assert.Equal(t, tt.wantValue, creds.Value)
			if tt.wantSource != "" {
				assert.Equal(t, tt.wantSource, creds.Source)
			}
		})
	}
}

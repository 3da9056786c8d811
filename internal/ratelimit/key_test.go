package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:   "remote addr",
			remote: "10.0.0.1:54321",
			want:   "10.0.0.1",
		},
		{
			name:   "x-forwarded-for takes first hop",
			remote: "10.0.0.1:54321",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.7, 10.0.0.2",
			},
			want: "203.0.113.7",
		},
		{
			name:   "x-real-ip",
			remote: "10.0.0.1:54321",
			headers: map[string]string{
				"X-Real-IP": "203.0.113.9",
			},
			want: "203.0.113.9",
		},
		{
			name:   "ipv6 brackets stripped",
			remote: "[::1]:54321",
			want:   "::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/api/v1/extensions", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestSubjectKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "user:user-1", SubjectKey("user-1", "10.0.0.1"))
	assert.Equal(t, "ip:10.0.0.1", SubjectKey("", "10.0.0.1"))
}

func TestRequestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"user:user-1:GET:/api/v1/extensions",
		RequestKey("user-1", "10.0.0.1", "GET", "/api/v1/extensions"),
	)
	assert.Equal(t,
		"ip:10.0.0.1:POST:/api/v1/login",
		RequestKey("", "10.0.0.1", "POST", "/api/v1/login"),
	)
}

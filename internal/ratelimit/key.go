package ratelimit

import (
	"net/http"
	"strings"
)

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc uses the client IP as the rate limit key.
func IPKeyFunc(r *http.Request) string {
	return GetClientIP(r)
}

// MethodPathKeyFunc combines method and path.
func MethodPathKeyFunc(r *http.Request) string {
	return r.Method + ":" + r.URL.Path
}

// SubjectKey builds the per-subject key component: the principal ID for
// authenticated requests, the client IP otherwise.
func SubjectKey(principalID, clientIP string) string {
	if principalID != "" {
		return "user:" + principalID
	}
	return "ip:" + clientIP
}

// RequestKey builds the full rate limit key: subject plus endpoint, so
// separate endpoints consume separate budgets.
func RequestKey(principalID, clientIP, method, path string) string {
	return SubjectKey(principalID, clientIP) + ":" + method + ":" + path
}

// GetClientIP extracts the client IP from the request.
func GetClientIP(r *http.Request) string {
	// Proxies prepend the original client to X-Forwarded-For.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	// Remove brackets from IPv6 addresses.
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")

	return ip
}

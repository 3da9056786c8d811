// Package auth resolves request credentials into a Principal.
//
// Two credential forms are supported, tried in a fixed priority order:
// an opaque session handle (first-party web client) and a bearer token
// (API and mobile clients). A session handle that is present but invalid
// terminates resolution; the resolver never falls through to token
// authentication in that case. Every failure mode collapses to
// ErrUnauthenticated at the package boundary so callers cannot
// distinguish which check failed.
package auth

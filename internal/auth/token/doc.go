// Package token validates bearer tokens for the administration API.
//
// Validation covers signature (HS256 or RS256), expiry with a configurable
// clock skew, and a minimal payload shape: subject and username must be
// present. Role and permission claims embedded in the token are ignored;
// the resolver re-fetches them from the user store.
package token

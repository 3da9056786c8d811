// Package server assembles the HTTP administration surface: the gin
// engine, the admin route groups with their guard requirements, and
// graceful start/stop around the standard library http.Server.
//
// The handlers here are intentionally thin. They front the in-memory
// inventory so that every route exercises the full guard pipeline
// (authentication, role check, rate limit, policy, sensitivity) the
// same way a production PBX store would.
package server

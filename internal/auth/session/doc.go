// Package session stores and validates administration sessions.
//
// A session is referenced by an opaque handle handed to the client at
// login. Stores never persist the raw handle; they key records by its
// hash, so a dump of the backing store cannot be replayed. Two backends
// are provided: an in-memory store for tests and single-node setups,
// and a Redis store for multi-node deployments.
package session

// Package secrets resolves sensitive material (token signing keys,
// Redis credentials) from a configurable backend: HashiCorp Vault KV
// v2, environment variables, or local files. Providers are read-only;
// rotation happens in the backend and is picked up on the next fetch.
package secrets

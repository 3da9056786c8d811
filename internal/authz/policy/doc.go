// Package policy evaluates attribute-based access policies.
//
// Policies are fetched through a Store (wrapped in a circuit breaker),
// filtered for applicability, and combined with deny-override: any
// effective DENY policy whose condition holds decides the outcome and
// evaluation short-circuits; otherwise the first matching ALLOW wins
// and its obligations are collected; otherwise the outcome is DENY. If
// no policy applies at all, the outcome is INDETERMINATE and the caller
// decides how strict to be.
//
// Conditions are small declarative expressions parsed once into a typed
// tree and interpreted without any code evaluation. A condition that
// fails to parse, references unknown attributes, or panics during
// evaluation counts as a non-match.
package policy

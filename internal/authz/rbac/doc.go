// Package rbac expands assigned roles into effective role and
// permission sets and answers resource-action checks.
//
// The role hierarchy is a flat inclusion table: each entry lists every
// role transitively included, so expansion is a single lookup, not a
// tree walk. The table is validated acyclic and transitively closed at
// load time, and the effective-permission set per role is precomputed.
//
// A grant flows through either of two independent channels: permissions
// attached to the principal's roles, or a static resource-action to
// allowed-roles map. The two are ORed; they are not reconciled against
// each other.
package rbac

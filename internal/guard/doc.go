// Package guard composes identity resolution, role checks, rate
// limiting, policy evaluation, and audit recording into a single
// request gate for the PBX admin API. Stages run in a fixed order and
// short-circuit on the first denial.
package guard

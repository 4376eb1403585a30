// Package lifecycle evaluates declarative retention and archival policies
// against stored objects and executes the resulting actions through the
// storage gateway.
//
// A policy matches objects by container name pattern and optional file name
// pattern (both regular expressions) and carries an ordered rule list. Rules
// are evaluated first-match-wins per object: the first rule whose age
// threshold is met determines the action, and later rules are not consulted.
//
// Execution is best-effort with per-object isolation: a failed action on one
// object never aborts the remaining objects. Failures are collected into the
// per-object action reports, not raised individually.
package lifecycle

// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested deliberation does not exist or is no
// longer active.
var ErrNotFound = errors.New("not found")

// ErrConfiguration indicates invalid role or threshold setup. Fatal at
// startup; a deliberation is never partially run against a bad config.
var ErrConfiguration = errors.New("invalid configuration")

// ErrConcludedDeliberation indicates an attempted mutation of a deliberation
// that already recorded a terminal event. Always surfaced to the caller.
var ErrConcludedDeliberation = errors.New("deliberation already concluded")

// ErrNoQuorum indicates a round in which zero eligible roles produced a
// usable opinion. Escalates to a human decision, not fatal to the process.
var ErrNoQuorum = errors.New("no usable opinions in round")

// ErrRoleOpinionFailed indicates a single role's opinion call failed after
// all retries. Recovered locally; the round continues without that role.
var ErrRoleOpinionFailed = errors.New("role opinion failed")

// ErrHumanDecisionTimeout indicates no human decision arrived within the
// configured window. Expected; drives the timeout outcome.
var ErrHumanDecisionTimeout = errors.New("human decision timed out")

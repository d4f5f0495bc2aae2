// Package simerrors defines the four error kinds of the simulator core:
// configuration errors, admission errors, invalid state transitions (fatal,
// via panic) and deadline misses, which are never errors.
package simerrors

import "errors"

// ErrConfiguration marks a malformed or incomplete platform/scenario file.
// The caller must not start the simulation.
var ErrConfiguration = errors.New("schedsim: configuration error")

// ErrAdmission marks a rejected add_server call: admitting the server would
// exceed the scheduler's capacity bound. Callers may retry against a
// different scheduler or record a task_rejected trace.
var ErrAdmission = errors.New("schedsim: admission rejected")

// InvalidTransition panics to report a programmer error: an illegal state
// transition attempted on a Processor or CbsServer. These are never
// recovered from; they indicate a bug in the scheduler or a policy.
type InvalidTransition struct {
	Entity string
	From   string
	Edge   string
}

func (e InvalidTransition) Error() string {
	return "schedsim: invalid transition: " + e.Entity + " " + e.From + " -> " + e.Edge
}

// Panic raises an InvalidTransition. Exported so policies implemented in
// other packages can report the same class of programmer error.
func Panic(entity, from, edge string) {
	panic(InvalidTransition{Entity: entity, From: from, Edge: edge})
}

// IsAdmission reports whether err is (or wraps) ErrAdmission, distinguishing
// a rejected add_server call from a configuration failure.
func IsAdmission(err error) bool {
	return errors.Is(err, ErrAdmission)
}

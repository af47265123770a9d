package core

import "errors"

// Error taxonomy of the orchestration core. Only ErrHandoffLimitExceeded and
// ErrTurnLimitExceeded may terminate a whole request; every other class is
// absorbed at the turn or branch boundary and turned into data.
var (
	// ErrHandoffRejected marks an invalid target or a nested handoff issued
	// from a parallel branch. Surfaced to the issuing agent as a tool result.
	ErrHandoffRejected = errors.New("handoff rejected")

	// ErrHandoffLimitExceeded is returned when a request needs more routing
	// hops than the configured budget.
	ErrHandoffLimitExceeded = errors.New("handoff limit exceeded")

	// ErrTurnLimitExceeded is returned when a single agent turn performs more
	// tool calls than allowed.
	ErrTurnLimitExceeded = errors.New("turn limit exceeded")

	// ErrToolExecution marks a handler-reported failure.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrBranchTimeout marks a parallel branch that did not finish in time.
	ErrBranchTimeout = errors.New("timeout")

	// ErrBranchFailure marks a parallel branch that failed for any other reason.
	ErrBranchFailure = errors.New("branch failed")

	// ErrResourceBusy is returned by exclusive tools whose resource is in use.
	ErrResourceBusy = errors.New("resource busy")

	// ErrPreconditionViolation is returned by edit-class tools when the target
	// was never read in the current session.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrSessionNotFound is returned by session stores for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
)

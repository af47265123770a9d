package core

import (
	"errors"
	"strings"
)

// HandoffRequest asks the orchestrator to transfer control, together with a
// message, from one agent to one or more targets. It is created during a turn
// and consumed immediately by the orchestrator.
type HandoffRequest struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	Targets []string `json:"targets"`
	Message string   `json:"message"`
}

// NewHandoffRequest copies targets so later mutation by the caller cannot
// leak into a scheduled request.
func NewHandoffRequest(from string, targets []string, message string) *HandoffRequest {
	return &HandoffRequest{
		ID:      NewID(),
		From:    from,
		Targets: append([]string(nil), targets...),
		Message: message,
	}
}

// IsFanOut reports whether the request names more than one target.
func (h *HandoffRequest) IsFanOut() bool { return len(h.Targets) > 1 }

// Validate checks that a request has an issuer and at least one non-empty target.
func (h *HandoffRequest) Validate() error {
	if h.From == "" {
		return errors.New("from is required")
	}
	if len(h.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	for _, t := range h.Targets {
		if strings.TrimSpace(t) == "" {
			return errors.New("target names must not be empty")
		}
	}
	return nil
}

// HandoffStatus is the outcome of a handoff attempt at the registry.
type HandoffStatus int

const (
	// HandoffScheduled means the request now occupies the pending slot.
	HandoffScheduled HandoffStatus = iota
	// HandoffBlocked means the request was rejected and nothing was scheduled.
	HandoffBlocked
)

// String returns the lower-case status name.
func (s HandoffStatus) String() string {
	switch s {
	case HandoffScheduled:
		return "scheduled"
	case HandoffBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// HandoffResult reports whether a handoff was scheduled and, when blocked, why.
type HandoffResult struct {
	Status HandoffStatus
	Reason string
}

// Scheduled reports whether the handoff was accepted.
func (r HandoffResult) Scheduled() bool { return r.Status == HandoffScheduled }

// Err returns nil for a scheduled handoff, otherwise an error wrapping
// ErrHandoffRejected with the blocking reason.
func (r HandoffResult) Err() error {
	if r.Scheduled() {
		return nil
	}
	return &RejectionError{Reason: r.Reason}
}

// RejectionError carries the reason a handoff was blocked.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "handoff rejected: " + e.Reason }

// Unwrap allows errors.Is(err, ErrHandoffRejected).
func (e *RejectionError) Unwrap() error { return ErrHandoffRejected }

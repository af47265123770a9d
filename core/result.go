package core

import (
	"strings"
	"time"
)

// Status is the terminal status of a request.
type Status string

const (
	// StatusDone means a final response was produced.
	StatusDone Status = "done"
	// StatusHandoffLimitExceeded means the hop budget was exhausted.
	StatusHandoffLimitExceeded Status = "handoff_limit_exceeded"
	// StatusTurnLimitExceeded means an agent exceeded its per-turn tool-call budget.
	StatusTurnLimitExceeded Status = "turn_limit_exceeded"
	// StatusFailed means an infrastructure failure (decision capability error,
	// cancellation) ended the request.
	StatusFailed Status = "failed"
)

// State is a node of the per-request routing state machine.
type State string

const (
	StateRouting     State = "ROUTING"
	StateBranching   State = "BRANCHING"
	StateAggregating State = "AGGREGATING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// BranchResult captures the outcome of one parallel branch. Results are kept
// in the original target order, never in completion order.
type BranchResult struct {
	Target   string        `json:"target"`
	Success  bool          `json:"success"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Text returns the response for successful branches and the error otherwise.
func (b BranchResult) Text() string {
	if b.Success {
		return b.Response
	}
	return b.Error
}

// Transcript entry kinds.
const (
	EntryInput     = "input"
	EntryResponse  = "response"
	EntryHandoff   = "handoff"
	EntryBranch    = "branch"
	EntryAggregate = "aggregate"
	EntryRejected  = "rejected"
	EntryFailure   = "failure"
)

// TranscriptEntry is one step of the routing transcript of a request.
type TranscriptEntry struct {
	Hop       int       `json:"hop"`
	State     State     `json:"state"`
	Agent     string    `json:"agent"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FinalResult is the result surface of a processed request. Status separates
// "answered" from "failed due to limits"; PartiallyAnswered separates a clean
// answer from one produced despite branch failures.
type FinalResult struct {
	RequestID     string            `json:"request_id"`
	Response      string            `json:"response"`
	Status        Status            `json:"status"`
	HopsUsed      int               `json:"hops_used"`
	FinalAgent    string            `json:"final_agent"`
	BranchResults []BranchResult    `json:"branch_results,omitempty"`
	Transcript    []TranscriptEntry `json:"transcript,omitempty"`
}

// Answered reports whether the request completed with a final response.
func (r *FinalResult) Answered() bool { return r.Status == StatusDone }

// PartiallyAnswered reports whether the request completed while at least one
// branch (or rejected handoff target) failed along the way.
func (r *FinalResult) PartiallyAnswered() bool {
	if !r.Answered() {
		return false
	}
	for _, b := range r.BranchResults {
		if !b.Success {
			return true
		}
	}
	return false
}

// FailedBranches returns the failed branch results in recorded order.
func (r *FinalResult) FailedBranches() []BranchResult {
	var failed []BranchResult
	for _, b := range r.BranchResults {
		if !b.Success {
			failed = append(failed, b)
		}
	}
	return failed
}

// Err maps a limit status to its sentinel error, nil otherwise.
func (r *FinalResult) Err() error {
	switch r.Status {
	case StatusHandoffLimitExceeded:
		return ErrHandoffLimitExceeded
	case StatusTurnLimitExceeded:
		return ErrTurnLimitExceeded
	}
	return nil
}

// Summary renders a one-line human readable status.
func (r *FinalResult) Summary() string {
	var sb strings.Builder
	switch {
	case r.PartiallyAnswered():
		sb.WriteString("partially answered")
	case r.Answered():
		sb.WriteString("answered")
	default:
		sb.WriteString("failed: ")
		sb.WriteString(string(r.Status))
	}
	return sb.String()
}

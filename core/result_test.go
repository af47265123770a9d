package core

import (
	"errors"
	"testing"
)

func TestFinalResult_PartiallyAnswered(t *testing.T) {
	r := &FinalResult{Status: StatusDone, BranchResults: []BranchResult{
		{Target: "a", Success: true, Response: "ok"},
		{Target: "b", Success: false, Error: "timeout"},
	}}

	if !r.Answered() || !r.PartiallyAnswered() {
		t.Fatal("expected a partially answered result")
	}
	if got := r.FailedBranches(); len(got) != 1 || got[0].Target != "b" {
		t.Fatalf("unexpected failed branches: %+v", got)
	}
	if r.Summary() != "partially answered" {
		t.Errorf("unexpected summary %q", r.Summary())
	}

	limit := &FinalResult{Status: StatusHandoffLimitExceeded}
	if limit.Answered() || limit.PartiallyAnswered() {
		t.Fatal("limit failures are neither answered nor partially answered")
	}
	if limit.Summary() != "failed: handoff_limit_exceeded" {
		t.Errorf("unexpected summary %q", limit.Summary())
	}
	if !errors.Is(limit.Err(), ErrHandoffLimitExceeded) {
		t.Errorf("expected ErrHandoffLimitExceeded, got %v", limit.Err())
	}
	if r.Err() != nil {
		t.Errorf("answered results carry no error, got %v", r.Err())
	}
}

func TestHandoffRequest(t *testing.T) {
	targets := []string{"a", "b"}
	h := NewHandoffRequest("pm", targets, "go")
	targets[0] = "mutated"

	if h.Targets[0] != "a" {
		t.Fatal("request must copy the target slice")
	}
	if !h.IsFanOut() {
		t.Fatal("two targets is a fan-out")
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if err := NewHandoffRequest("pm", []string{" "}, "").Validate(); err == nil {
		t.Fatal("blank target should fail validation")
	}
}

func TestHandoffResult_Err(t *testing.T) {
	if err := (HandoffResult{Status: HandoffScheduled}).Err(); err != nil {
		t.Fatalf("scheduled result should carry no error, got %v", err)
	}

	err := HandoffResult{Status: HandoffBlocked, Reason: "unknown agent \"x\""}.Err()
	if !errors.Is(err, ErrHandoffRejected) {
		t.Fatalf("expected ErrHandoffRejected, got %v", err)
	}
	if err.Error() != `handoff rejected: unknown agent "x"` {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestSession_AddResultAndClone(t *testing.T) {
	s := NewSession("s1")
	s.AddResult(FinalResult{RequestID: "r1", Status: StatusDone})

	got := s.GetResults()
	got[0].RequestID = "changed"
	if s.GetResults()[0].RequestID != "r1" {
		t.Error("results slice should be copied on read")
	}

	clone := s.Clone()
	clone.AddResult(FinalResult{RequestID: "r2"})
	if len(s.GetResults()) != 1 {
		t.Error("original must not see results added to the clone")
	}

	last, ok := clone.Last()
	if !ok || last.RequestID != "r2" {
		t.Fatalf("unexpected last result %+v", last)
	}
}

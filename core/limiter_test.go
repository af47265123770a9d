package core

import (
	"errors"
	"testing"
)

func TestTurnLimiter(t *testing.T) {
	l := NewTurnLimiter(2)

	if err := l.Increment(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Increment(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", l.Remaining())
	}

	err := l.Increment()
	if !errors.Is(err, ErrTurnLimitExceeded) {
		t.Fatalf("expected turn limit error, got %v", err)
	}
	if l.Count() != 3 {
		t.Errorf("expected count 3, got %d", l.Count())
	}
}

func TestTurnLimiter_Default(t *testing.T) {
	if got := NewTurnLimiter(0).Max(); got != DefaultMaxToolCalls {
		t.Fatalf("expected default %d, got %d", DefaultMaxToolCalls, got)
	}
}

package core

import (
	"fmt"
	"sync"
)

// DefaultMaxToolCalls is the per-turn tool-call budget used when none is set.
const DefaultMaxToolCalls = 25

// TurnLimiter enforces a maximum number of tool calls within one agent turn.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a new limiter. A max <= 0 selects DefaultMaxToolCalls.
func NewTurnLimiter(max int) *TurnLimiter {
	if max <= 0 {
		max = DefaultMaxToolCalls
	}
	return &TurnLimiter{max: max}
}

// Increment increases the call counter and returns an error wrapping
// ErrTurnLimitExceeded once the limit is exceeded.
func (tl *TurnLimiter) Increment() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.count++
	if tl.count > tl.max {
		return fmt.Errorf("%w: more than %d tool calls", ErrTurnLimitExceeded, tl.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (tl *TurnLimiter) Count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count
}

// Remaining returns how many calls are left before hitting the limit.
func (tl *TurnLimiter) Remaining() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.count >= tl.max {
		return 0
	}

	return tl.max - tl.count
}

// Max returns the configured limit.
func (tl *TurnLimiter) Max() int { return tl.max }

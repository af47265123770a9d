package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrScriptExhausted is returned when a ScriptedModel runs out of steps.
var ErrScriptExhausted = errors.New("script exhausted")

// Step is one scripted decision. Exactly one of Action, Err or Fn is used:
// Fn wins over Err, Err wins over Action. Delay is applied before deciding.
type Step struct {
	Action Action
	Err    error
	Fn     func(req Request) (Action, error)
	Delay  time.Duration
}

// ScriptedModel is a deterministic in-memory Model replaying a queue of steps.
// It is safe for concurrent use and records every request it receives.
type ScriptedModel struct {
	name string

	mu       sync.Mutex
	steps    []Step
	fallback *Step
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel with the given steps.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{name: name, steps: append([]Step(nil), steps...)}
}

// Then appends a step returning the given action (chainable).
func (m *ScriptedModel) Then(a Action) *ScriptedModel {
	return m.ThenStep(Step{Action: a})
}

// ThenStep appends an arbitrary step (chainable).
func (m *ScriptedModel) ThenStep(s Step) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps = append(m.steps, s)

	return m
}

// Otherwise sets the step used once the queue is exhausted (chainable).
func (m *ScriptedModel) Otherwise(s Step) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = &s

	return m
}

// Decide implements Model.
func (m *ScriptedModel) Decide(ctx context.Context, req Request) (Action, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)

	var step Step
	switch {
	case len(m.steps) > 0:
		step = m.steps[0]
		m.steps = m.steps[1:]
	case m.fallback != nil:
		step = *m.fallback
	default:
		m.mu.Unlock()
		return Action{}, fmt.Errorf("%s: %w", m.name, ErrScriptExhausted)
	}
	m.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Action{}, ctx.Err()
		case <-timer.C:
		}
	}

	switch {
	case step.Fn != nil:
		return step.Fn(req)
	case step.Err != nil:
		return Action{}, step.Err
	default:
		return step.Action, nil
	}
}

// Requests returns a copy of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Remaining returns the number of queued steps not yet consumed.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.steps)
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: m.name, Provider: "scripted", SupportsTools: true}
}

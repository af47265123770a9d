package testutil

import (
	"github.com/hupe1980/agency/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").Meta("user", "u1").Done("req-1", "answer").Build()
type SessionBuilder struct {
	id      string
	meta    map[string]string
	results []core.FinalResult
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, meta: map[string]string{}}
}

// Meta sets or overwrites a metadata key/value pair (chainable).
func (b *SessionBuilder) Meta(key, val string) *SessionBuilder {
	b.meta[key] = val
	return b
}

// Result appends a recorded request result (chainable).
func (b *SessionBuilder) Result(r core.FinalResult) *SessionBuilder {
	b.results = append(b.results, r)
	return b
}

// Done appends a successful single-hop result (chainable).
func (b *SessionBuilder) Done(requestID, response string) *SessionBuilder {
	return b.Result(core.FinalResult{RequestID: requestID, Response: response, Status: core.StatusDone})
}

// Build returns a *core.Session with pre-populated metadata and results.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)

	for k, v := range b.meta {
		s.Metadata[k] = v
	}

	for _, r := range b.results {
		s.AddResult(r)
	}

	return s
}

package core

import (
	"sync"
	"time"
)

// Session groups the results of successive requests processed for one caller.
// It is safe for concurrent access.
//
// Contract:
//   - AddResult updates the Updated timestamp
//   - GetResults returns a defensive copy to avoid external mutation
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID       string            `json:"id"`
	Results  []FinalResult     `json:"results"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Metadata map[string]string `json:"metadata"`
	mu       sync.RWMutex
}

// NewSession creates a new session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, Results: []FinalResult{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// AddResult appends a request result updating the Updated timestamp.
func (s *Session) AddResult(r FinalResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, r)
	s.Updated = time.Now().UTC()
}

// GetResults returns a defensive copy of the recorded results.
func (s *Session) GetResults() []FinalResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FinalResult, len(s.Results))
	copy(out, s.Results)
	return out
}

// Last returns the most recent result, if any.
func (s *Session) Last() (FinalResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Results) == 0 {
		return FinalResult{}, false
	}
	return s.Results[len(s.Results)-1], true
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, Results: make([]FinalResult, len(s.Results)), Created: s.Created, Updated: s.Updated, Metadata: make(map[string]string, len(s.Metadata))}
	copy(clone.Results, s.Results)
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SessionStore persists sessions and the results recorded in them.
//
// Get and Delete return ErrSessionNotFound for unknown IDs; AppendResult
// creates the session on first use.
type SessionStore interface {
	Get(id string) (*Session, error)
	AppendResult(sessionID string, result FinalResult) error
	Delete(id string) error
	List() ([]string, error)
}

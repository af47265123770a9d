package core

import (
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/agency/logging"
)

// ToolContext provides the auxiliary state visible to tool implementations
// invoked through one registry: a key/value state bag, the set of resources
// read in this session and a reference to the registry family's WriteLock.
//
// A ToolContext is owned by a single registry. Forked registries receive a
// Clone, so branch-local reads and state never leak into siblings; only the
// WriteLock is shared.
type ToolContext struct {
	mu     sync.RWMutex
	agent  string
	branch string
	state  map[string]any
	reads  map[string]struct{}
	lock   *WriteLock
	logger logging.Logger
}

// NewToolContext constructs an empty tool context for the named agent. A nil
// lock allocates a fresh root WriteLock.
func NewToolContext(agent string, lock *WriteLock, logger logging.Logger) *ToolContext {
	if lock == nil {
		lock = NewWriteLock()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &ToolContext{
		agent:  agent,
		state:  map[string]any{},
		reads:  map[string]struct{}{},
		lock:   lock,
		logger: logger,
	}
}

// AgentName returns the name of the agent owning the registry.
func (tc *ToolContext) AgentName() string { return tc.agent }

// Branch returns the branch label, empty for root registries.
func (tc *ToolContext) Branch() string { return tc.branch }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// LogDebug logs a debug message tagged with the agent and branch.
func (tc *ToolContext) LogDebug(msg string, args ...any) {
	tc.logger.Debug(msg, append([]any{"agent", tc.agent, "branch", tc.branch}, args...)...)
}

// GetState retrieves the state associated with the given key.
func (tc *ToolContext) GetState(k string) (any, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	v, ok := tc.state[k]

	return v, ok
}

// SetState records a state value.
func (tc *ToolContext) SetState(k string, v any) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.state[k] = v
}

// State returns a copy of the state bag.
func (tc *ToolContext) State() map[string]any {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	return maps.Clone(tc.state)
}

// MarkRead records that resource (typically a file path) was read.
func (tc *ToolContext) MarkRead(resource string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.reads[resource] = struct{}{}
}

// WasRead reports whether resource was read in this session.
func (tc *ToolContext) WasRead(resource string) bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	_, ok := tc.reads[resource]

	return ok
}

// RequireRead fails with ErrPreconditionViolation unless resource was read.
func (tc *ToolContext) RequireRead(resource string) error {
	if tc.WasRead(resource) {
		return nil
	}

	tc.LogDebug("tool.precondition.violation", "resource", resource)

	return fmt.Errorf("%w: %s must be read before it is edited", ErrPreconditionViolation, resource)
}

// WriteLock returns the shared lock of the registry family.
func (tc *ToolContext) WriteLock() *WriteLock {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	return tc.lock
}

// WithWriteLock runs fn while holding the shared write lock.
func (tc *ToolContext) WithWriteLock(fn func() error) error {
	return tc.WriteLock().Do(fn)
}

// Clone returns an isolated copy for a forked registry. State and reads are
// copied; the WriteLock is shared by identity.
func (tc *ToolContext) Clone(branch string) *ToolContext {
	return tc.CloneAs(tc.agent, branch)
}

// CloneAs behaves like Clone but hands the copy to another agent, as when an
// issuer's context seeds a parallel branch run by the handoff target.
func (tc *ToolContext) CloneAs(agent, branch string) *ToolContext {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	return &ToolContext{
		agent:  agent,
		branch: branch,
		state:  maps.Clone(tc.state),
		reads:  maps.Clone(tc.reads),
		lock:   tc.lock,
		logger: tc.logger,
	}
}

// AdoptWriteLock replaces the lock reference so this context joins another
// registry family. A nil lock is ignored.
func (tc *ToolContext) AdoptWriteLock(lock *WriteLock) {
	if lock == nil {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.lock = lock
}

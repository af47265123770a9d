package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/internal/util"
	"github.com/hupe1980/agency/logging"
	"github.com/hupe1980/agency/model"
)

// ReasonBranchHandoff is the rejection reason for handoffs issued by a branch.
const ReasonBranchHandoff = "parallel branches cannot initiate handoffs"

// table is an immutable snapshot of registered tools. Registration replaces
// the snapshot, so forks keep reading the one they were created with.
type table struct {
	order []string
	byKey map[string]Tool
}

func (t *table) with(tools ...Tool) (*table, error) {
	next := &table{
		order: append([]string(nil), t.order...),
		byKey: make(map[string]Tool, len(t.byKey)+len(tools)),
	}
	for k, v := range t.byKey {
		next.byKey[k] = v
	}
	for _, tl := range tools {
		if tl == nil {
			return nil, fmt.Errorf("nil tool")
		}
		name := tl.Name()
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tool name must not be empty")
		}
		if _, dup := next.byKey[name]; dup {
			return nil, fmt.Errorf("tool %q already registered", name)
		}
		next.byKey[name] = tl
		next.order = append(next.order, name)
	}
	return next, nil
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// WriteLock joins the registry to an existing lock family. Nil allocates a root lock.
	WriteLock *core.WriteLock
	// KnownAgents restricts handoff targets to these names when non-empty.
	KnownAgents []string
	Logger      logging.Logger
}

// Registry is an agent's tool table plus its handoff slot and ToolContext.
//
// Invariants:
//   - the tool table is never mutated in place and is shared by all forks
//   - at most one handoff is pending at a time
//   - a branch registry (created by Fork) never holds a pending handoff
//   - every fork shares the root registry's WriteLock by identity
type Registry struct {
	owner string
	label string

	mu      sync.Mutex
	tools   *table
	known   map[string]struct{}
	pending *core.HandoffRequest
	branch  bool
	toolCtx *core.ToolContext

	logger logging.Logger
}

// NewRegistry creates a root registry owned by the named agent. The handoff
// tool is not registered automatically; agents add it with their targets.
func NewRegistry(owner string, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Registry{
		owner:   owner,
		label:   owner,
		tools:   &table{byKey: map[string]Tool{}},
		known:   map[string]struct{}{},
		toolCtx: core.NewToolContext(owner, opts.WriteLock, opts.Logger),
		logger:  opts.Logger,
	}
	for _, name := range opts.KnownAgents {
		r.known[name] = struct{}{}
	}

	return r
}

// Register adds tools to the registry. Names must be unique.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := r.tools.with(tools...)
	if err != nil {
		return err
	}
	r.tools = next

	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	tl, ok := r.snapshot().byKey[name]
	return tl, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.snapshot().order...)
}

// Definitions returns the tool schemas exposed to the decision capability,
// in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	tbl := r.snapshot()
	defs := make([]model.ToolDefinition, 0, len(tbl.order))
	for _, name := range tbl.order {
		tl := tbl.byKey[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        tl.Name(),
				Description: tl.Description(),
				Parameters:  tl.Parameters(),
			},
		})
	}
	return defs
}

func (r *Registry) snapshot() *table {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tools
}

// Execute runs the named tool and returns its result as a string. Failures of
// any kind (unknown tool, validation, handler error, panic) are encoded into
// the returned string and never escape as errors or panics.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	out, _ := r.ExecuteWithError(ctx, name, args)
	return out
}

// ExecuteWithError behaves like Execute and additionally reports the failure,
// if any, as a *ToolError. The returned string is always history-ready.
//
// A call of HandoffToolName only occupies the pending slot. The caller owns
// the request from then on and must take it with ConsumePendingHandoff;
// until it does, every further handoff is blocked as already pending.
// agent.Agent does this for every turn.
func (r *Registry) ExecuteWithError(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}

	if name == HandoffToolName {
		return r.executeHandoffCall(args)
	}

	tl, ok := r.Lookup(name)
	if !ok {
		toolErr := NewToolError(name, fmt.Sprintf("tool %q not found", name), CodeNotFound)
		r.logger.Warn("registry.tool.not_found", "registry", r.Label(), "tool", name)
		return errorText(toolErr), toolErr
	}

	start := time.Now()
	result, err := r.call(ctx, tl, args)
	dur := time.Since(start)

	if err != nil {
		toolErr := AsToolError(name, err)
		r.logger.Info("registry.tool.executed", "registry", r.Label(), "tool", name, "duration_ms", dur.Milliseconds(), "error", true, "code", toolErr.Code)
		return errorText(toolErr), toolErr
	}

	r.logger.Info("registry.tool.executed", "registry", r.Label(), "tool", name, "duration_ms", dur.Milliseconds(), "error", false)

	return util.Stringify(result), nil
}

func (r *Registry) call(ctx context.Context, tl Tool, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("registry.tool.panic", "registry", r.Label(), "tool", tl.Name(), "recover", rec)
			result, err = nil, panicError(tl.Name(), rec)
		}
	}()

	return tl.Call(ctx, r.ToolContext(), args)
}

func (r *Registry) executeHandoffCall(args map[string]any) (string, error) {
	targets, message, err := ParseHandoffArgs(args)
	if err != nil {
		toolErr := &ToolError{Tool: HandoffToolName, Message: err.Error(), Code: CodeValidation, cause: err}
		return errorText(toolErr), toolErr
	}

	res := r.ExecuteHandoff(targets, message)
	if !res.Scheduled() {
		err := res.Err()
		return err.Error(), err
	}

	return fmt.Sprintf("handoff scheduled to %s", strings.Join(targets, ", ")), nil
}

// errorText renders a failure for the conversation history.
func errorText(err error) string { return "error: " + err.Error() }

// ExecuteHandoff validates a handoff and, if valid, occupies the pending slot
// until ConsumePendingHandoff clears it. Branch registries always block.
func (r *Registry) ExecuteHandoff(targets []string, message string) core.HandoffResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.branch {
		return r.block(targets, ReasonBranchHandoff)
	}

	if reason := r.validateTargets(targets); reason != "" {
		return r.block(targets, reason)
	}

	if r.pending != nil {
		return r.block(targets, "a handoff is already pending")
	}

	r.pending = core.NewHandoffRequest(r.owner, targets, message)

	r.logger.Info("registry.handoff.scheduled", "registry", r.label, "targets", targets, "fan_out", r.pending.IsFanOut())

	return core.HandoffResult{Status: core.HandoffScheduled}
}

// validateTargets returns a rejection reason or "". Caller holds r.mu.
func (r *Registry) validateTargets(targets []string) string {
	if len(targets) == 0 {
		return "no target specified"
	}

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		switch {
		case strings.TrimSpace(t) == "":
			return "target names must not be empty"
		case t == r.owner:
			return fmt.Sprintf("agent %q cannot hand off to itself", t)
		}
		if len(r.known) > 0 {
			if _, ok := r.known[t]; !ok {
				return fmt.Sprintf("unknown agent %q", t)
			}
		}
		if _, dup := seen[t]; dup {
			return fmt.Sprintf("duplicate target %q", t)
		}
		seen[t] = struct{}{}
	}

	return ""
}

func (r *Registry) block(targets []string, reason string) core.HandoffResult {
	r.logger.Warn("registry.handoff.blocked", "registry", r.label, "targets", targets, "reason", reason)
	return core.HandoffResult{Status: core.HandoffBlocked, Reason: reason}
}

// PendingHandoff returns the pending request without clearing it.
func (r *Registry) PendingHandoff() *core.HandoffRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pending
}

// ConsumePendingHandoff atomically returns and clears the pending request.
func (r *Registry) ConsumePendingHandoff() *core.HandoffRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.pending
	r.pending = nil

	return h
}

// Fork creates a branch registry: same tool table and WriteLock, empty
// handoff slot, cloned ToolContext. Forking a fork keeps the root lock.
func (r *Registry) Fork(label string) *Registry {
	return r.ForkWith(label, nil)
}

// ForkWith behaves like Fork but seeds the branch with a clone of from, the
// issuing agent's context, instead of the registry's own. Reads and state the
// issuer accumulated before the fan-out stay visible in the branch, and the
// branch joins the issuer's lock family. A nil from forks the registry's own
// context.
func (r *Registry) ForkWith(label string, from *core.ToolContext) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if from == nil {
		from = r.toolCtx
	}

	known := make(map[string]struct{}, len(r.known))
	for k := range r.known {
		known[k] = struct{}{}
	}

	child := &Registry{
		owner:   r.owner,
		label:   label,
		tools:   r.tools,
		known:   known,
		branch:  true,
		toolCtx: from.CloneAs(r.owner, label),
		logger:  r.logger,
	}

	r.logger.Debug("registry.fork", "parent", r.label, "label", label, "context", from.AgentName())

	return child
}

// ShareWriteLock joins the registry to the lock family of l. Intended to be
// called before any fork is taken.
func (r *Registry) ShareWriteLock(l *core.WriteLock) {
	r.ToolContext().AdoptWriteLock(l)
}

// SetKnownAgents restricts handoff targets to the given agent names.
func (r *Registry) SetKnownAgents(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known = make(map[string]struct{}, len(names))
	for _, n := range names {
		r.known[n] = struct{}{}
	}
}

// IsParallelBranch reports whether the registry was produced by Fork.
func (r *Registry) IsParallelBranch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.branch
}

// Owner returns the owning agent's name.
func (r *Registry) Owner() string { return r.owner }

// Label returns the agent name for root registries and the branch label for forks.
func (r *Registry) Label() string { return r.label }

// WriteLock returns the lock shared by the registry family.
func (r *Registry) WriteLock() *core.WriteLock { return r.ToolContext().WriteLock() }

// ToolContext returns the registry's tool context.
func (r *Registry) ToolContext() *core.ToolContext {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.toolCtx
}

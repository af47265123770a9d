package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/logging"
	"github.com/hupe1980/agency/model"
	"github.com/hupe1980/agency/tool"
)

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	Description string
	Instruction Instruction
	// HandoffTargets are advertised to the model through the handoff tool.
	// Without targets the handoff tool is not registered.
	HandoffTargets []string
	Tools          []tool.Tool
	// MaxToolCalls bounds the tool calls of a single turn. 0 selects
	// core.DefaultMaxToolCalls.
	MaxToolCalls int
	// MaxHistoryMessages limits the history sent to the model. 0 sends all of it.
	MaxHistoryMessages int
	// WriteLock joins the agent's registry to an existing lock family.
	WriteLock *core.WriteLock
	// KnownAgents is the roster handoff targets are validated against.
	KnownAgents []string
	Logger      logging.Logger
}

// ToolCallRecord is one executed tool call of a turn.
type ToolCallRecord struct {
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result"`
	IsError   bool           `json:"is_error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Outcome is the result of one turn. Handoff is non-nil when the turn ended
// with a scheduled handoff; Response then holds the last text seen.
type Outcome struct {
	Agent       string               `json:"agent"`
	Label       string               `json:"label"`
	Response    string               `json:"response"`
	Handoff     *core.HandoffRequest `json:"handoff,omitempty"`
	ToolCallLog []ToolCallRecord     `json:"tool_call_log,omitempty"`
	Usage       model.TokenUsage     `json:"usage"`
}

// Agent runs the decide / execute loop for one participant of an agency.
type Agent struct {
	name        string
	description string
	model       model.Model
	instruction Instruction
	targets     []string
	maxCalls    int
	maxHistory  int
	registry    *tool.Registry
	logger      logging.Logger

	mu      sync.RWMutex
	history []core.Message
}

// New creates an agent backed by m. The agent's registry holds opts.Tools and,
// when targets are configured, the handoff tool.
func New(name string, m model.Model, optFns ...func(o *Options)) (*Agent, error) {
	if name == "" {
		return nil, errors.New("agent name must not be empty")
	}
	if m == nil {
		return nil, fmt.Errorf("agent %s: model must not be nil", name)
	}

	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	targets := append([]string(nil), opts.HandoffTargets...)
	sort.Strings(targets)

	reg := tool.NewRegistry(name, func(ro *tool.RegistryOptions) {
		ro.WriteLock = opts.WriteLock
		ro.KnownAgents = opts.KnownAgents
		ro.Logger = opts.Logger
	})

	if err := reg.Register(opts.Tools...); err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	if len(targets) > 0 {
		if err := reg.Register(tool.NewHandoffTool(targets...)); err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
	}

	return &Agent{
		name:        name,
		description: opts.Description,
		model:       m,
		instruction: opts.Instruction,
		targets:     targets,
		maxCalls:    opts.MaxToolCalls,
		maxHistory:  opts.MaxHistoryMessages,
		registry:    reg,
		logger:      opts.Logger,
	}, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.description }

// HandoffTargets returns the targets advertised to the model.
func (a *Agent) HandoffTargets() []string { return append([]string(nil), a.targets...) }

// Registry returns the agent's root registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Model returns the decision capability.
func (a *Agent) Model() model.Model { return a.model }

// History returns a copy of the conversation history.
func (a *Agent) History() []core.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return append([]core.Message(nil), a.history...)
}

// ClearHistory drops the conversation history. Callers typically do this
// between unrelated requests.
func (a *Agent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = nil
}

// turn is the state of one Process call. The model sees the history as it
// was when the turn started plus the turn's own messages, so a concurrent
// turn of the same agent cannot interleave with it.
type turn struct {
	agent   *Agent
	reg     *tool.Registry
	base    []core.Message
	own     []core.Message
	out     *Outcome
	limiter *core.TurnLimiter
}

func (t *turn) record(m core.Message) {
	t.own = append(t.own, m)

	t.agent.mu.Lock()
	t.agent.history = append(t.agent.history, m)
	t.agent.mu.Unlock()
}

func (t *turn) window() []core.Message {
	msgs := make([]core.Message, 0, len(t.base)+len(t.own))
	msgs = append(msgs, t.base...)
	msgs = append(msgs, t.own...)

	if max := t.agent.maxHistory; max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	return msgs
}

// Process runs one turn on input. reg selects the registry the turn executes
// against; nil means the agent's own registry, a forked registry runs the
// turn as a parallel branch.
//
// On core.ErrTurnLimitExceeded the partial Outcome is returned alongside the
// error. Decision failures and cancellation are returned as errors as well.
func (a *Agent) Process(ctx context.Context, input string, reg *tool.Registry) (*Outcome, error) {
	if reg == nil {
		reg = a.registry
	}

	t := &turn{
		agent:   a,
		reg:     reg,
		base:    a.History(),
		out:     &Outcome{Agent: a.name, Label: reg.Label()},
		limiter: core.NewTurnLimiter(a.maxCalls),
	}

	start := time.Now()
	a.logger.Info("agent.turn.start", "agent", a.name, "label", reg.Label(), "branch", reg.IsParallelBranch())

	t.record(core.NewUserMessage("", input))

	out, err := a.loop(ctx, t)

	a.logger.Info(
		"agent.turn.end",
		"agent", a.name,
		"label", reg.Label(),
		"tool_calls", len(out.ToolCallLog),
		"handoff", out.Handoff != nil,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return out, err
}

func (a *Agent) loop(ctx context.Context, t *turn) (*Outcome, error) {
	lastText := ""

	for {
		if err := ctx.Err(); err != nil {
			t.out.Response = lastText
			return t.out, err
		}

		instructions, err := a.instruction.Render(t.reg.ToolContext())
		if err != nil {
			return t.out, fmt.Errorf("agent %s: resolve instruction: %w", a.name, err)
		}

		act, err := a.model.Decide(ctx, model.Request{
			Agent:        a.name,
			Instructions: instructions,
			History:      t.window(),
			Tools:        t.reg.Definitions(),
		})
		if err != nil {
			a.logger.Error("agent.decide.error", "agent", a.name, "label", t.reg.Label(), "error", err.Error())
			t.out.Response = lastText
			return t.out, fmt.Errorf("agent %s: decide: %w", a.name, err)
		}

		if act.Usage != nil {
			t.out.Usage.PromptTokens += act.Usage.PromptTokens
			t.out.Usage.CompletionTokens += act.Usage.CompletionTokens
			t.out.Usage.TotalTokens += act.Usage.TotalTokens
		}

		if act.Text != "" {
			lastText = act.Text
		}

		if act.IsFinal() {
			t.record(core.NewAssistantMessage(a.name, act.Text))
			t.out.Response = act.Text
			return t.out, nil
		}

		t.record(core.NewAssistantMessage(a.name, act.Text, act.ToolCalls...))

		for i, call := range act.ToolCalls {
			if err := ctx.Err(); err != nil {
				a.skip(t, act.ToolCalls[i:], "not executed: turn cancelled")
				t.out.Response = lastText
				return t.out, err
			}

			if err := t.limiter.Increment(); err != nil {
				a.logger.Warn("agent.turn.limit", "agent", a.name, "label", t.reg.Label(), "max", t.limiter.Max())
				t.out.Response = lastText
				return t.out, err
			}

			if call.Name == tool.HandoffToolName {
				if a.handoff(t, call) {
					a.skip(t, act.ToolCalls[i+1:], "not executed: turn ended by handoff")
					t.out.Response = lastText
					return t.out, nil
				}
				continue
			}

			a.execute(ctx, t, call)
		}
	}
}

// handoff attempts to schedule the call and reports whether the turn must halt.
func (a *Agent) handoff(t *turn, call core.ToolCall) bool {
	begin := time.Now()

	var (
		result  string
		blocked bool
	)

	targets, message, err := tool.ParseHandoffArgs(call.Arguments)
	if err != nil {
		result, blocked = (&core.RejectionError{Reason: err.Error()}).Error(), true
	} else if res := t.reg.ExecuteHandoff(targets, message); !res.Scheduled() {
		result, blocked = res.Err().Error(), true
	} else {
		t.out.Handoff = t.reg.ConsumePendingHandoff()
		result = fmt.Sprintf("handoff scheduled to %s", strings.Join(targets, ", "))
	}

	t.record(core.NewToolResultMessage(a.name, call, result, blocked))
	t.out.ToolCallLog = append(t.out.ToolCallLog, ToolCallRecord{
		CallID:    call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
		Result:    result,
		IsError:   blocked,
		Duration:  time.Since(begin),
	})

	if blocked {
		a.logger.Warn("agent.handoff.blocked", "agent", a.name, "label", t.reg.Label(), "result", result)
		return false
	}

	a.logger.Info("agent.handoff.scheduled", "agent", a.name, "label", t.reg.Label(), "targets", t.out.Handoff.Targets)

	return true
}

// skip answers calls that will not run, keeping every call in the history
// paired with a result.
func (a *Agent) skip(t *turn, calls []core.ToolCall, reason string) {
	for _, c := range calls {
		t.record(core.NewToolResultMessage(a.name, c, reason, true))
	}
	if len(calls) > 0 {
		a.logger.Debug("agent.calls.skipped", "agent", a.name, "label", t.reg.Label(), "count", len(calls), "reason", reason)
	}
}

func (a *Agent) execute(ctx context.Context, t *turn, call core.ToolCall) {
	begin := time.Now()
	result, err := t.reg.ExecuteWithError(ctx, call.Name, call.Arguments)

	t.record(core.NewToolResultMessage(a.name, call, result, err != nil))
	t.out.ToolCallLog = append(t.out.ToolCallLog, ToolCallRecord{
		CallID:    call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
		Result:    result,
		IsError:   err != nil,
		Duration:  time.Since(begin),
	})
}

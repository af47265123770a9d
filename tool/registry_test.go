package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agency/core"
)

func newTestRegistry(t *testing.T, owner string, known ...string) *Registry {
	t.Helper()

	r := NewRegistry(owner, func(o *RegistryOptions) { o.KnownAgents = known })
	require.NoError(t, r.Register(NewHandoffTool(known...)))

	return r
}

func echoTool(name string) Tool {
	return NewFunctionTool(name, "echo", nil, func(_ context.Context, _ *core.ToolContext, args map[string]any) (any, error) {
		return args, nil
	})
}

func TestRegistry_RegisterAndDefinitions(t *testing.T) {
	r := NewRegistry("coder")
	require.NoError(t, r.Register(echoTool("b"), echoTool("a")))

	assert.Equal(t, []string{"b", "a"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "b", defs[0].Function.Name)

	assert.Error(t, r.Register(echoTool("a")))
	assert.Error(t, r.Register(echoTool(" ")))
	assert.Equal(t, []string{"b", "a"}, r.Names(), "failed registration must not change the table")
}

func TestRegistry_ExecuteStringifiesResults(t *testing.T) {
	r := NewRegistry("coder")
	require.NoError(t, r.Register(
		NewFunctionTool("text", "", nil, func(context.Context, *core.ToolContext, map[string]any) (any, error) {
			return "plain", nil
		}),
		echoTool("json"),
	))

	assert.Equal(t, "plain", r.Execute(context.Background(), "text", nil))
	assert.JSONEq(t, `{"k":"v"}`, r.Execute(context.Background(), "json", map[string]any{"k": "v"}))
}

func TestRegistry_ExecuteNeverEscapes(t *testing.T) {
	r := NewRegistry("coder")
	require.NoError(t, r.Register(
		NewFunctionTool("fail", "", nil, func(context.Context, *core.ToolContext, map[string]any) (any, error) {
			return nil, errors.New("disk full")
		}),
		NewFunctionTool("explode", "", nil, func(context.Context, *core.ToolContext, map[string]any) (any, error) {
			panic("nil map")
		}),
	))

	out, err := r.ExecuteWithError(context.Background(), "fail", nil)
	assert.Equal(t, "error: tool error [EXECUTION_ERROR] in fail: disk full", out)
	assert.ErrorIs(t, err, core.ErrToolExecution)

	var out2 string
	assert.NotPanics(t, func() { out2 = r.Execute(context.Background(), "explode", nil) })
	assert.True(t, strings.HasPrefix(out2, "error: tool error [PANIC] in explode"), out2)

	out, err = r.ExecuteWithError(context.Background(), "missing", nil)
	assert.Contains(t, out, "[NOT_FOUND]")

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

func TestRegistry_ExecuteHandoffSingleAndFanOut(t *testing.T) {
	r := newTestRegistry(t, "Coder", "Coder", "Planner", "Critic")

	res := r.ExecuteHandoff([]string{"Planner"}, "draft spec")
	require.True(t, res.Scheduled())

	h := r.PendingHandoff()
	require.NotNil(t, h)
	assert.Equal(t, []string{"Planner"}, h.Targets)
	assert.Equal(t, "draft spec", h.Message)
	assert.Equal(t, "Coder", h.From)
	assert.False(t, h.IsFanOut())

	res = r.ExecuteHandoff([]string{"Critic"}, "again")
	assert.Equal(t, core.HandoffBlocked, res.Status)
	assert.Equal(t, "a handoff is already pending", res.Reason)

	r.ConsumePendingHandoff()
	res = r.ExecuteHandoff([]string{"Planner", "Critic"}, "parallel task")
	require.True(t, res.Scheduled())
	assert.True(t, r.PendingHandoff().IsFanOut())
}

func TestRegistry_ExecuteHandoffInvalidTargets(t *testing.T) {
	cases := []struct {
		name    string
		targets []string
		reason  string
	}{
		{"none", nil, "no target specified"},
		{"empty", []string{""}, "target names must not be empty"},
		{"self", []string{"Coder"}, `agent "Coder" cannot hand off to itself`},
		{"unknown", []string{"Ghost"}, `unknown agent "Ghost"`},
		{"duplicate", []string{"Planner", "Planner"}, `duplicate target "Planner"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRegistry(t, "Coder", "Coder", "Planner")

			res := r.ExecuteHandoff(tc.targets, "msg")
			assert.Equal(t, core.HandoffBlocked, res.Status)
			assert.Equal(t, tc.reason, res.Reason)
			assert.ErrorIs(t, res.Err(), core.ErrHandoffRejected)
			assert.Nil(t, r.PendingHandoff())
		})
	}
}

func TestRegistry_ExecuteRoutesHandoffCalls(t *testing.T) {
	r := newTestRegistry(t, "Coder", "Coder", "Planner")

	out, err := r.ExecuteWithError(context.Background(), HandoffToolName, map[string]any{"target": "Planner", "message": "m"})
	require.NoError(t, err)
	assert.Equal(t, "handoff scheduled to Planner", out)
	require.NotNil(t, r.ConsumePendingHandoff())

	out, err = r.ExecuteWithError(context.Background(), HandoffToolName, map[string]any{"target": "Ghost", "message": "m"})
	assert.ErrorIs(t, err, core.ErrHandoffRejected)
	assert.Equal(t, `handoff rejected: unknown agent "Ghost"`, out)
}

func TestRegistry_ExecuteHandoffHoldsSlotUntilConsumed(t *testing.T) {
	r := newTestRegistry(t, "Coder", "Coder", "Planner", "Critic")
	ctx := context.Background()

	_, err := r.ExecuteWithError(ctx, HandoffToolName, map[string]any{"target": "Planner", "message": "m"})
	require.NoError(t, err)

	out, err := r.ExecuteWithError(ctx, HandoffToolName, map[string]any{"target": "Critic", "message": "m"})
	assert.ErrorIs(t, err, core.ErrHandoffRejected)
	assert.Contains(t, out, "a handoff is already pending")
	assert.Equal(t, []string{"Planner"}, r.PendingHandoff().Targets)

	require.NotNil(t, r.ConsumePendingHandoff())

	_, err = r.ExecuteWithError(ctx, HandoffToolName, map[string]any{"target": "Critic", "message": "m"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Critic"}, r.ConsumePendingHandoff().Targets)
}

// Nested-handoff blocking: a branch registry never holds a pending handoff.
func TestRegistry_ForkBlocksHandoffs(t *testing.T) {
	root := newTestRegistry(t, "Planner", "Coder", "Planner", "Critic")
	branch := root.Fork("Coder/Planner#0")

	require.True(t, branch.IsParallelBranch())
	assert.False(t, root.IsParallelBranch())

	for _, targets := range [][]string{{"Coder"}, {"Critic"}, {"Coder", "Critic"}, {"Ghost"}} {
		res := branch.ExecuteHandoff(targets, "done")
		assert.Equal(t, core.HandoffBlocked, res.Status)
		assert.Equal(t, ReasonBranchHandoff, res.Reason)
		assert.Nil(t, branch.PendingHandoff())
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = branch.ExecuteHandoff([]string{"Coder"}, "race")
		}()
	}
	wg.Wait()

	assert.Nil(t, branch.ConsumePendingHandoff())
	assert.Nil(t, root.PendingHandoff(), "branch attempts must not leak into the root slot")
}

// Single dispatch: the pending handoff is returned once, then nil.
func TestRegistry_ConsumePendingHandoffOnce(t *testing.T) {
	r := newTestRegistry(t, "Coder", "Coder", "Planner")
	require.True(t, r.ExecuteHandoff([]string{"Planner"}, "draft").Scheduled())

	first := r.ConsumePendingHandoff()
	second := r.ConsumePendingHandoff()

	require.NotNil(t, first)
	assert.Equal(t, "draft", first.Message)
	assert.Nil(t, second)
}

func TestRegistry_ConsumePendingHandoffConcurrent(t *testing.T) {
	r := newTestRegistry(t, "Coder", "Coder", "Planner")
	require.True(t, r.ExecuteHandoff([]string{"Planner"}, "draft").Scheduled())

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.ConsumePendingHandoff() != nil {
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, got)
}

func TestRegistry_ForkSharesTableAndLockIsolatesContext(t *testing.T) {
	root := newTestRegistry(t, "Coder", "Coder", "Planner")
	require.NoError(t, root.Register(echoTool("read_file")))
	root.ToolContext().MarkRead("a.txt")

	child := root.Fork("b0")
	grandchild := child.Fork("b0/b1")

	assert.Same(t, root.WriteLock(), child.WriteLock())
	assert.Same(t, root.WriteLock(), grandchild.WriteLock())
	assert.True(t, grandchild.IsParallelBranch())

	assert.Equal(t, root.Names(), child.Names())
	rootTool, _ := root.Lookup("read_file")
	childTool, _ := child.Lookup("read_file")
	assert.Same(t, rootTool, childTool)

	assert.NotSame(t, root.ToolContext(), child.ToolContext())
	assert.True(t, child.ToolContext().WasRead("a.txt"))
	child.ToolContext().MarkRead("b.txt")
	assert.False(t, root.ToolContext().WasRead("b.txt"))
	assert.Equal(t, "b0/b1", grandchild.ToolContext().Branch())

	// Registration on the root after forking does not leak into existing forks.
	require.NoError(t, root.Register(echoTool("late")))
	_, ok := child.Lookup("late")
	assert.False(t, ok)
}

func TestRegistry_ShareWriteLock(t *testing.T) {
	shared := core.NewWriteLock()
	a := NewRegistry("a")
	b := NewRegistry("b", func(o *RegistryOptions) { o.WriteLock = shared })

	assert.NotSame(t, shared, a.WriteLock())
	a.ShareWriteLock(shared)

	assert.Same(t, shared, a.WriteLock())
	assert.Same(t, shared, b.WriteLock())
	assert.Same(t, shared, a.Fork("a#0").Fork("a#0/1").WriteLock())
}

func TestRegistry_SetKnownAgents(t *testing.T) {
	r := NewRegistry("a")
	assert.True(t, r.ExecuteHandoff([]string{"anyone"}, "").Scheduled(), "without a roster any non-self target is accepted")
	r.ConsumePendingHandoff()

	r.SetKnownAgents("a", "b")
	res := r.ExecuteHandoff([]string{"anyone"}, "")
	assert.Equal(t, core.HandoffBlocked, res.Status)
	assert.True(t, r.ExecuteHandoff([]string{"b"}, "").Scheduled())
}

func TestRegistry_ForkWithSeedsIssuerContext(t *testing.T) {
	issuer := newTestRegistry(t, "Coder", "Coder", "Planner")
	issuer.ToolContext().MarkRead("/x.txt")
	issuer.ToolContext().SetState("ticket", "T-1")

	target := NewRegistry("Planner")
	require.NoError(t, target.Register(echoTool("plan")))

	branch := target.ForkWith("Coder/Planner#0", issuer.ToolContext())

	assert.True(t, branch.IsParallelBranch())
	assert.Equal(t, []string{"plan"}, branch.Names())
	assert.Equal(t, "Planner", branch.ToolContext().AgentName())
	assert.Equal(t, "Coder/Planner#0", branch.ToolContext().Branch())
	assert.True(t, branch.ToolContext().WasRead("/x.txt"))
	assert.Equal(t, map[string]any{"ticket": "T-1"}, branch.ToolContext().State())
	assert.Same(t, issuer.WriteLock(), branch.WriteLock())

	branch.ToolContext().MarkRead("/y.txt")
	assert.False(t, issuer.ToolContext().WasRead("/y.txt"))

	plain := target.ForkWith("Coder/Planner#1", nil)
	assert.False(t, plain.ToolContext().WasRead("/x.txt"))
	assert.Same(t, target.WriteLock(), plain.WriteLock())
}

package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/model"
	"github.com/hupe1980/agency/tool"
)

func handoffTo(targets []string, message string) model.Action {
	args := map[string]any{"message": message}
	if len(targets) == 1 {
		args["target"] = targets[0]
	} else {
		args["targets"] = targets
	}
	return model.Call(tool.HandoffToolName, args)
}

func counterTool(calls *int) tool.Tool {
	return tool.NewFunctionTool("count", "counts calls", nil, func(context.Context, *core.ToolContext, map[string]any) (any, error) {
		*calls++
		return "counted", nil
	})
}

func newAgent(t *testing.T, name string, m model.Model, optFns ...func(o *Options)) *Agent {
	t.Helper()

	a, err := New(name, m, optFns...)
	require.NoError(t, err)

	return a
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", model.NewScriptedModel("m"))
	assert.Error(t, err)

	_, err = New("a", nil)
	assert.Error(t, err)

	_, err = New("a", model.NewScriptedModel("m"), func(o *Options) {
		o.Tools = []tool.Tool{tool.NewHandoffTool()}
		o.HandoffTargets = []string{"b"}
	})
	assert.Error(t, err, "a user supplied tool named handoff collides with the handoff tool")
}

func TestProcess_FinalResponse(t *testing.T) {
	m := model.NewScriptedModel("m").Then(model.Final("hello back"))
	a := newAgent(t, "Coder", m, func(o *Options) { o.Instruction = NewInstructionFromText("be brief") })

	out, err := a.Process(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello back", out.Response)
	assert.Nil(t, out.Handoff)
	assert.Equal(t, "Coder", out.Label)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be brief", reqs[0].Instructions)
	assert.Equal(t, "hello", reqs[0].LastUserText())

	hist := a.History()
	require.Len(t, hist, 2)
	assert.Equal(t, core.RoleUser, hist[0].Role)
	assert.Equal(t, core.RoleAssistant, hist[1].Role)
}

func TestProcess_ExecutesToolsThenAnswers(t *testing.T) {
	calls := 0
	m := model.NewScriptedModel("m").
		Then(model.Call("count", nil)).
		Then(model.Calls(core.ToolCall{Name: "count"}, core.ToolCall{Name: "missing"})).
		Then(model.Final("done"))

	a := newAgent(t, "Coder", m, func(o *Options) { o.Tools = []tool.Tool{counterTool(&calls)} })

	out, err := a.Process(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Response)
	assert.Equal(t, 2, calls)

	require.Len(t, out.ToolCallLog, 3)
	assert.Equal(t, "counted", out.ToolCallLog[0].Result)
	assert.True(t, out.ToolCallLog[2].IsError)
	assert.Contains(t, out.ToolCallLog[2].Result, "[NOT_FOUND]")

	last, ok := m.Requests()[2].LastToolResult()
	require.True(t, ok)
	assert.True(t, last.IsError())
}

func TestProcess_ScheduledHandoffHaltsTurn(t *testing.T) {
	calls := 0
	m := model.NewScriptedModel("m").Then(model.Action{
		Text: "passing this on",
		ToolCalls: []core.ToolCall{
			{ID: "1", Name: tool.HandoffToolName, Arguments: map[string]any{"target": "Planner", "message": "draft spec"}},
			{ID: "2", Name: "count"},
			{ID: "3", Name: tool.HandoffToolName, Arguments: map[string]any{"target": "Critic", "message": "ignored"}},
		},
	})

	a := newAgent(t, "Coder", m, func(o *Options) {
		o.Tools = []tool.Tool{counterTool(&calls)}
		o.HandoffTargets = []string{"Planner", "Critic"}
		o.KnownAgents = []string{"Coder", "Planner", "Critic"}
	})

	out, err := a.Process(context.Background(), "write a parser", nil)
	require.NoError(t, err)

	require.NotNil(t, out.Handoff)
	assert.Equal(t, []string{"Planner"}, out.Handoff.Targets)
	assert.Equal(t, "draft spec", out.Handoff.Message)
	assert.Equal(t, "Coder", out.Handoff.From)
	assert.Equal(t, "passing this on", out.Response)

	assert.Zero(t, calls, "calls after a scheduled handoff are discarded")
	assert.Len(t, m.Requests(), 1, "the turn halts without another decision")
	assert.Nil(t, a.Registry().PendingHandoff(), "the agent consumes the slot it filled")

	hist := a.History()
	require.Len(t, hist, 5)
	assert.Equal(t, "handoff scheduled to Planner", hist[2].Content)
	assert.True(t, hist[3].IsError())
	assert.True(t, hist[4].IsError())
}

func TestProcess_CancellationStopsToolBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	cancelling := tool.NewFunctionTool("count", "counts calls", nil, func(context.Context, *core.ToolContext, map[string]any) (any, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return "counted", nil
	})

	batch := make([]core.ToolCall, 4)
	for i := range batch {
		batch[i] = core.ToolCall{ID: string(rune('a' + i)), Name: "count"}
	}
	m := model.NewScriptedModel("m").Then(model.Calls(batch...)).Then(model.Final("unreachable"))

	a := newAgent(t, "Planner", m, func(o *Options) { o.Tools = []tool.Tool{cancelling} })

	out, err := a.Process(ctx, "work", nil)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, calls)
	assert.Len(t, out.ToolCallLog, 2)
	assert.Len(t, m.Requests(), 1)

	hist := a.History()
	require.Len(t, hist, 6)
	for _, msg := range hist[4:] {
		assert.True(t, msg.IsError())
		assert.Equal(t, "not executed: turn cancelled", msg.Content)
	}
}

func TestProcess_FanOutHandoff(t *testing.T) {
	m := model.NewScriptedModel("m").Then(handoffTo([]string{"Planner", "Critic"}, "parallel task"))
	a := newAgent(t, "Coder", m, func(o *Options) { o.HandoffTargets = []string{"Planner", "Critic"} })

	out, err := a.Process(context.Background(), "x", nil)
	require.NoError(t, err)
	require.NotNil(t, out.Handoff)
	assert.True(t, out.Handoff.IsFanOut())
	assert.Equal(t, []string{"Planner", "Critic"}, out.Handoff.Targets)
}

func TestProcess_BlockedHandoffContinues(t *testing.T) {
	m := model.NewScriptedModel("m").
		Then(handoffTo([]string{"Ghost"}, "hi")).
		Then(model.Call(tool.HandoffToolName, map[string]any{"target": 42})).
		Then(model.Final("handled it myself"))

	a := newAgent(t, "Coder", m, func(o *Options) {
		o.HandoffTargets = []string{"Planner"}
		o.KnownAgents = []string{"Coder", "Planner"}
	})

	out, err := a.Process(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Nil(t, out.Handoff)
	assert.Equal(t, "handled it myself", out.Response)

	require.Len(t, out.ToolCallLog, 2)
	assert.Equal(t, `handoff rejected: unknown agent "Ghost"`, out.ToolCallLog[0].Result)
	assert.True(t, out.ToolCallLog[1].IsError)
	assert.Contains(t, out.ToolCallLog[1].Result, "handoff rejected:")
}

// A branch agent trying to hand off is blocked, warned and still answers.
func TestProcess_BranchHandoffBlocked(t *testing.T) {
	m := model.NewScriptedModel("planner").
		Then(handoffTo([]string{"Coder"}, "done")).
		ThenStep(model.Step{Fn: func(req model.Request) (model.Action, error) {
			last, _ := req.LastToolResult()
			return model.Final("plan ready (" + last.Content + ")"), nil
		}})

	planner := newAgent(t, "Planner", m, func(o *Options) {
		o.HandoffTargets = []string{"Coder"}
		o.KnownAgents = []string{"Coder", "Planner", "Critic"}
	})

	branch := planner.Registry().Fork("Coder/Planner#0")

	out, err := planner.Process(context.Background(), "parallel task", branch)
	require.NoError(t, err)
	assert.Nil(t, out.Handoff)
	assert.Equal(t, "Coder/Planner#0", out.Label)
	assert.Equal(t, "plan ready (handoff rejected: "+tool.ReasonBranchHandoff+")", out.Response)
	assert.NotEmpty(t, out.Response)

	var warned bool
	for _, msg := range planner.History() {
		if msg.IsError() && msg.Content == "handoff rejected: "+tool.ReasonBranchHandoff {
			warned = true
		}
	}
	assert.True(t, warned, "the rejection is recorded in the planner's history")
	assert.Nil(t, branch.PendingHandoff())
	assert.Nil(t, planner.Registry().PendingHandoff())
}

func TestProcess_TurnLimitReturnsPartialOutcome(t *testing.T) {
	calls := 0
	m := model.NewScriptedModel("m").Otherwise(model.Step{Fn: func(model.Request) (model.Action, error) {
		a := model.Call("count", nil)
		a.Text = "still working"
		return a, nil
	}})

	a := newAgent(t, "Coder", m, func(o *Options) {
		o.Tools = []tool.Tool{counterTool(&calls)}
		o.MaxToolCalls = 3
	})

	out, err := a.Process(context.Background(), "loop forever", nil)
	require.ErrorIs(t, err, core.ErrTurnLimitExceeded)
	require.NotNil(t, out)
	assert.Len(t, out.ToolCallLog, 3)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "still working", out.Response)
}

func TestProcess_DecideErrorAndCancellation(t *testing.T) {
	boom := errors.New("provider down")
	a := newAgent(t, "Coder", model.NewScriptedModel("m").ThenStep(model.Step{Err: boom}))

	_, err := a.Process(context.Background(), "x", nil)
	assert.ErrorIs(t, err, boom)

	slow := model.NewScriptedModel("m").ThenStep(model.Step{Delay: time.Second, Action: model.Final("late")})
	b := newAgent(t, "Critic", slow)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = b.Process(ctx, "x", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcess_HistoryWindowAndClear(t *testing.T) {
	m := model.NewScriptedModel("m").Otherwise(model.Step{Action: model.Final("ok")})
	a := newAgent(t, "Coder", m, func(o *Options) { o.MaxHistoryMessages = 3 })

	for i := 0; i < 3; i++ {
		_, err := a.Process(context.Background(), "turn", nil)
		require.NoError(t, err)
	}

	reqs := m.Requests()
	assert.Len(t, reqs[2].History, 3)
	assert.Len(t, a.History(), 6)

	a.ClearHistory()
	assert.Empty(t, a.History())
}

func TestProcess_ToolsAdvertised(t *testing.T) {
	m := model.NewScriptedModel("m").Then(model.Final("ok"))
	calls := 0
	a := newAgent(t, "Coder", m, func(o *Options) {
		o.Tools = []tool.Tool{counterTool(&calls)}
		o.HandoffTargets = []string{"Planner"}
	})

	_, err := a.Process(context.Background(), "x", nil)
	require.NoError(t, err)

	var names []string
	for _, d := range m.Requests()[0].Tools {
		names = append(names, d.Function.Name)
	}
	assert.Equal(t, []string{"count", tool.HandoffToolName}, names)
	assert.Equal(t, []string{"Planner"}, a.HandoffTargets())
}

package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agency/core"
)

func TestScriptedModel_ReplaysInOrder(t *testing.T) {
	m := NewScriptedModel("s").
		Then(Call("read_file", map[string]any{"path": "a"})).
		Then(Final("done"))

	a, err := m.Decide(context.Background(), Request{})
	require.NoError(t, err)
	require.False(t, a.IsFinal())
	assert.Equal(t, "read_file", a.ToolCalls[0].Name)
	assert.NotEmpty(t, a.ToolCalls[0].ID)

	a, err = m.Decide(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, a.IsFinal())
	assert.Equal(t, "done", a.Text)

	_, err = m.Decide(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Len(t, m.Requests(), 3)
}

func TestScriptedModel_FallbackAndFn(t *testing.T) {
	m := NewScriptedModel("s").Otherwise(Step{Fn: func(req Request) (Action, error) {
		return Final("echo: " + req.LastUserText()), nil
	}})

	for i := 0; i < 3; i++ {
		a, err := m.Decide(context.Background(), Request{History: []core.Message{core.NewUserMessage("user", "hi")}})
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", a.Text)
	}
}

func TestScriptedModel_DelayHonoursCancellation(t *testing.T) {
	m := NewScriptedModel("slow", Step{Action: Final("late"), Delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Decide(ctx, Request{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestScriptedModel_Error(t *testing.T) {
	boom := errors.New("provider down")
	m := NewScriptedModel("s", Step{Err: boom})

	_, err := m.Decide(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
}

func TestRequestHelpers(t *testing.T) {
	call := core.ToolCall{ID: "c1", Name: "read_file"}
	req := Request{History: []core.Message{
		core.NewUserMessage("user", "first"),
		core.NewAssistantMessage("a", "", call),
		core.NewToolResultMessage("a", call, "body", false),
		core.NewUserMessage("pm", "second"),
	}}

	assert.Equal(t, "second", req.LastUserText())
	last, ok := req.LastToolResult()
	require.True(t, ok)
	assert.Equal(t, "c1", last.ToolResult.CallID)
}

func TestFunc(t *testing.T) {
	var m Model = Func(func(_ context.Context, _ Request) (Action, error) { return Final("ok"), nil })

	a, err := m.Decide(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", a.Text)
	assert.Equal(t, "local", m.Info().Provider)
}

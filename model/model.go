package model

import (
	"context"

	"github.com/hupe1980/agency/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized decision input assembled by an agent.
type Request struct {
	Agent        string           `json:"agent"`
	Instructions string           `json:"instructions"`
	History      []core.Message   `json:"history"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// LastUserText returns the content of the most recent user message.
func (r Request) LastUserText() string {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == core.RoleUser {
			return r.History[i].Content
		}
	}
	return ""
}

// LastToolResult returns the most recent tool-role message, if any.
func (r Request) LastToolResult() (core.Message, bool) {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == core.RoleTool {
			return r.History[i], true
		}
	}
	return core.Message{}, false
}

// TokenUsage captures token usage statistics for a decision.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Action is the outcome of one decision. Without tool calls it is final and
// Text is the agent's response; otherwise the calls are executed in order and
// Text, if any, is commentary accompanying them.
type Action struct {
	Text         string          `json:"text,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"` // "stop", "tool_calls", "length", ...
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// IsFinal reports whether the action carries no tool calls.
func (a Action) IsFinal() bool { return len(a.ToolCalls) == 0 }

// Final builds a final action.
func Final(text string) Action { return Action{Text: text, FinishReason: "stop"} }

// Call builds an action with a single tool call and a generated call ID.
func Call(name string, args map[string]any) Action {
	return Calls(core.ToolCall{Name: name, Arguments: args})
}

// Calls builds an action with several tool calls, assigning IDs where missing.
func Calls(calls ...core.ToolCall) Action {
	out := make([]core.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = core.NewID()
		}
		out[i] = c
	}
	return Action{ToolCalls: out, FinishReason: "tool_calls"}
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the decision capability consumed by agents.
type Model interface {
	Decide(ctx context.Context, req Request) (Action, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Func adapts an ordinary function to the Model interface.
type Func func(ctx context.Context, req Request) (Action, error)

// Decide implements Model.
func (f Func) Decide(ctx context.Context, req Request) (Action, error) { return f(ctx, req) }

// Info implements Model.
func (f Func) Info() Info { return Info{Name: "func", Provider: "local", SupportsTools: true} }

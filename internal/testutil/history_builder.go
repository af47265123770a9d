package testutil

import (
	"github.com/hupe1980/agency/core"
)

// HistoryBuilder provides a fluent helper for constructing agent histories.
// Example:
//
//	h := NewHistoryBuilder("coder").User("fix it").Call("c1", "read_file", map[string]any{"path": "a"}).Result("c1", "read_file", "body").Build()
type HistoryBuilder struct {
	author   string
	messages []core.Message
}

// NewHistoryBuilder creates a builder whose assistant/tool messages are
// authored by the given agent.
func NewHistoryBuilder(author string) *HistoryBuilder { return &HistoryBuilder{author: author} }

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	b.messages = append(b.messages, core.NewUserMessage("user", text))
	return b
}

// Assistant appends a final assistant message (chainable).
func (b *HistoryBuilder) Assistant(text string) *HistoryBuilder {
	b.messages = append(b.messages, core.NewAssistantMessage(b.author, text))
	return b
}

// Call appends an assistant message carrying a single tool call (chainable).
func (b *HistoryBuilder) Call(id, name string, args map[string]any) *HistoryBuilder {
	b.messages = append(b.messages, core.NewAssistantMessage(b.author, "", core.ToolCall{ID: id, Name: name, Arguments: args}))
	return b
}

// Result appends a successful tool result for the call id (chainable).
func (b *HistoryBuilder) Result(id, name, text string) *HistoryBuilder {
	b.messages = append(b.messages, core.NewToolResultMessage(b.author, core.ToolCall{ID: id, Name: name}, text, false))
	return b
}

// Failure appends a failed tool result for the call id (chainable).
func (b *HistoryBuilder) Failure(id, name, text string) *HistoryBuilder {
	b.messages = append(b.messages, core.NewToolResultMessage(b.author, core.ToolCall{ID: id, Name: name}, text, true))
	return b
}

// Build returns a copy of the accumulated messages.
func (b *HistoryBuilder) Build() []core.Message {
	return append([]core.Message(nil), b.messages...)
}

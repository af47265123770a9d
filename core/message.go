package core

import (
	"time"

	"github.com/google/uuid"
)

// Conversation roles used in agent histories.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ToolCall describes one tool invocation requested by a decision.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult correlates a tool-role message with the call it answers.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is a single entry of an agent's append-only history. After it has
// been appended it should be treated as immutable.
//
// Assistant messages may carry ToolCalls; tool messages carry ToolResult
// metadata linking them back to the originating call.
type Message struct {
	ID         string      `json:"id"`
	Role       string      `json:"role"`
	Author     string      `json:"author,omitempty"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewID generates a new unique identifier for messages, calls and requests.
func NewID() string { return uuid.NewString() }

// NewMessage creates a bare message with a fresh ID and UTC timestamp.
func NewMessage(role, author, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserMessage creates a user-role message. The author records who produced
// the input (the end user or the agent that handed off).
func NewUserMessage(author, content string) Message {
	return NewMessage(RoleUser, author, content)
}

// NewAssistantMessage creates an assistant message, optionally carrying the
// tool calls of the decision that produced it.
func NewAssistantMessage(author, content string, calls ...ToolCall) Message {
	m := NewMessage(RoleAssistant, author, content)
	if len(calls) > 0 {
		m.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return m
}

// NewToolResultMessage records the string result of a tool call.
func NewToolResultMessage(author string, call ToolCall, result string, isError bool) Message {
	m := NewMessage(RoleTool, author, result)
	m.ToolResult = &ToolResult{CallID: call.ID, Name: call.Name, IsError: isError}
	return m
}

// IsError reports whether the message is a tool result flagged as failed.
func (m Message) IsError() bool { return m.ToolResult != nil && m.ToolResult.IsError }

package tool

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/agency/core"
)

// StateManagerTool lets an agent read and write its ToolContext state bag.
// Values written here are visible to later tool calls and to dynamic
// instructions of the same registry; a forked branch works on its own copy.
type StateManagerTool struct {
	name        string
	description string
}

// NewStateManagerTool creates a new state management tool supporting the
// operations get_state, set_state and list_state.
func NewStateManagerTool() *StateManagerTool {
	return &StateManagerTool{
		name: "state_manager",
		description: "Reads and writes the agent's working state. " +
			"Supports operations: get_state, set_state, list_state.",
	}
}

// Name returns the tool identifier.
func (t *StateManagerTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *StateManagerTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *StateManagerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_state", "set_state", "list_state"},
				"description": "The state management operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state/set_state operations",
			},
			"value": map[string]any{
				"description": "Value for set_state operations (any type)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface with structured arguments.
func (t *StateManagerTool) Call(_ context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "get_state":
		return t.handleGetState(args, toolCtx)
	case "set_state":
		return t.handleSetState(args, toolCtx)
	case "list_state":
		return t.handleListState(toolCtx), nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func (t *StateManagerTool) handleGetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key parameter is required for get_state operation")
	}

	value, exists := toolCtx.GetState(key)

	return map[string]any{
		"key":    key,
		"exists": exists,
		"value":  value,
	}, nil
}

func (t *StateManagerTool) handleSetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("key parameter is required for set_state operation")
	}

	value := args["value"]
	toolCtx.SetState(key, value)

	return map[string]any{
		"key":     key,
		"value":   value,
		"success": true,
	}, nil
}

func (t *StateManagerTool) handleListState(toolCtx *core.ToolContext) map[string]any {
	state := toolCtx.State()
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return map[string]any{"keys": keys}
}

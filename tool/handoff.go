package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/internal/util"
)

// HandoffToolName is the reserved name of the handoff-class tool. Calls to it
// are never dispatched to a handler; the registry schedules them instead.
const HandoffToolName = "handoff"

// handoffTool only contributes the schema the decision capability sees.
type handoffTool struct {
	targets []string
}

// NewHandoffTool constructs the handoff tool advertising the given targets.
func NewHandoffTool(targets ...string) Tool {
	sorted := append([]string(nil), targets...)
	sort.Strings(sorted)
	return &handoffTool{targets: sorted}
}

func (t *handoffTool) Name() string { return HandoffToolName }

func (t *handoffTool) Description() string {
	desc := "Transfer control to another agent together with a message. " +
		"Use 'target' for a single agent or 'targets' to consult several agents in parallel; " +
		"their answers are returned to you as one combined message."
	if len(t.targets) > 0 {
		desc += " Available agents: " + strings.Join(t.targets, ", ") + "."
	}
	return desc
}

func (t *handoffTool) Parameters() map[string]any {
	target := map[string]any{"type": "string", "description": "Name of the agent to hand off to"}
	if len(t.targets) > 0 {
		target["enum"] = append([]string(nil), t.targets...)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target":  target,
			"targets": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Agents to consult in parallel"},
			"message": map[string]any{"type": "string", "description": "Message passed to the receiving agent(s)"},
		},
		"required": []string{"message"},
	}
}

func (t *handoffTool) Call(context.Context, *core.ToolContext, map[string]any) (any, error) {
	return nil, NewToolError(HandoffToolName, "handoff must be scheduled through its registry", CodeExecution)
}

// ParseHandoffArgs extracts targets and message from handoff tool arguments.
// 'target' and 'targets' may both be present; they are merged in that order.
func ParseHandoffArgs(args map[string]any) ([]string, string, error) {
	var targets []string

	if raw, ok := args["target"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, "", fmt.Errorf("field 'target' must be a string")
		}
		targets = append(targets, s)
	}

	if _, ok := args["targets"]; ok && args["targets"] != nil {
		list, ok := util.StringSliceArg(args, "targets")
		if !ok {
			return nil, "", fmt.Errorf("field 'targets' must be an array of strings")
		}
		targets = append(targets, list...)
	}

	message := ""
	if raw, ok := args["message"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, "", fmt.Errorf("field 'message' must be a string")
		}
		message = s
	}

	return targets, message, nil
}

// Package tool implements the tool calling subsystem that lets agents invoke
// structured capabilities with schema validated arguments, consistent error
// handling and the per-agent Registry that owns handoff scheduling and forking.
package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Return failures as errors, never panic
//   - Be safe for concurrent use: the same instance is shared by every fork
//     of a registry and therefore by parallel branches
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the decision capability to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments and the ToolContext of
	// the registry it was invoked through.
	Call(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeExecution    = "EXECUTION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeResourceBusy = "RESOURCE_BUSY"
	CodePrecondition = "PRECONDITION_VIOLATION"
	CodePanic        = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	cause   error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the taxonomy sentinel matching Code plus the original cause.
func (e *ToolError) Unwrap() []error {
	errs := []error{sentinelFor(e.Code)}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func sentinelFor(code string) error {
	switch code {
	case CodeResourceBusy:
		return core.ErrResourceBusy
	case CodePrecondition:
		return core.ErrPreconditionViolation
	default:
		return core.ErrToolExecution
	}
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// AsToolError converts any error into a *ToolError for the named tool,
// classifying known sentinels into their codes. Existing ToolErrors pass through.
func AsToolError(tool string, err error) *ToolError {
	if err == nil {
		return nil
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	code := CodeExecution
	switch {
	case errors.Is(err, core.ErrResourceBusy):
		code = CodeResourceBusy
	case errors.Is(err, core.ErrPreconditionViolation):
		code = CodePrecondition
	}

	return &ToolError{Tool: tool, Message: err.Error(), Code: code, cause: err}
}

// panicError converts a recovered panic value to a ToolError carrying the stack.
func panicError(tool string, r any) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: fmt.Sprintf("panic: %v", r),
		Code:    CodePanic,
		Details: string(debug.Stack()),
	}
}

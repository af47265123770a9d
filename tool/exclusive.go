package tool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agency/core"
)

// Exclusive guards a tool whose underlying resource admits a single user at a
// time (for example one interactive shell channel). A concurrent call fails
// immediately with RESOURCE_BUSY instead of waiting.
type Exclusive struct {
	Tool
	sem *semaphore.Weighted
}

// NewExclusive wraps t with a try-acquire guard. Tools sharing one resource
// should share sem; a nil sem allocates a private one.
func NewExclusive(t Tool, sem *semaphore.Weighted) *Exclusive {
	if sem == nil {
		sem = semaphore.NewWeighted(1)
	}
	return &Exclusive{Tool: t, sem: sem}
}

// Call runs the wrapped tool if the resource is free.
func (e *Exclusive) Call(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error) {
	if !e.sem.TryAcquire(1) {
		toolCtx.LogDebug("tool.exclusive.busy", "tool", e.Name())

		return nil, &ToolError{
			Tool:    e.Name(),
			Message: fmt.Sprintf("%s is in use by another caller", e.Name()),
			Code:    CodeResourceBusy,
			cause:   core.ErrResourceBusy,
		}
	}
	defer e.sem.Release(1)

	return e.Tool.Call(ctx, toolCtx, args)
}

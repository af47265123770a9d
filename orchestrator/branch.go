package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agency/agent"
	"github.com/hupe1980/agency/core"
)

// branchLabel names a branch as "<issuer>/<target>#<index>", index being the
// target's position in the handoff request.
func branchLabel(issuer, target string, index int) string {
	return fmt.Sprintf("%s/%s#%d", issuer, target, index)
}

// fanOut runs every permitted target concurrently and fills slots in target
// order. Slots already carrying an error (dropped targets) are left alone.
// It returns once every branch has finished or timed out.
func (o *Orchestrator) fanOut(ctx context.Context, issuer *agent.Agent, targets []string, message string, slots []core.BranchResult, r *request) {
	var wg sync.WaitGroup

	for i, t := range targets {
		if slots[i].Error != "" {
			continue
		}

		wg.Add(1)
		go func(i int, target *agent.Agent) {
			defer wg.Done()
			slots[i] = r.runBranch(ctx, issuer, target, i, message)
		}(i, o.agents[t])
	}

	wg.Wait()

	for i, br := range slots {
		if br.Error == ReasonNotPermitted {
			continue
		}

		label := branchLabel(issuer.Name(), br.Target, i)
		if br.Success {
			r.record(br.Target, core.EntryBranch, label+": "+br.Response)
		} else {
			r.record(br.Target, core.EntryBranch, label+": failed: "+br.Error)
		}
	}
}

// runBranch processes message on target against a branch registry holding
// the target's tools and a clone of the issuer's ToolContext. It never panics
// and never blocks longer than the branch timeout: on expiry the branch
// context is cancelled and the late result discarded.
func (r *request) runBranch(ctx context.Context, issuer, target *agent.Agent, index int, message string) core.BranchResult {
	o := r.o
	label := branchLabel(issuer.Name(), target.Name(), index)
	reg := target.Registry().ForkWith(label, issuer.Registry().ToolContext())

	bctx, cancel := context.WithTimeout(ctx, o.opts.BranchTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	start := time.Now()

	r.logger.Info("orchestrator.branch.start", "label", label, "target", target.Name())

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("orchestrator.branch.panic", "label", label, "recover", rec)
				done <- outcome{err: core.ErrBranchFailure, panic: rec}
			}
		}()

		out, err := target.Process(bctx, message, reg)
		done <- outcome{out: out, err: err}
	}()

	var res core.BranchResult

	if oc, ok := await(done, bctx.Done()); !ok {
		res = o.branchResult(bctx, target.Name(), nil, bctx.Err())
	} else if oc.panic != nil {
		res = core.BranchResult{Target: target.Name(), Error: fmt.Sprintf("panic: %v", oc.panic)}
	} else {
		res = o.branchResult(bctx, target.Name(), oc.out, oc.err)
	}

	res.Duration = time.Since(start)

	r.logger.Info(
		"orchestrator.branch.done",
		"label", label,
		"success", res.Success,
		"error", res.Error,
		"duration_ms", res.Duration.Milliseconds(),
	)

	return res
}

type outcome struct {
	out   *agent.Outcome
	err   error
	panic any
}

// await waits for the branch outcome or the deadline. An outcome that is
// already available when the deadline fires still counts.
func await[T any](done <-chan T, expired <-chan struct{}) (T, bool) {
	select {
	case v := <-done:
		return v, true
	case <-expired:
		select {
		case v := <-done:
			return v, true
		default:
			var zero T
			return zero, false
		}
	}
}

func (o *Orchestrator) branchResult(bctx context.Context, target string, out *agent.Outcome, err error) core.BranchResult {
	res := core.BranchResult{Target: target}

	switch {
	case err == nil:
		res.Success = true
		res.Response = out.Response
	case errors.Is(bctx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded):
		res.Error = core.ErrBranchTimeout.Error()
	case errors.Is(err, core.ErrTurnLimitExceeded):
		res.Error = core.ErrTurnLimitExceeded.Error()
	default:
		res.Error = err.Error()
	}

	return res
}

// Package orchestrator drives a request across the agents of an agency.
//
// Per request the orchestrator runs a small state machine:
//
//	ROUTING --final response--> DONE
//	ROUTING --single handoff--> ROUTING
//	ROUTING --fan-out--> BRANCHING --> AGGREGATING --> ROUTING
//	ROUTING --hop limit / turn limit / failure--> FAILED
//
// Sequential handoffs run on the caller's goroutine. A fan-out runs one
// goroutine per target against a forked registry of that target; all forks
// share the agency's single write lock. Results are joined in target order
// and handed to the aggregator agent as one message.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agency/agent"
	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/logging"
)

// Defaults applied by New.
const (
	DefaultMaxHops       = 10
	DefaultBranchTimeout = 2 * time.Minute
)

// ReasonNotPermitted is the branch error recorded for targets outside the
// issuer's communication flows.
const ReasonNotPermitted = "handoff not permitted"

// Options configures an Orchestrator.
type Options struct {
	// MaxHops is the routing budget of one request.
	MaxHops int
	// BranchTimeout bounds every parallel branch individually.
	BranchTimeout time.Duration
	// Flows is the directed communication graph: issuer -> permitted targets.
	// A nil map permits every roster agent to hand off to every other one.
	Flows map[string][]string
	// Aggregator receives every fan-out result when set. Empty means the
	// issuing agent aggregates its own fan-out.
	Aggregator string
	// Aggregators overrides the aggregator per issuing agent.
	Aggregators map[string]string
	// AggregationPolicy controls how branch failures are rendered.
	AggregationPolicy AggregationPolicy
	// ResetHistory clears every agent's history before a request.
	ResetHistory bool
	Logger       logging.Logger
}

// Orchestrator routes requests through a fixed roster of agents. Requests
// are serialized: agents keep one conversation history each.
type Orchestrator struct {
	entry  *agent.Agent
	agents map[string]*agent.Agent
	names  []string
	flows  map[string]map[string]struct{}
	lock   *core.WriteLock
	opts   Options
	logger logging.Logger

	mu sync.Mutex
}

// New creates an orchestrator starting every request at the agent named
// entry. Every roster agent's registry is joined to one agency-wide write
// lock and restricted to the roster as handoff targets.
func New(entry string, roster []*agent.Agent, optFns ...func(o *Options)) (*Orchestrator, error) {
	opts := Options{
		MaxHops:           DefaultMaxHops,
		BranchTimeout:     DefaultBranchTimeout,
		AggregationPolicy: AggregationVerbatim,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxHops < 0 {
		return nil, fmt.Errorf("max hops must not be negative, got %d", opts.MaxHops)
	}
	if opts.BranchTimeout <= 0 {
		opts.BranchTimeout = DefaultBranchTimeout
	}
	if opts.AggregationPolicy == "" {
		opts.AggregationPolicy = AggregationVerbatim
	}
	if !opts.AggregationPolicy.valid() {
		return nil, fmt.Errorf("unknown aggregation policy %q", opts.AggregationPolicy)
	}

	if len(roster) == 0 {
		return nil, errors.New("roster must not be empty")
	}

	agents := make(map[string]*agent.Agent, len(roster))
	names := make([]string, 0, len(roster))
	for _, a := range roster {
		if a == nil {
			return nil, errors.New("roster contains a nil agent")
		}
		if _, dup := agents[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate agent %q", a.Name())
		}
		agents[a.Name()] = a
		names = append(names, a.Name())
	}
	sort.Strings(names)

	e, ok := agents[entry]
	if !ok {
		return nil, fmt.Errorf("entry agent %q is not in the roster", entry)
	}

	flows, err := buildFlows(opts.Flows, agents)
	if err != nil {
		return nil, err
	}

	if opts.Aggregator != "" {
		if _, ok := agents[opts.Aggregator]; !ok {
			return nil, fmt.Errorf("aggregator %q is not in the roster", opts.Aggregator)
		}
	}
	for issuer, agg := range opts.Aggregators {
		if _, ok := agents[issuer]; !ok {
			return nil, fmt.Errorf("aggregator override for unknown agent %q", issuer)
		}
		if _, ok := agents[agg]; !ok {
			return nil, fmt.Errorf("aggregator %q for %q is not in the roster", agg, issuer)
		}
	}

	lock := core.NewWriteLock()
	for _, a := range roster {
		a.Registry().ShareWriteLock(lock)
		a.Registry().SetKnownAgents(names...)
	}

	return &Orchestrator{
		entry:  e,
		agents: agents,
		names:  names,
		flows:  flows,
		lock:   lock,
		opts:   opts,
		logger: opts.Logger,
	}, nil
}

func buildFlows(raw map[string][]string, agents map[string]*agent.Agent) (map[string]map[string]struct{}, error) {
	if raw == nil {
		return nil, nil
	}

	flows := make(map[string]map[string]struct{}, len(raw))
	for from, tos := range raw {
		if _, ok := agents[from]; !ok {
			return nil, fmt.Errorf("flow from unknown agent %q", from)
		}
		set := make(map[string]struct{}, len(tos))
		for _, to := range tos {
			if _, ok := agents[to]; !ok {
				return nil, fmt.Errorf("flow %s -> %s: unknown agent %q", from, to, to)
			}
			set[to] = struct{}{}
		}
		flows[from] = set
	}

	return flows, nil
}

// Agent returns the roster agent with the given name.
func (o *Orchestrator) Agent(name string) (*agent.Agent, bool) {
	a, ok := o.agents[name]
	return a, ok
}

// Agents returns the roster names in sorted order.
func (o *Orchestrator) Agents() []string { return append([]string(nil), o.names...) }

// Entry returns the entry agent.
func (o *Orchestrator) Entry() *agent.Agent { return o.entry }

// WriteLock returns the lock shared by every registry of the agency.
func (o *Orchestrator) WriteLock() *core.WriteLock { return o.lock }

// Permitted reports whether from may hand off to to.
func (o *Orchestrator) Permitted(from, to string) bool {
	if from == to {
		return false
	}
	if _, ok := o.agents[to]; !ok {
		return false
	}
	if o.flows == nil {
		return true
	}
	_, ok := o.flows[from][to]
	return ok
}

// Targets returns the agents from may hand off to, sorted.
func (o *Orchestrator) Targets(from string) []string {
	var out []string
	for _, n := range o.names {
		if o.Permitted(from, n) {
			out = append(out, n)
		}
	}
	return out
}

func (o *Orchestrator) aggregatorFor(issuer string) *agent.Agent {
	if name, ok := o.opts.Aggregators[issuer]; ok {
		return o.agents[name]
	}
	if o.opts.Aggregator != "" {
		return o.agents[o.opts.Aggregator]
	}
	return o.agents[issuer]
}

// Process runs one request to completion. The returned FinalResult is never
// nil. Limit exhaustion is reported through its Status (see
// core.FinalResult.Err); the error is non-nil only for infrastructure
// failures such as a failing decision capability or cancellation, in which
// case Status is core.StatusFailed.
func (o *Orchestrator) Process(ctx context.Context, input string) (*core.FinalResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.opts.ResetHistory {
		for _, a := range o.agents {
			a.ClearHistory()
		}
	}

	id := core.NewID()
	r := &request{
		o:      o,
		result: &core.FinalResult{RequestID: id},
		state:  core.StateRouting,
		logger: logging.WithRequest(o.logger, id),
	}

	start := time.Now()
	r.logger.Info("orchestrator.request.start", "entry", o.entry.Name())

	err := r.run(ctx, input)

	r.logger.Info(
		"orchestrator.request.done",
		"status", r.result.Status,
		"hops", r.result.HopsUsed,
		"final_agent", r.result.FinalAgent,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return r.result, err
}

// request is the state of one Process call.
type request struct {
	o      *Orchestrator
	result *core.FinalResult
	state  core.State
	hops   int
	logger logging.Logger
}

func (r *request) record(ag, kind, text string) {
	r.result.Transcript = append(r.result.Transcript, core.TranscriptEntry{
		Hop:       r.hops,
		State:     r.state,
		Agent:     ag,
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (r *request) transition(to core.State, ag string) {
	r.logger.Debug("orchestrator.state", "from", r.state, "to", to, "agent", ag, "hop", r.hops)
	r.state = to
}

func (r *request) finish(status core.Status, ag, response string) {
	r.result.Status = status
	r.result.Response = response
	r.result.FinalAgent = ag
	r.result.HopsUsed = r.hops

	if status == core.StatusDone {
		r.transition(core.StateDone, ag)
	} else {
		r.transition(core.StateFailed, ag)
	}
}

func (r *request) run(ctx context.Context, input string) error {
	o := r.o
	current := o.entry
	message := input

	r.record(current.Name(), core.EntryInput, input)

	for {
		out, err := current.Process(ctx, message, nil)
		if err != nil {
			resp := ""
			if out != nil {
				resp = out.Response
			}

			if errors.Is(err, core.ErrTurnLimitExceeded) {
				r.finish(core.StatusTurnLimitExceeded, current.Name(), resp)
				r.record(current.Name(), core.EntryFailure, err.Error())
				return nil
			}

			r.finish(core.StatusFailed, current.Name(), resp)
			r.record(current.Name(), core.EntryFailure, err.Error())
			return err
		}

		if out.Handoff == nil {
			r.finish(core.StatusDone, current.Name(), out.Response)
			r.record(current.Name(), core.EntryResponse, out.Response)
			return nil
		}

		h := out.Handoff
		r.hops++
		r.record(current.Name(), core.EntryHandoff, fmt.Sprintf("%v: %s", h.Targets, h.Message))

		r.logger.Info("orchestrator.hop", "hop", r.hops, "from", current.Name(), "targets", h.Targets, "fan_out", h.IsFanOut())

		if r.hops > o.opts.MaxHops {
			r.logger.Warn("orchestrator.hop.limit", "hops", r.hops, "max_hops", o.opts.MaxHops)
			r.finish(core.StatusHandoffLimitExceeded, current.Name(), out.Response)
			r.record(current.Name(), core.EntryFailure, core.ErrHandoffLimitExceeded.Error())
			return nil
		}

		valid, slots := r.filter(current.Name(), h.Targets)

		if len(valid) == 1 {
			// Dropped targets of a sequential handoff still surface as failures.
			for _, br := range slots {
				if br.Error != "" {
					r.result.BranchResults = append(r.result.BranchResults, br)
				}
			}

			next := o.agents[valid[0]]
			r.record(next.Name(), core.EntryInput, h.Message)
			current, message = next, h.Message
			continue
		}

		if len(valid) > 1 {
			r.transition(core.StateBranching, current.Name())
			o.fanOut(ctx, current, h.Targets, h.Message, slots, r)
		}

		r.result.BranchResults = append(r.result.BranchResults, slots...)

		r.transition(core.StateAggregating, current.Name())

		agg := o.aggregatorFor(current.Name())
		message = o.opts.AggregationPolicy.Compose(current.Name(), h.Message, slots)
		r.record(agg.Name(), core.EntryAggregate, message)

		r.transition(core.StateRouting, agg.Name())
		current = agg
	}
}

// filter splits targets into permitted ones and a slot list in target order.
// Slots of dropped targets are already filled with a failure.
func (r *request) filter(issuer string, targets []string) ([]string, []core.BranchResult) {
	slots := make([]core.BranchResult, len(targets))
	var valid []string

	for i, t := range targets {
		slots[i].Target = t
		if r.o.Permitted(issuer, t) {
			valid = append(valid, t)
			continue
		}

		slots[i].Error = ReasonNotPermitted
		r.record(issuer, core.EntryRejected, fmt.Sprintf("%s -> %s: %s", issuer, t, ReasonNotPermitted))
		r.logger.Warn("orchestrator.handoff.not_permitted", "from", issuer, "target", t)
	}

	return valid, slots
}

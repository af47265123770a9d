// Package agency provides a high-level façade that turns a declarative
// config.Definition into a running multi-agent agency. Most applications
// interact with this package by:
//  1. Loading a definition via config.Load (or building one in code)
//  2. Creating an Agency via New with a decision capability (model.Model)
//  3. Processing requests with Process, optionally grouped into sessions
//
// Routing, parallel branches and aggregation are delegated to
// orchestrator.Orchestrator; tools are resolved by name from builtin.Toolset.
// All defaults are in-memory and safe for local development and tests.
package agency

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/hupe1980/agency/agent"
	"github.com/hupe1980/agency/config"
	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/logging"
	"github.com/hupe1980/agency/model"
	"github.com/hupe1980/agency/orchestrator"
	"github.com/hupe1980/agency/session"
	"github.com/hupe1980/agency/tool/builtin"
)

// Options configures an Agency.
type Options struct {
	// SessionStore records the results of requests processed with a session
	// ID. Nil selects the store named by the definition.
	SessionStore core.SessionStore
	// Toolset resolves the tool names of the definition. Nil builds one from
	// the definition's tools section.
	Toolset *builtin.Toolset
	// Models overrides the decision capability per agent name.
	Models map[string]model.Model
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agency is a ready-to-use roster of agents behind one orchestrator.
type Agency struct {
	def    *config.Definition
	orch   *orchestrator.Orchestrator
	store  core.SessionStore
	tools  *builtin.Toolset
	logger logging.Logger
	closer io.Closer
}

// New builds the agency described by def. Every agent decides with m unless
// Options.Models names a capability for it.
func New(def *config.Definition, m model.Model, optFns ...func(o *Options)) (*Agency, error) {
	if def == nil {
		return nil, errors.New("definition must not be nil")
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	ag := &Agency{def: def, logger: opts.Logger, tools: opts.Toolset, store: opts.SessionStore}

	if ag.tools == nil {
		ag.tools = NewToolset(def)
	}

	if ag.store == nil {
		store, err := openSessionStore(def.Session)
		if err != nil {
			return nil, err
		}
		ag.store = store
		if c, ok := store.(io.Closer); ok {
			ag.closer = c
		}
	}

	policy, err := orchestrator.ParseAggregationPolicy(def.AggregationPolicy)
	if err != nil {
		return nil, err
	}

	roster := make([]*agent.Agent, 0, len(def.Agents))
	for _, ac := range def.Agents {
		a, err := ag.buildAgent(ac, m, opts.Models[ac.Name])
		if err != nil {
			return nil, err
		}
		roster = append(roster, a)
	}

	ag.orch, err = orchestrator.New(def.Entry, roster, func(o *orchestrator.Options) {
		o.MaxHops = def.MaxHops
		o.BranchTimeout = def.BranchTimeout
		o.Flows = def.FlowMap()
		o.Aggregator = def.Aggregator
		o.Aggregators = def.Aggregators()
		o.AggregationPolicy = policy
		o.ResetHistory = def.ResetHistory
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return ag, nil
}

func (ag *Agency) buildAgent(ac config.AgentConfig, fallback, override model.Model) (*agent.Agent, error) {
	m := fallback
	if override != nil {
		m = override
	}

	tools, err := ag.tools.Tools(ac.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
	}

	return agent.New(ac.Name, m, func(o *agent.Options) {
		o.Description = ac.Description
		if ac.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(ac.Instruction)
		}
		o.HandoffTargets = handoffTargets(ag.def, ac.Name)
		o.Tools = tools
		o.MaxToolCalls = ag.def.ToolCallBudget(ac.Name)
		o.Logger = ag.logger
	})
}

// handoffTargets returns the targets advertised to name: its flows, or every
// other agent when the definition has no flows.
func handoffTargets(def *config.Definition, name string) []string {
	if flows := def.FlowMap(); flows != nil {
		return flows[name]
	}

	targets := make([]string, 0, len(def.Agents))
	for _, a := range def.Agents {
		if a.Name != name {
			targets = append(targets, a.Name)
		}
	}
	return targets
}

// NewToolset builds the builtin toolset configured by def. A workdir roots
// the file tools on the OS filesystem; otherwise files live in memory.
func NewToolset(def *config.Definition) *builtin.Toolset {
	return builtin.NewToolset(func(o *builtin.Options) {
		if def.Tools.Workdir != "" {
			o.Fs = afero.NewBasePathFs(afero.NewOsFs(), def.Tools.Workdir)
		}
		if def.Tools.SharedLog != "" {
			o.SharedLogPath = def.Tools.SharedLog
		}
		o.Shell = append(o.Shell, func(so *builtin.ShellOptions) {
			so.WorkDir = def.Tools.Workdir
			if def.Tools.ShellTimeout > 0 {
				so.Timeout = def.Tools.ShellTimeout
			}
		})
	})
}

func openSessionStore(cfg config.SessionConfig) (core.SessionStore, error) {
	switch cfg.Store {
	case "", "memory":
		return session.NewInMemoryStore(), nil
	case "bolt":
		return session.NewBoltStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// Process runs input through the agency. With a non-empty sessionID the
// result is appended to that session, also when the request failed.
// Errors follow orchestrator.Orchestrator.Process.
func (ag *Agency) Process(ctx context.Context, sessionID, input string) (*core.FinalResult, error) {
	res, err := ag.orch.Process(ctx, input)

	if sessionID != "" {
		if serr := ag.store.AppendResult(sessionID, *res); serr != nil {
			ag.logger.Error("agency.session.append", "session", sessionID, "error", serr.Error())
			return res, errors.Join(err, fmt.Errorf("record result in session %s: %w", sessionID, serr))
		}
	}

	return res, err
}

// Session returns the recorded results of a session.
func (ag *Agency) Session(id string) (*core.Session, error) { return ag.store.Get(id) }

// Definition returns the definition the agency was built from.
func (ag *Agency) Definition() *config.Definition { return ag.def }

// Orchestrator exposes the underlying orchestrator.
func (ag *Agency) Orchestrator() *orchestrator.Orchestrator { return ag.orch }

// Toolset exposes the builtin toolset shared by every agent.
func (ag *Agency) Toolset() *builtin.Toolset { return ag.tools }

// Agent returns the named agent.
func (ag *Agency) Agent(name string) (*agent.Agent, bool) { return ag.orch.Agent(name) }

// Close releases the session store opened by New.
func (ag *Agency) Close() error {
	if ag.closer == nil {
		return nil
	}
	return ag.closer.Close()
}

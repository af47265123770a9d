// Package config loads declarative agency definitions.
//
// A definition names the agents, their tools and the communication flows
// between them plus the routing limits. Files are YAML (or anything viper
// reads); every scalar can be overridden through AGENCY_* environment
// variables, e.g. AGENCY_MAX_HOPS=5 or AGENCY_PROVIDER_MODEL=gpt-4o.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Definition is a complete agency definition.
type Definition struct {
	Name   string        `mapstructure:"name" json:"name" yaml:"name"`
	Entry  string        `mapstructure:"entry" json:"entry" yaml:"entry"`
	Agents []AgentConfig `mapstructure:"agents" json:"agents" yaml:"agents"`
	// Flows is the directed communication graph. Nil means every agent may
	// hand off to every other one.
	Flows []FlowConfig `mapstructure:"flows" json:"flows,omitempty" yaml:"flows,omitempty"`

	MaxHops           int           `mapstructure:"max_hops" json:"max_hops" yaml:"max_hops"`
	BranchTimeout     time.Duration `mapstructure:"branch_timeout" json:"branch_timeout" yaml:"branch_timeout"`
	MaxToolCalls      int           `mapstructure:"max_tool_calls" json:"max_tool_calls" yaml:"max_tool_calls"`
	Aggregator        string        `mapstructure:"aggregator" json:"aggregator,omitempty" yaml:"aggregator,omitempty"`
	AggregationPolicy string        `mapstructure:"aggregation_policy" json:"aggregation_policy" yaml:"aggregation_policy"`
	ResetHistory      bool          `mapstructure:"reset_history" json:"reset_history" yaml:"reset_history"`

	Provider ProviderConfig `mapstructure:"provider" json:"provider" yaml:"provider"`
	Tools    ToolsConfig    `mapstructure:"tools" json:"tools" yaml:"tools"`
	Session  SessionConfig  `mapstructure:"session" json:"session" yaml:"session"`
	Log      LogConfig      `mapstructure:"log" json:"log" yaml:"log"`
}

// AgentConfig describes one agent.
type AgentConfig struct {
	Name        string   `mapstructure:"name" json:"name" yaml:"name"`
	Description string   `mapstructure:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Instruction string   `mapstructure:"instruction" json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Tools       []string `mapstructure:"tools" json:"tools,omitempty" yaml:"tools,omitempty"`
	// MaxToolCalls overrides the agency-wide per-turn budget when > 0.
	MaxToolCalls int `mapstructure:"max_tool_calls" json:"max_tool_calls,omitempty" yaml:"max_tool_calls,omitempty"`
	// Aggregator receives this agent's fan-out results instead of itself.
	Aggregator string `mapstructure:"aggregator" json:"aggregator,omitempty" yaml:"aggregator,omitempty"`
	// Model overrides the provider model for this agent.
	Model string `mapstructure:"model" json:"model,omitempty" yaml:"model,omitempty"`
}

// FlowConfig lists the agents From may hand off to.
type FlowConfig struct {
	From string   `mapstructure:"from" json:"from" yaml:"from"`
	To   []string `mapstructure:"to" json:"to" yaml:"to"`
}

// ProviderConfig selects the decision capability.
type ProviderConfig struct {
	Name      string `mapstructure:"name" json:"name" yaml:"name"` // anthropic | openai
	Model     string `mapstructure:"model" json:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" json:"-" yaml:"-"`
	BaseURL   string `mapstructure:"base_url" json:"base_url,omitempty" yaml:"base_url,omitempty"`
	MaxTokens int    `mapstructure:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	// Workdir roots the file tools and run_command. Empty keeps files in memory.
	Workdir      string        `mapstructure:"workdir" json:"workdir,omitempty" yaml:"workdir,omitempty"`
	SharedLog    string        `mapstructure:"shared_log" json:"shared_log" yaml:"shared_log"`
	ShellTimeout time.Duration `mapstructure:"shell_timeout" json:"shell_timeout" yaml:"shell_timeout"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Store string `mapstructure:"store" json:"store" yaml:"store"` // memory | bolt
	Path  string `mapstructure:"path" json:"path,omitempty" yaml:"path,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"` // text | json
}

// Known names accepted by Validate.
var (
	Providers           = []string{"anthropic", "openai"}
	SessionStores       = []string{"memory", "bolt"}
	AggregationPolicies = []string{"verbatim", "redacted"}
)

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("max_hops", 10)
	v.SetDefault("branch_timeout", "2m")
	v.SetDefault("max_tool_calls", 25)
	v.SetDefault("aggregation_policy", "verbatim")
	v.SetDefault("reset_history", false)

	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.max_tokens", 4096)

	v.SetDefault("tools.workdir", "")
	v.SetDefault("tools.shared_log", "/agency/shared.log")
	v.SetDefault("tools.shell_timeout", "30s")

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENCY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads a definition file, applies AGENCY_* overrides and validates it.
func Load(path string) (*Definition, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading definition from %s: %w", path, err)
	}

	return decode(v)
}

// Parse reads a definition in the given format ("yaml", "json", ...) from data.
func Parse(data []byte, format string) (*Definition, error) {
	v := newViper()

	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parsing definition: %w", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Definition, error) {
	def := &Definition{}
	if err := v.Unmarshal(def); err != nil {
		return nil, fmt.Errorf("unmarshaling definition: %w", err)
	}

	// Expand ${VAR} references
	def.Provider.APIKey = os.ExpandEnv(def.Provider.APIKey)
	def.Tools.Workdir = os.ExpandEnv(def.Tools.Workdir)
	def.Session.Path = os.ExpandEnv(def.Session.Path)

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return def, nil
}

// Validate reports every structural problem of the definition at once.
// Zero values select defaults and are accepted.
func (d *Definition) Validate() error {
	var errs []error

	names := make(map[string]struct{}, len(d.Agents))
	for i, a := range d.Agents {
		switch {
		case strings.TrimSpace(a.Name) == "":
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
			continue
		case a.MaxToolCalls < 0:
			errs = append(errs, fmt.Errorf("agent %s: max_tool_calls must not be negative", a.Name))
		}
		if _, dup := names[a.Name]; dup {
			errs = append(errs, fmt.Errorf("agent %s: defined more than once", a.Name))
		}
		names[a.Name] = struct{}{}
	}

	known := func(n string) bool { _, ok := names[n]; return ok }

	if len(d.Agents) == 0 {
		errs = append(errs, errors.New("at least one agent is required"))
	}
	if d.Entry == "" {
		errs = append(errs, errors.New("entry is required"))
	} else if !known(d.Entry) {
		errs = append(errs, fmt.Errorf("entry %q is not a defined agent", d.Entry))
	}

	for _, f := range d.Flows {
		if !known(f.From) {
			errs = append(errs, fmt.Errorf("flow from unknown agent %q", f.From))
		}
		for _, to := range f.To {
			switch {
			case !known(to):
				errs = append(errs, fmt.Errorf("flow %s -> %s: unknown agent %q", f.From, to, to))
			case to == f.From:
				errs = append(errs, fmt.Errorf("flow %s -> %s: an agent cannot hand off to itself", f.From, to))
			}
		}
	}

	if d.Aggregator != "" && !known(d.Aggregator) {
		errs = append(errs, fmt.Errorf("aggregator %q is not a defined agent", d.Aggregator))
	}
	for _, a := range d.Agents {
		if a.Aggregator != "" && !known(a.Aggregator) {
			errs = append(errs, fmt.Errorf("agent %s: aggregator %q is not a defined agent", a.Name, a.Aggregator))
		}
	}

	if d.MaxHops < 0 {
		errs = append(errs, errors.New("max_hops must not be negative"))
	}
	if d.BranchTimeout < 0 {
		errs = append(errs, errors.New("branch_timeout must not be negative"))
	}
	if d.MaxToolCalls < 0 {
		errs = append(errs, errors.New("max_tool_calls must not be negative"))
	}

	if !oneOf(d.AggregationPolicy, AggregationPolicies) {
		errs = append(errs, fmt.Errorf("aggregation_policy %q must be one of %v", d.AggregationPolicy, AggregationPolicies))
	}
	if !oneOf(d.Provider.Name, Providers) {
		errs = append(errs, fmt.Errorf("provider.name %q must be one of %v", d.Provider.Name, Providers))
	}
	if !oneOf(d.Session.Store, SessionStores) {
		errs = append(errs, fmt.Errorf("session.store %q must be one of %v", d.Session.Store, SessionStores))
	}
	if d.Session.Store == "bolt" && d.Session.Path == "" {
		errs = append(errs, errors.New("session.path is required for the bolt store"))
	}

	return errors.Join(errs...)
}

// oneOf reports whether s is empty (the default) or one of allowed.
func oneOf(s string, allowed []string) bool {
	if s == "" {
		return true
	}
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// FlowMap returns the flows keyed by issuing agent, nil when no flows are
// defined.
func (d *Definition) FlowMap() map[string][]string {
	if d.Flows == nil {
		return nil
	}

	m := make(map[string][]string, len(d.Flows))
	for _, f := range d.Flows {
		m[f.From] = append(m[f.From], f.To...)
	}
	return m
}

// Aggregators returns the per-agent aggregator overrides.
func (d *Definition) Aggregators() map[string]string {
	m := map[string]string{}
	for _, a := range d.Agents {
		if a.Aggregator != "" {
			m[a.Name] = a.Aggregator
		}
	}
	return m
}

// Agent returns the named agent definition.
func (d *Definition) Agent(name string) (AgentConfig, bool) {
	for _, a := range d.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// ToolCallBudget returns the per-turn budget of the named agent.
func (d *Definition) ToolCallBudget(name string) int {
	if a, ok := d.Agent(name); ok && a.MaxToolCalls > 0 {
		return a.MaxToolCalls
	}
	return d.MaxToolCalls
}

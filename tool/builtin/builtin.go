// Package builtin provides the concrete tools agency ships with: file access
// on an afero filesystem, a shared append-only log and an exclusive shell.
// Tools are looked up by name so declarative agency definitions can refer to them.
package builtin

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agency/tool"
)

// Options configures a Toolset.
type Options struct {
	// Fs backs the file tools and the shared log. Defaults to an in-memory fs.
	Fs afero.Fs
	// SharedLogPath is the shared log location on Fs.
	SharedLogPath string
	// Runner executes run_command; defaults to ExecRunner.
	Runner CommandRunner
	// Shell configures run_command.
	Shell []func(o *ShellOptions)
}

// Toolset builds tool instances by name. Stateful resources (the shared log,
// the shell semaphore) are created once and shared by every tool it returns.
type Toolset struct {
	opts     Options
	log      *SharedLog
	shellSem *semaphore.Weighted
	ctors    map[string]func() tool.Tool
}

// NewToolset creates a Toolset.
func NewToolset(optFns ...func(o *Options)) *Toolset {
	opts := Options{SharedLogPath: "/agency/shared.log"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewMemMapFs()
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}

	ts := &Toolset{
		opts:     opts,
		log:      NewSharedLog(opts.Fs, opts.SharedLogPath),
		shellSem: semaphore.NewWeighted(1),
	}

	ts.ctors = map[string]func() tool.Tool{
		"read_file":         func() tool.Tool { return NewReadFileTool(ts.opts.Fs) },
		"write_file":        func() tool.Tool { return NewWriteFileTool(ts.opts.Fs) },
		"edit_file":         func() tool.Tool { return NewEditFileTool(ts.opts.Fs) },
		"shared_log_append": func() tool.Tool { return NewSharedLogAppendTool(ts.log) },
		"state_manager":     func() tool.Tool { return tool.NewStateManagerTool() },
		"run_command": func() tool.Tool {
			shellOpts := append([]func(o *ShellOptions){func(o *ShellOptions) { o.Semaphore = ts.shellSem }}, ts.opts.Shell...)
			return NewRunCommandTool(ts.opts.Runner, shellOpts...)
		},
	}

	return ts
}

// Tool returns a new instance of the named tool.
func (ts *Toolset) Tool(name string) (tool.Tool, error) {
	ctor, ok := ts.ctors[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin tool %q", name)
	}
	return ctor(), nil
}

// Tools resolves several names at once.
func (ts *Toolset) Tools(names ...string) ([]tool.Tool, error) {
	out := make([]tool.Tool, 0, len(names))
	for _, n := range names {
		t, err := ts.Tool(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Has reports whether name is a known builtin tool.
func (ts *Toolset) Has(name string) bool {
	_, ok := ts.ctors[name]
	return ok
}

// Names lists available builtin tools in sorted order.
func (ts *Toolset) Names() []string {
	names := make([]string, 0, len(ts.ctors))
	for n := range ts.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SharedLog returns the log shared by every shared_log_append instance.
func (ts *Toolset) SharedLog() *SharedLog { return ts.log }

// Fs returns the filesystem backing the file tools.
func (ts *Toolset) Fs() afero.Fs { return ts.opts.Fs }

package builtin

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/tool"
)

// CommandRunner executes shell commands.
type CommandRunner interface {
	RunShell(ctx context.Context, workDir string, command string) ([]byte, error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// RunShell executes a command through "sh -c" and returns combined output.
func (ExecRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// ShellOptions configures the run_command tool.
type ShellOptions struct {
	WorkDir   string
	Timeout   time.Duration
	MaxOutput int
	// Semaphore guards the shell channel; tools sharing one channel share it.
	Semaphore *semaphore.Weighted
}

// RunCommandArgs are the arguments of the run_command tool.
type RunCommandArgs struct {
	Command string `json:"command" description:"Shell command to execute"`
}

// NewRunCommandTool returns the exclusive run_command tool. Only one command
// runs at a time across the whole agency; concurrent callers get RESOURCE_BUSY.
func NewRunCommandTool(runner CommandRunner, optFns ...func(o *ShellOptions)) *tool.Exclusive {
	opts := ShellOptions{
		Timeout:   30 * time.Second,
		MaxOutput: 16 * 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if runner == nil {
		runner = ExecRunner{}
	}

	inner := tool.NewFunctionToolFromStruct(
		"run_command",
		"Run a shell command and return its combined output. Only one command may run at a time.",
		RunCommandArgs{},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			command := stringArg(args, "command")
			if command == "" {
				return nil, fmt.Errorf("command must not be empty")
			}

			ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
			defer cancel()

			out, err := runner.RunShell(ctx, opts.WorkDir, command)
			text := truncate(string(out), opts.MaxOutput)

			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("command timed out after %s: %s", opts.Timeout, text)
			}
			if err != nil {
				return nil, fmt.Errorf("command failed: %v: %s", err, text)
			}

			tc.LogDebug("tool.run_command.done", "bytes", len(out))

			return text, nil
		},
	)

	return tool.NewExclusive(inner, opts.Semaphore)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n[output truncated]"
}

package agent

import (
	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the registry's tool state.
type Provider interface {
	Instruction(*core.ToolContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.ToolContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(tc *core.ToolContext) (string, error) { return f(tc) }

// Instruction represents either a static instruction string or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.ToolContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(tc *core.ToolContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(tc)
	}
	return i.text, nil
}

// Render resolves the instruction and expands template markers against the
// tool context state, e.g. "Focus on {{.topic}}".
func (i Instruction) Render(tc *core.ToolContext) (string, error) {
	text, err := i.Resolve(tc)
	if err != nil {
		return "", err
	}
	return util.RenderTemplate(text, tc.State())
}

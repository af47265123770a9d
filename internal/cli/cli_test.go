package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agency/config"
	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/model"
	"github.com/hupe1980/agency/tool"
)

const definition = `
entry: Coder
agents:
  - name: Coder
    tools: [read_file, shared_log_append]
  - name: Planner
  - name: Critic
    max_tool_calls: 3
flows:
  - from: Coder
    to: [Planner, Critic]
log:
  level: error
`

// scripted answers for the review agency: Coder fans out and merges.
func scripted(config.ProviderConfig) (model.Model, error) {
	return model.NewScriptedModel("cli").Otherwise(model.Step{Fn: func(req model.Request) (model.Action, error) {
		switch req.Agent {
		case "Coder":
			if strings.HasPrefix(req.LastUserText(), "Results of parallel handoff") {
				return model.Final("merged"), nil
			}
			return model.Call(tool.HandoffToolName, map[string]any{
				"targets": []any{"Planner", "Critic"},
				"message": "review",
			}), nil
		default:
			return model.Final(req.Agent + " ok"), nil
		}
	}}), nil
}

func writeDefinition(t *testing.T, extra string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agency.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definition+extra), 0o644))

	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(scripted)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestRun_Text(t *testing.T) {
	out, err := execute(t, "run", "-f", writeDefinition(t, ""), "--", "ship", "it")
	require.NoError(t, err)

	assert.Contains(t, out, "answered")
	assert.Contains(t, out, "merged")
	assert.Contains(t, out, "[1] Planner ok")
	assert.Contains(t, out, "[2] Critic ok")
}

func TestRun_JSON(t *testing.T) {
	out, err := execute(t, "run", "-f", writeDefinition(t, ""), "-o", "json", "--", "ship it")
	require.NoError(t, err)

	var res core.FinalResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	assert.Equal(t, core.StatusDone, res.Status)
	assert.Equal(t, "merged", res.Response)
	assert.Len(t, res.BranchResults, 2)
}

func TestRun_HopLimit(t *testing.T) {
	out, err := execute(t, "run", "-f", writeDefinition(t, ""), "--max-hops", "0", "--", "ship it")
	require.Error(t, err)

	assert.ErrorIs(t, err, core.ErrHandoffLimitExceeded)
	assert.Contains(t, out, "failed: handoff_limit_exceeded")
}

func TestRun_NoPrompt(t *testing.T) {
	_, err := execute(t, "run", "-f", writeDefinition(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt required")
}

func TestRun_UnknownOutput(t *testing.T) {
	_, err := execute(t, "run", "-f", writeDefinition(t, ""), "-o", "xml", "--", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
}

func TestValidate(t *testing.T) {
	path := writeDefinition(t, "")

	out, err := execute(t, "validate", "-f", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Coder *")
	assert.Contains(t, out, "Critic,Planner")
	assert.Contains(t, out, "read_file,shared_log_append,handoff")
	assert.Contains(t, out, "definition valid: 3 agents")

	out, err = execute(t, "validate", "-f", path, "-o", "yaml")
	require.NoError(t, err)

	var views []agentView
	require.NoError(t, yaml.Unmarshal([]byte(out), &views))
	require.Len(t, views, 3)
	assert.True(t, views[0].Entry)
	assert.Equal(t, "Critic", views[2].Name)
	assert.Equal(t, 3, views[2].MaxCalls)
	assert.Equal(t, "Critic", views[2].Aggregator)
}

func TestValidate_UnknownTool(t *testing.T) {
	_, err := execute(t, "validate", "-f", writeDefinition(t, "")+"missing")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(definition, "read_file", "rm_rf", 1)), 0o644))

	_, err = execute(t, "validate", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown builtin tool "rm_rf"`)
}

func TestTools(t *testing.T) {
	out, err := execute(t, "tools")
	require.NoError(t, err)

	for _, name := range []string{"read_file", "write_file", "edit_file", "shared_log_append", "run_command", "state_manager"} {
		assert.Contains(t, out, name)
	}
}

func TestSessions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")
	path := writeDefinition(t, "session:\n  store: bolt\n  path: "+db+"\n")

	_, err := execute(t, "run", "-f", path, "--session", "s1", "--", "ship it")
	require.NoError(t, err)

	out, err := execute(t, "sessions", "list", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "s1\n", out)

	out, err = execute(t, "sessions", "show", "s1", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "answered")

	_, err = execute(t, "sessions", "delete", "s1", "-f", path)
	require.NoError(t, err)

	_, err = execute(t, "sessions", "show", "s1", "-f", path)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestSessions_MemoryStore(t *testing.T) {
	_, err := execute(t, "sessions", "list", "-f", writeDefinition(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.store: bolt")
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ProviderConfig{Name: "anthropic", APIKey: "k", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.Equal(t, "claude-sonnet-4-5", m.Info().Name)

	m, err = NewModel(config.ProviderConfig{Name: "openai", APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)
	assert.Equal(t, "gpt-4o", m.Info().Name)

	_, err = NewModel(config.ProviderConfig{Name: "llama"})
	require.Error(t, err)
}

func TestAgentModels(t *testing.T) {
	def := &config.Definition{
		Provider: config.ProviderConfig{Name: "openai", APIKey: "k"},
		Agents:   []config.AgentConfig{{Name: "A", Model: "gpt-4o"}, {Name: "B"}},
	}

	models, err := agentModels(def, NewModel)
	require.NoError(t, err)

	require.Len(t, models, 1)
	assert.Equal(t, "gpt-4o", models["A"].Info().Name)
}

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agency/core"
)

func TestCompose(t *testing.T) {
	results := []core.BranchResult{
		{Target: "Planner", Success: true, Response: "plan"},
		{Target: "Critic", Error: "timeout"},
		{Target: "Tester", Error: "panic: index out of range"},
		{Target: "Reviewer", Error: "agent Reviewer: decide: 500 upstream"},
	}

	verbatim := AggregationVerbatim.Compose("Coder", "review", results)
	assert.Equal(t, `Results of parallel handoff from Coder ("review"):
[1] Planner: success
plan
[2] Critic: failed
timeout
[3] Tester: failed
panic: index out of range
[4] Reviewer: failed
agent Reviewer: decide: 500 upstream`, verbatim)

	redacted := AggregationRedacted.Compose("Coder", "review", results)
	assert.Contains(t, redacted, "[2] Critic: failed\nbranch failed: timeout")
	assert.Contains(t, redacted, "[3] Tester: failed\nbranch failed: internal error")
	assert.Contains(t, redacted, "[4] Reviewer: failed\nbranch failed: error")
	assert.NotContains(t, redacted, "upstream")

	assert.Contains(t, AggregationVerbatim.Compose("Coder", "x", nil), "no branches ran")
}

func TestParseAggregationPolicy(t *testing.T) {
	p, err := ParseAggregationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, AggregationVerbatim, p)

	p, err = ParseAggregationPolicy(" Redacted ")
	require.NoError(t, err)
	assert.Equal(t, AggregationRedacted, p)

	_, err = ParseAggregationPolicy("summarize")
	assert.Error(t, err)
}

func TestBranchLabel(t *testing.T) {
	assert.Equal(t, "Coder/Planner#0", branchLabel("Coder", "Planner", 0))
}

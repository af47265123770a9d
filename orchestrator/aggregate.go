package orchestrator

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agency/core"
)

// AggregationPolicy controls how branch failures appear in the aggregation
// message handed to the aggregator agent.
type AggregationPolicy string

const (
	// AggregationVerbatim passes branch errors through unchanged.
	AggregationVerbatim AggregationPolicy = "verbatim"
	// AggregationRedacted replaces branch errors with their error class.
	AggregationRedacted AggregationPolicy = "redacted"
)

func (p AggregationPolicy) valid() bool {
	return p == AggregationVerbatim || p == AggregationRedacted
}

// ParseAggregationPolicy parses a policy name; empty selects verbatim.
func ParseAggregationPolicy(s string) (AggregationPolicy, error) {
	p := AggregationPolicy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return AggregationVerbatim, nil
	}
	if !p.valid() {
		return "", fmt.Errorf("unknown aggregation policy %q", s)
	}
	return p, nil
}

// Compose renders the aggregation message for a fan-out issued by issuer.
// Results are listed in the order given, which is the original target order.
//
//	Results of parallel handoff from Coder ("parallel task"):
//	[1] Planner: success
//	plan text
//	[2] Critic: failed
//	timeout
func (p AggregationPolicy) Compose(issuer, message string, results []core.BranchResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Results of parallel handoff from %s (%q):", issuer, message)

	if len(results) == 0 {
		sb.WriteString("\nno branches ran")
		return sb.String()
	}

	for i, br := range results {
		status := "success"
		text := br.Response
		if !br.Success {
			status = "failed"
			text = p.errorText(br.Error)
		}

		fmt.Fprintf(&sb, "\n[%d] %s: %s\n%s", i+1, br.Target, status, text)
	}

	return sb.String()
}

// errorText applies the policy to one branch error.
func (p AggregationPolicy) errorText(err string) string {
	if p != AggregationRedacted {
		return err
	}

	switch {
	case err == core.ErrBranchTimeout.Error(),
		err == core.ErrTurnLimitExceeded.Error(),
		err == ReasonNotPermitted:
		return "branch failed: " + err
	case strings.HasPrefix(err, "panic:"):
		return "branch failed: internal error"
	default:
		return "branch failed: error"
	}
}

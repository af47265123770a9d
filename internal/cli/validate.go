package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agency"
	"github.com/hupe1980/agency/model"
)

// agentView is one row of the validated communication graph.
type agentView struct {
	Name       string   `json:"name" yaml:"name"`
	Entry      bool     `json:"entry,omitempty" yaml:"entry,omitempty"`
	Tools      []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Targets    []string `json:"targets,omitempty" yaml:"targets,omitempty"`
	Aggregator string   `json:"aggregator" yaml:"aggregator"`
	MaxCalls   int      `json:"max_tool_calls" yaml:"max_tool_calls"`
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a definition and print its communication graph",
		Long: `Validate the agency definition without contacting a provider.

Every agent, tool name and flow is resolved exactly as "run" would.`,
		Example: `  agency validate -f review.yaml
  agency validate -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := root.load()
			if err != nil {
				return err
			}

			// Never consulted: validation builds the roster without running it.
			ag, err := agency.New(def, model.NewScriptedModel("validate"))
			if err != nil {
				return err
			}
			defer ag.Close()

			views := make([]agentView, 0, len(def.Agents))
			for _, ac := range def.Agents {
				a, _ := ag.Agent(ac.Name)

				agg := ac.Aggregator
				if agg == "" {
					agg = def.Aggregator
				}
				if agg == "" {
					agg = ac.Name
				}

				views = append(views, agentView{
					Name:       ac.Name,
					Entry:      ac.Name == def.Entry,
					Tools:      a.Registry().Names(),
					Targets:    a.HandoffTargets(),
					Aggregator: agg,
					MaxCalls:   def.ToolCallBudget(ac.Name),
				})
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, root.output, views); ok || err != nil {
				return err
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				name := v.Name
				if v.Entry {
					name += " *"
				}
				rows = append(rows, []string{
					name,
					orDash(strings.Join(v.Tools, ",")),
					orDash(strings.Join(v.Targets, ",")),
					v.Aggregator,
					fmt.Sprint(v.MaxCalls),
				})
			}

			if err := printTable(out, []string{"AGENT", "TOOLS", "TARGETS", "AGGREGATOR", "MAX CALLS"}, rows); err != nil {
				return err
			}

			okColor.Fprintf(out, "definition valid: %d agents, max %d hops, branch timeout %s\n",
				len(views), def.MaxHops, def.BranchTimeout)

			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

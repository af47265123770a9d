package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/agency/tool/builtin"
)

type toolView struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

func newToolsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the builtin tools agents can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts := builtin.NewToolset()

			views := make([]toolView, 0, len(ts.Names()))
			for _, n := range ts.Names() {
				t, err := ts.Tool(n)
				if err != nil {
					return err
				}
				views = append(views, toolView{Name: n, Description: t.Description()})
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, root.output, views); ok || err != nil {
				return err
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.Name, v.Description})
			}
			return printTable(out, []string{"NAME", "DESCRIPTION"}, rows)
		},
	}
}

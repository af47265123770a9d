package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agency/session"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect sessions recorded in the bolt session store",
	}

	cmd.AddCommand(
		newSessionsListCmd(root),
		newSessionsShowCmd(root),
		newSessionsDeleteCmd(root),
	)

	return cmd
}

// openStore opens the persistent session store of the definition.
func (o *rootOptions) openStore() (*session.BoltStore, error) {
	def, err := o.load()
	if err != nil {
		return nil, err
	}
	if def.Session.Store != "bolt" {
		return nil, errors.New("sessions are only persisted with session.store: bolt")
	}
	return session.NewBoltStore(def.Session.Path)
}

func newSessionsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, root.output, ids); ok || err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}

func newSessionsShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the results recorded in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := store.Get(args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, root.output, sess); ok || err != nil {
				return err
			}

			results := sess.GetResults()
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.RequestID, r.Summary(), r.FinalAgent, fmt.Sprint(r.HopsUsed)})
			}
			return printTable(out, []string{"REQUEST", "STATUS", "AGENT", "HOPS"}, rows)
		},
	}
}

func newSessionsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(args[0]); err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}

			okColor.Fprintf(cmd.OutOrStdout(), "session %s deleted\n", args[0])
			return nil
		},
	}
}

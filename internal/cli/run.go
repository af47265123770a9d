package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agency"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		sessionID string
		provider  string
		modelName string
		maxHops   int
	)

	cmd := &cobra.Command{
		Use:   "run -- <prompt>",
		Short: "Process one request",
		Long: `Load the agency definition and route a single request through it.

Everything after "--" is treated as the prompt text. The command fails when
the request ends without an answer, e.g. because a limit was exceeded.`,
		Example: `  agency run -- "Add a health endpoint"
  agency run -f review.yaml --session s1 -- "Review main.go"
  agency run --provider openai --model gpt-4o -o json -- "Plan the migration"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("prompt required: agency run -- \"your prompt here\"")
			}
			prompt := strings.Join(args, " ")

			def, err := root.load()
			if err != nil {
				return err
			}

			if provider != "" {
				def.Provider.Name = provider
			}
			if modelName != "" {
				def.Provider.Model = modelName
			}
			if cmd.Flags().Changed("max-hops") {
				def.MaxHops = maxHops
			}
			if err := def.Validate(); err != nil {
				return err
			}

			logger, err := root.logger(def)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			m, err := root.newModel(def.Provider)
			if err != nil {
				return err
			}
			models, err := agentModels(def, root.newModel)
			if err != nil {
				return err
			}

			ag, err := agency.New(def, m, func(o *agency.Options) {
				o.Models = models
				o.Logger = logger
			})
			if err != nil {
				return err
			}
			defer ag.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			res, err := ag.Process(ctx, sessionID, prompt)
			if err != nil {
				return fmt.Errorf("processing request: %w", err)
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, root.output, res); err != nil {
				return err
			} else if !ok {
				printResult(out, res)
			}

			if !res.Answered() {
				return fmt.Errorf("request %s: %w", res.RequestID, res.Err())
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Record the result in this session")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider override: anthropic|openai")
	cmd.Flags().StringVar(&modelName, "model", "", "Model override for every agent without its own model")
	cmd.Flags().IntVar(&maxHops, "max-hops", 0, "Routing budget override")

	return cmd
}

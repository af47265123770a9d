// Package cli implements the agency command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agency/config"
	"github.com/hupe1980/agency/logging"
)

// rootOptions holds the persistent flags and injectable dependencies shared
// by every subcommand.
type rootOptions struct {
	file     string
	output   string
	logLevel string
	newModel ModelFactory
}

// NewRootCmd creates the top-level agency command with all subcommands.
func NewRootCmd() *cobra.Command {
	return newRootCmd(NewModel)
}

func newRootCmd(newModel ModelFactory) *cobra.Command {
	opts := &rootOptions{newModel: newModel}

	cmd := &cobra.Command{
		Use:   "agency",
		Short: "Run declarative multi-agent agencies",
		Long: `Agency routes a request through a roster of AI agents that hand work
to each other, fan out to parallel branches and aggregate the results.

Agents, tools and communication flows are declared in a YAML definition.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "text", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unknown output format %q: want text|json|yaml", opts.output)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "agency.yaml", "Agency definition file")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format: text|json|yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides the definition)")

	cmd.AddCommand(
		newRunCmd(opts),
		newValidateCmd(opts),
		newToolsCmd(opts),
		newSessionsCmd(opts),
	)

	return cmd
}

// load reads the definition named by --file.
func (o *rootOptions) load() (*config.Definition, error) {
	return config.Load(o.file)
}

// logger builds the zap logger configured by the definition and --log-level.
func (o *rootOptions) logger(def *config.Definition) (*logging.ZapAdapter, error) {
	lvl := def.Log.Level
	if o.logLevel != "" {
		lvl = o.logLevel
	}

	level, err := logging.ParseLevel(lvl)
	if err != nil {
		return nil, err
	}

	return logging.NewZapLogger(level, def.Log.Format != "json")
}

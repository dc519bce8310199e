package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/tunnelsync/internal/agent"
	"github.com/alekspetrov/tunnelsync/internal/logging"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single reconciliation pass",
		Long: `Run one pass and print its result as JSON.

The exit status is 0 whenever a result was printed, including failed
passes. Callers read the "action" and "error" fields:

  action=update     the config file was rewritten, change marker written
  action=noChange   the config file already holds the tunnel URL
  action=error      see "error": No URL found, URL Unreachable,
                    Config key not found, Config write failed,
                    Invalid configuration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// runPass loads the configuration, runs one pass and prints the result.
// Configuration problems are reported as a result, not as an error.
func runPass(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		logging.Error("cannot run pass", "error", err)
		return printResult(out, agent.ErrorResult(agent.ReasonInvalidConfig))
	}

	closer, err := logging.Init(cfg.Logging)
	if err != nil {
		logging.Error("failed to initialize logging", "error", err)
		return printResult(out, agent.ErrorResult(agent.ReasonInvalidConfig))
	}
	defer closer.Close()

	a, err := agent.New(cfg, logging.Logger())
	if err != nil {
		logging.Error("cannot run pass", "error", err)
		return printResult(out, agent.ErrorResult(agent.ReasonInvalidConfig))
	}

	return printResult(out, a.Run(ctx))
}

// printResult writes r as a single JSON line
func printResult(out io.Writer, r *agent.Result) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

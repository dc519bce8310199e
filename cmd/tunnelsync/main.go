package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/tunnelsync/internal/config"
)

var version = "0.1.0"

// cfgFile is the --config flag shared by every subcommand
var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tunnelsync",
		Short: "Keep a webhook URL in sync with an ephemeral tunnel",
		Long: `tunnelsync finds the public URL of a quick tunnel in the tunnel
process log, checks that it answers, and points a KEY=VALUE field of a
configuration file (a docker-compose.yml by default) at it.

Every pass prints one JSON object on stdout:
  {"success":true,"action":"update","url":"https://abc.trycloudflare.com/"}

Run without a subcommand to perform a single pass, same as 'tunnelsync run'.

Examples:
  tunnelsync                             # One pass, default config
  tunnelsync --config ./tunnelsync.yaml  # One pass, explicit config
  tunnelsync watch                       # Repeat passes on a schedule
  tunnelsync status                      # Read-only report`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd.Context(), cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.tunnelsync/config.yaml, or $TUNNELSYNC_CONFIG_PATH)")

	rootCmd.AddCommand(
		newRunCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show tunnelsync version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tunnelsync v%s\n", version)
		},
	}
}

// loadConfig loads and validates the configuration selected by --config
func loadConfig() (*config.Config, error) {
	configPath := config.ResolvePath(cfgFile)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

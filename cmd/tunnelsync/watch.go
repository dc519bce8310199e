package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/tunnelsync/internal/agent"
	"github.com/alekspetrov/tunnelsync/internal/banner"
	"github.com/alekspetrov/tunnelsync/internal/logging"
	"github.com/alekspetrov/tunnelsync/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		schedule string
		noFollow bool
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run passes on a schedule and when the tunnel log changes",
		Long: `Run reconciliation passes until interrupted.

A pass runs at startup, then on the cron schedule from watch.schedule
(default "@every 30s") and, unless disabled, shortly after the tunnel log
is written. Passes never overlap. Each result is printed as one JSON line.

Examples:
  tunnelsync watch                          # Config schedule
  tunnelsync watch --schedule "@every 10s"  # Override schedule
  tunnelsync watch --no-follow              # Schedule only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if schedule != "" {
				cfg.Watch.Schedule = schedule
			}
			if noFollow {
				cfg.Watch.FollowLog = false
			}

			closer, err := logging.Init(cfg.Logging)
			if err != nil {
				return err
			}
			defer closer.Close()

			if !quiet {
				banner.StartupWatch(cmd.ErrOrStderr(), version, cfg)
			}

			a, err := agent.New(cfg, logging.Logger())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Handle signals
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					logging.Info("shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			out := cmd.OutOrStdout()
			w := watch.New(a, cfg.Watch, cfg.Tunnel.LogPath, func(r *agent.Result) {
				if err := printResult(out, r); err != nil {
					logging.Error("failed to print result", "error", err)
				}
			}, logging.Logger())

			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", `cron schedule, e.g. "*/1 * * * *" or "@every 30s"`)
	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Do not run passes on tunnel log writes")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Skip the startup banner")

	return cmd
}

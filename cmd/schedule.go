package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/pyramid-ing/tmgkfl/internal/accountlock"
	"github.com/pyramid-ing/tmgkfl/internal/observability"
	"github.com/pyramid-ing/tmgkfl/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Poll for due post jobs and publish them until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		logger := observability.GetLogger()
		launcher := scheduler.NewBrowserLauncher(appCfg.Browser, logger)
		processor := scheduler.NewProcessor(st, launcher, accountlock.NewRegistry(), appCfg.Scheduler.PollInterval, logger)

		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

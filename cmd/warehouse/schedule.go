package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-warehouse/internal/app"
	"github.com/ignite/campaign-warehouse/internal/etl"
)

func scheduleCmd() *cobra.Command {
	var (
		spec   string
		runNow bool
		opts   etl.Options
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the sync on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if spec == "" {
					spec = a.Config.ETL.Schedule
				}
				s, err := etl.NewScheduler(a.Pipeline, spec, opts)
				if err != nil {
					return err
				}
				if runNow {
					s.RunNow()
				}
				s.Start()
				<-ctx.Done()
				s.Stop()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "cron expression (default etl.schedule)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one sync before waiting for the first tick")
	cmd.Flags().IntVar(&opts.MetricsHours, "hours", 0, "hours of metrics per run (default etl.metrics_hours)")
	return cmd
}

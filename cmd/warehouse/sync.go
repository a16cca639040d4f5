package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-warehouse/internal/app"
	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/etl"
)

func syncCmd() *cobra.Command {
	var opts etl.Options

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync campaigns and recent hourly metrics, then re-resolve every hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Pipeline.Run(ctx, opts)
				if res != nil {
					if perr := printJSON(res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&opts.MetricsHours, "hours", 0, "hours of metrics to fetch (default etl.metrics_hours)")
	cmd.Flags().BoolVar(&opts.SkipCampaigns, "skip-campaigns", false, "do not refresh campaigns")
	cmd.Flags().BoolVar(&opts.SkipMetrics, "skip-metrics", false, "do not fetch hourly metrics")
	return cmd
}

func historicalCmd() *cobra.Command {
	var (
		startDate, endDate string
		days               int
		batchHours         int
		maxBatches         int
	)

	cmd := &cobra.Command{
		Use:   "sync-historical",
		Short: "Backfill hourly metrics for a date range in fixed-size batches",
		Example: "  warehouse sync-historical --start 2026-01-01 --end 2026-01-31\n" +
			"  warehouse sync-historical --days 7 --batch-hours 12",
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end time.Time
			switch {
			case startDate != "" && endDate != "":
				var err error
				start, end, err = etl.DateRange(startDate, endDate)
				if err != nil {
					return err
				}
			case days > 0:
				end = time.Now().UTC().Truncate(time.Hour)
				start = end.Add(-time.Duration(days) * 24 * time.Hour)
			default:
				return fmt.Errorf("either --start and --end or --days is required")
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Pipeline.RunHistorical(ctx, start, end, batchHours, maxBatches)
				if res != nil {
					if perr := printJSON(res); perr != nil {
						return perr
					}
					if err == nil && res.Status != domain.RunCompleted {
						return fmt.Errorf("%d of %d batches failed", res.TotalBatches-res.BatchesCompleted, res.TotalBatches)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&startDate, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end", "", "last day, YYYY-MM-DD (inclusive)")
	cmd.Flags().IntVar(&days, "days", 0, "backfill the last N days instead of a date range")
	cmd.Flags().IntVar(&batchHours, "batch-hours", 0, "hours per batch (default etl.batch_hours)")
	cmd.Flags().IntVar(&maxBatches, "max-batches", 0, "stop after N batches (0 = all)")
	return cmd
}

func statusCmd() *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show API health, table counts, rule stats and recent syncs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := a.Pipeline.Status(ctx, recent)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 5, "number of recent sync runs to show")
	return cmd
}

func debugCampaignCmd() *cobra.Command {
	var hourly int

	cmd := &cobra.Command{
		Use:   "debug-campaign <campaign-id>",
		Short: "Show a campaign's stored data, rule resolution, hierarchy and override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCampaignID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				dbg, err := a.Pipeline.DebugCampaign(ctx, id, hourly)
				if err != nil {
					return err
				}
				return printJSON(dbg)
			})
		},
	}
	cmd.Flags().IntVar(&hourly, "hourly", 10, "number of recent hourly rows to show")
	return cmd
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-warehouse/internal/app"
	"github.com/ignite/campaign-warehouse/internal/etl"
	"github.com/ignite/campaign-warehouse/internal/report"
)

func exportCmd() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:       "export <csv|xlsx|sheets>",
		Short:     "Export the campaign performance report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{report.TypeCSV, report.TypeXLSX, "sheets"},
		RunE: func(cmd *cobra.Command, args []string) error {
			format := args[0]
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				exp, err := a.Exporter(ctx, format == "sheets")
				if err != nil {
					return err
				}

				var res *report.ExportResult
				switch format {
				case report.TypeCSV:
					res, err = exp.ExportCSV(ctx, hours)
				case report.TypeXLSX:
					res, err = exp.ExportXLSX(ctx, hours)
				case "sheets", report.TypeSheets:
					res, err = exp.ExportSheets(ctx, hours)
				default:
					return fmt.Errorf("unknown export format %q (csv, xlsx or sheets)", format)
				}
				if res != nil {
					if perr := printJSON(res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	return cmd
}

func summaryCmd() *cobra.Command {
	var (
		startDate, endDate string
		hours              int
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print per-campaign performance for the trailing hours or a date range",
		Example: "  warehouse summary --hours 24\n" +
			"  warehouse summary --start 2026-03-01 --end 2026-03-07",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if startDate == "" && endDate == "" {
					rows, err := a.Reports.Performance(ctx, hours)
					if err != nil {
						return err
					}
					return printJSON(rows)
				}
				if startDate == "" || endDate == "" {
					return fmt.Errorf("--start and --end must be given together")
				}
				start, end, err := etl.DateRange(startDate, endDate)
				if err != nil {
					return err
				}
				rows, err := a.Reports.RangeSummaries(ctx, start, end)
				if err != nil {
					return err
				}
				return printJSON(rows)
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	cmd.Flags().StringVar(&startDate, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "last day inclusive (YYYY-MM-DD)")
	return cmd
}

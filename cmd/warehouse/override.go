package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-warehouse/internal/app"
	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/importer"
)

func overrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage manual hierarchy overrides",
	}
	cmd.AddCommand(overrideSetCmd())
	cmd.AddCommand(overrideGetCmd())
	cmd.AddCommand(overrideDeactivateCmd())
	cmd.AddCommand(overrideHistoryCmd())
	return cmd
}

func overrideSetCmd() *cobra.Command {
	var reason, author string
	values := map[domain.Field]*string{}

	cmd := &cobra.Command{
		Use:     "set <campaign-id>",
		Short:   "Set a manual override; unset fields keep the rule-based value",
		Example: "  warehouse override set 42 --domain \"Dating Platform\" --reason \"manual review\" --author ops",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCampaignID(args[0])
			if err != nil {
				return err
			}
			var fields domain.OverrideFields
			for f, v := range values {
				if cmd.Flags().Changed(string(f)) {
					val := *v
					fields.Set(f, &val)
				}
			}
			if fields.Empty() {
				return fmt.Errorf("set at least one of --network, --domain, --placement, --targeting, --special")
			}
			if author == "" {
				author = os.Getenv("USER")
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				overrideID, err := a.Hierarchy.SetOverride(ctx, id, fields, reason, author)
				if err != nil {
					return err
				}
				view, err := a.Hierarchy.GetHierarchy(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{"override_id": overrideID, "hierarchy": view})
			})
		},
	}
	for _, f := range domain.Fields {
		values[f] = cmd.Flags().String(string(f), "", "override value for "+string(f))
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the override is needed")
	cmd.Flags().StringVar(&author, "author", "", "who made the change (default $USER)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func overrideGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <campaign-id>",
		Short: "Show the merged hierarchy and any active override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCampaignID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				view, err := a.Hierarchy.GetHierarchy(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(view)
			})
		},
	}
}

func overrideDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <campaign-id>",
		Short: "Turn off the active override and restore the rule-based mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCampaignID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				changed, err := a.Hierarchy.DeactivateOverride(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{"campaign_id": id, "deactivated": changed})
			})
		},
	}
}

func overrideHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <campaign-id>",
		Short: "List a campaign's overrides, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCampaignID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				history, err := a.Hierarchy.OverrideHistory(ctx, id, limit)
				if err != nil {
					return err
				}
				return printJSON(history)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (default 50)")
	return cmd
}

func importCmd() *cobra.Command {
	var opts importer.Options
	var cutoff float64

	cmd := &cobra.Command{
		Use:   "import-overrides <file.csv>",
		Short: "Create overrides from a CSV of campaign hierarchies",
		Long: "Columns: campaign_id (optional), campaign_name, network, domain, placement, targeting, special.\n" +
			"Rows match by id, then exact normalized name, then fuzzy name similarity.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				opts.FuzzyCutoff = a.Config.Hierarchy.FuzzyCutoff
				if cmd.Flags().Changed("cutoff") {
					opts.FuzzyCutoff = cutoff
				}
				res, err := a.Importer.Import(ctx, f, opts)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "match rows without writing overrides")
	cmd.Flags().StringVar(&opts.Author, "author", importer.DefaultAuthor, "override author")
	cmd.Flags().StringVar(&opts.Reason, "reason", importer.DefaultReason, "override reason")
	cmd.Flags().Float64Var(&cutoff, "cutoff", importer.DefaultFuzzyCutoff, "minimum name similarity for fuzzy matches")
	return cmd
}

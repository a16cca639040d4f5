package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-warehouse/internal/app"
	"github.com/ignite/campaign-warehouse/internal/config"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
	"github.com/ignite/campaign-warehouse/internal/storage"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate, reload, test and back up the hierarchy rule file",
	}
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesReloadCmd())
	cmd.AddCommand(rulesTestCmd())
	cmd.AddCommand(rulesStatsCmd())
	cmd.AddCommand(rulesBackupCmd())
	return cmd
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [rules-file]",
		Short: "Check a rule file without activating it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.LoadFromEnv(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				path = cfg.Hierarchy.RulesFile
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rf, err := mapper.ParseRuleFile(data)
			var verr *mapper.ValidationError
			if errors.As(err, &verr) {
				verr.Source = path
				_ = printJSON(map[string]interface{}{"file": path, "valid": false, "problems": verr.Problems})
				return verr
			}
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"file":         path,
				"valid":        true,
				"version":      rf.Version,
				"total_rules":  len(rf.Rules),
				"active_rules": len(rf.Active()),
			})
		},
	}
}

func rulesReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Force a reload of the rule file and mirror it to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Rules.Reload(ctx); err != nil {
					return err
				}
				return printJSON(a.Classifier.Stats())
			})
		},
	}
}

func rulesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <campaign-name>...",
		Short: "Classify campaign names with the current rules without storing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := make([]map[string]interface{}, 0, len(args))
				for _, name := range args {
					res := a.Classifier.Classify(ctx, name)
					matched := make([]string, 0, len(res.MatchedRules))
					for _, r := range res.MatchedRules {
						matched = append(matched, fmt.Sprintf("%s (%d)", r.Name, r.Priority))
					}
					out = append(out, map[string]interface{}{
						"campaign_name": name,
						"hierarchy":     res.Hierarchy,
						"confidence":    res.Confidence,
						"matched_rules": matched,
					})
				}
				return printJSON(out)
			})
		},
	}
}

func rulesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show counts over the loaded rule set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Rules.ReloadIfStale(ctx); err != nil {
					logger.Warn("rules: reload failed, showing cached rules", "error", err)
				}
				return printJSON(a.Classifier.Stats())
			})
		},
	}
}

func rulesBackupCmd() *cobra.Command {
	var toArchive bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the rule file to the backup directory, keeping the newest hierarchy.backup_keep copies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var dst storage.Store = a.Archive
				if !toArchive {
					local, err := storage.NewLocalStore(a.Config.Hierarchy.BackupDir)
					if err != nil {
						return err
					}
					dst = local
				}
				key, err := a.Rules.Backup(ctx, dst, a.Config.Hierarchy.BackupKeep)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"key": key, "location": dst.Location(key)})
			})
		},
	}
	cmd.Flags().BoolVar(&toArchive, "archive", false, "write to the configured archive store instead of hierarchy.backup_dir")
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-warehouse/internal/app"
	"github.com/ignite/campaign-warehouse/internal/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "warehouse",
		Short:         "Campaign data warehouse: sync, hierarchy rules, overrides and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to the YAML configuration")

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(historicalCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(debugCampaignCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(scheduleCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads the configuration, wires the application and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCampaignID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("campaign id must be a positive integer, got %q", s)
	}
	return id, nil
}

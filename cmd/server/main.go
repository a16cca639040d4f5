package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-warehouse/internal/api"
	"github.com/ignite/campaign-warehouse/internal/app"
	"github.com/ignite/campaign-warehouse/internal/config"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if _, err := a.Rules.ReloadIfStale(ctx); err != nil {
		logger.Warn("server: initial rule load failed", "file", cfg.Hierarchy.RulesFile, "error", err)
	}

	s3Client, bucket := a.S3()
	health := api.NewHealthChecker(a.DB, a.Redis, s3Client, bucket, a.Classifier.Stats)
	handlers := api.NewHandlers(a.Hierarchy, a.Classifier)
	server := api.NewServer(cfg.Server, handlers, health, a.Metrics.Handler(a.Registry))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	logger.Info("server: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: shutdown failed", "error", err)
	}
}

// Package app wires the warehouse components from configuration for the
// command line and server binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-warehouse/internal/config"
	"github.com/ignite/campaign-warehouse/internal/db"
	"github.com/ignite/campaign-warehouse/internal/etl"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/importer"
	"github.com/ignite/campaign-warehouse/internal/metrics"
	"github.com/ignite/campaign-warehouse/internal/peach"
	"github.com/ignite/campaign-warehouse/internal/pkg/distlock"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
	"github.com/ignite/campaign-warehouse/internal/report"
	"github.com/ignite/campaign-warehouse/internal/repository/sqlstore"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/storage"
)

// App holds every wired component. Close releases the connections.
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Driver     string
	Store      *sqlstore.Store
	Redis      *redis.Client
	Archive    storage.Store
	Rules      *mapper.RuleRepository
	Classifier *mapper.Classifier
	Hierarchy  *hierarchy.Service
	API        *peach.Client
	Pipeline   *etl.Pipeline
	Reports    *report.Store
	Importer   *importer.Importer
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry

	logFile io.Closer
}

// SetupLogging applies the logging section of cfg. The returned closer
// closes the log file, if one was opened.
func SetupLogging(cfg config.LoggingConfig) (io.Closer, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	if cfg.File == "" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// New opens the database, applies migrations and builds every component.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Driver: cfg.Database.Driver}
	if a.Driver == "" {
		a.Driver = db.DriverSQLite
	}

	closer, err := SetupLogging(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a.logFile = closer

	a.DB, err = db.Open(ctx, cfg.Database)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := db.Migrate(a.DB, a.Driver); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.Store = sqlstore.New(a.DB, a.Driver)

	a.Archive, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Enabled() {
		a.Redis, err = newRedis(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Metrics = metrics.New(a.Store)
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics.Register(a.Registry)

	a.Rules = mapper.NewRuleRepository(cfg.Hierarchy.RulesFile, a.Store)
	resolver := mapper.NewResolver(mapper.NewMatcher(cfg.Hierarchy.RegexCacheSize), cfg.Hierarchy.HighPriorityThreshold)
	a.Classifier = mapper.NewClassifier(a.Rules, resolver)

	a.Hierarchy = hierarchy.NewService(a.Store, a.Classifier,
		hierarchy.WithLowConfidenceThreshold(cfg.Hierarchy.ConfidenceThreshold),
		hierarchy.WithUpsertHook(a.Metrics.HierarchyUpsert))

	a.API = peach.NewClient(cfg.API)
	a.Pipeline = etl.New(a.API, a.Store, a.Hierarchy, a.Classifier, cfg.ETL,
		etl.WithLock(a.SyncLock()),
		etl.WithRecorder(a.Metrics),
		etl.WithConfidenceThreshold(cfg.Hierarchy.ConfidenceThreshold))

	a.Reports = report.NewStore(a.Store.DB())
	a.Importer = importer.New(a.Store, a.Hierarchy)
	return a, nil
}

// SyncLock returns a fresh lock on the sync key. Locks are not shared
// between goroutines, so callers that run syncs concurrently each take one.
func (a *App) SyncLock() distlock.DistLock {
	return distlock.NewLock(a.Redis, a.DB, a.Driver, etl.LockKey, a.Config.ETL.LockTTL())
}

// Exporter builds a report exporter. The Google Sheets backend is only
// created when withSheets is set, since it needs credentials.
func (a *App) Exporter(ctx context.Context, withSheets bool) (*report.Exporter, error) {
	opts := []report.ExporterOption{report.WithQualityThreshold(a.Config.ETL.DataQualityThreshold)}
	if withSheets {
		sheets, err := report.NewSheetsExporter(ctx, a.Config.Export.GoogleCredentials)
		if err != nil {
			return nil, err
		}
		opts = append(opts, report.WithSheets(sheets))
	}
	return report.NewExporter(a.Reports, a.Store, a.Archive, a.Config.Export, opts...), nil
}

// S3 returns the archive's S3 client and bucket when the archive is S3.
func (a *App) S3() (*s3.Client, string) {
	if s, ok := a.Archive.(*storage.S3Store); ok {
		return s.Client(), s.Bucket()
	}
	return nil, ""
}

// Close releases every open connection.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), nil
}

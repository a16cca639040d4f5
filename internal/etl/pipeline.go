// Package etl runs the warehouse sync: campaigns and hourly metrics are
// pulled from the campaign API, every campaign is re-classified and merged
// with its active override, and the result is checked for data quality.
package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ignite/campaign-warehouse/internal/config"
	"github.com/ignite/campaign-warehouse/internal/domain"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/peach"
	"github.com/ignite/campaign-warehouse/internal/pkg/distlock"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
	"github.com/ignite/campaign-warehouse/internal/repository/sqlstore"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

// LockKey is the distributed lock held for the duration of a sync.
const LockKey = "warehouse:sync"

// Sync types recorded in sync_history.
const (
	SyncFull       = "full_sync"
	SyncHistorical = "historical_sync"
)

// Source is the upstream campaign API.
type Source interface {
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
	CampaignHourly(ctx context.Context, campaignID int64, start, end time.Time) ([]domain.HourlyMetrics, error)
	Health(ctx context.Context) (bool, error)
	Calls() int64
}

// Store is the warehouse storage the pipeline reads and writes.
type Store interface {
	UpsertCampaigns(ctx context.Context, campaigns []domain.Campaign) (inserted, updated int, err error)
	CampaignIDs(ctx context.Context) ([]int64, error)
	GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error)
	UpsertHourly(ctx context.Context, rows []domain.HourlyMetrics) (int, error)
	RecentHourly(ctx context.Context, campaignID int64, limit int) ([]domain.HourlyMetrics, error)
	StartSyncRun(ctx context.Context, syncType string) (int64, error)
	FinishSyncRun(ctx context.Context, run *domain.SyncRun) error
	RecentSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)
	Counts(ctx context.Context) (*sqlstore.Counts, error)
	QualityStats(ctx context.Context, confidenceThreshold float64, sinceHour int64) (*sqlstore.QualityStats, error)
}

// Hierarchy is the override-aware hierarchy service.
type Hierarchy interface {
	ResolveAll(ctx context.Context) (*hierarchy.BatchResult, error)
	GetHierarchy(ctx context.Context, campaignID int64) (*domain.HierarchyView, error)
	GetActiveOverride(ctx context.Context, campaignID int64) (*domain.Override, error)
}

// Rules classifies names and reports on the loaded rule set.
type Rules interface {
	Classify(ctx context.Context, name string) mapper.Resolution
	Stats() mapper.RuleStats
}

// Recorder receives sync outcomes, typically the prometheus collector.
type Recorder interface {
	SyncRun(status string)
}

// Options controls a single Run.
type Options struct {
	MetricsHours  int
	SkipCampaigns bool
	SkipMetrics   bool
}

// Result summarises a sync run.
type Result struct {
	SyncID            int64                  `json:"sync_id"`
	Status            domain.RunStatus       `json:"status"`
	Duration          time.Duration          `json:"duration"`
	CampaignsFetched  int                    `json:"campaigns_fetched"`
	CampaignsInserted int                    `json:"campaigns_inserted"`
	CampaignsUpdated  int                    `json:"campaigns_updated"`
	HourlyFetched     int                    `json:"hourly_fetched"`
	HourlyStored      int                    `json:"hourly_stored"`
	Hierarchy         *hierarchy.BatchResult `json:"hierarchy,omitempty"`
	Warnings          []string               `json:"warnings,omitempty"`
	Errors            []string               `json:"errors,omitempty"`
	APICalls          int64                  `json:"api_calls"`
	Error             string                 `json:"error,omitempty"`
}

// Pipeline orchestrates syncs.
type Pipeline struct {
	source    Source
	store     Store
	hierarchy Hierarchy
	rules     Rules
	lock      distlock.DistLock
	recorder  Recorder
	cfg       config.ETLConfig
	threshold float64
	now       func() time.Time
	pause     time.Duration
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLock sets the run lock. The default is an in-process lock.
func WithLock(l distlock.DistLock) Option {
	return func(p *Pipeline) { p.lock = l }
}

// WithRecorder registers a sync outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithClock overrides the pipeline clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithConfidenceThreshold sets the low-confidence cut used by quality checks.
func WithConfidenceThreshold(v float64) Option {
	return func(p *Pipeline) { p.threshold = v }
}

// WithBatchPause sets the pause between historical batches.
func WithBatchPause(d time.Duration) Option {
	return func(p *Pipeline) { p.pause = d }
}

// New creates a Pipeline.
func New(source Source, store Store, h Hierarchy, rules Rules, cfg config.ETLConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:    source,
		store:     store,
		hierarchy: h,
		rules:     rules,
		cfg:       cfg,
		threshold: 0.7,
		now:       func() time.Time { return time.Now().UTC() },
		pause:     300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.lock == nil {
		p.lock = distlock.NewLocalLock(LockKey)
	}
	return p
}

// Run performs a full sync under the sync lock. The returned Result is
// populated even when the run fails; err is non-nil only when the run
// could not complete. distlock.ErrNotAcquired is returned when another
// process is syncing.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	var res *Result
	err := distlock.WithLock(ctx, p.lock, func(ctx context.Context) error {
		var err error
		res, err = p.run(ctx, opts)
		return err
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		logger.Warn("etl: sync already running elsewhere", "lock", LockKey)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, opts Options) (*Result, error) {
	start := p.now()
	callsBefore := p.source.Calls()
	res := &Result{Status: domain.RunRunning}

	id, err := p.store.StartSyncRun(ctx, SyncFull)
	if err != nil {
		return res, err
	}
	res.SyncID = id
	logger.Info("etl: sync started", "sync_id", id)

	runErr := p.steps(ctx, opts, res)

	res.Duration = p.now().Sub(start)
	res.APICalls = p.source.Calls() - callsBefore
	run := &domain.SyncRun{
		ID:               id,
		SyncType:         SyncFull,
		RecordsProcessed: res.CampaignsFetched + res.HourlyFetched,
		RecordsInserted:  res.CampaignsInserted + res.HourlyStored,
		RecordsUpdated:   res.CampaignsUpdated,
		APICallsMade:     int(res.APICalls),
	}
	if runErr != nil {
		res.Status = domain.RunFailed
		res.Error = runErr.Error()
		run.ErrorMessage = runErr.Error()
	} else {
		res.Status = domain.RunCompleted
		run.ErrorMessage = strings.Join(res.Errors, "; ")
	}
	run.Status = res.Status

	// A cancelled run still gets its outcome recorded.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.FinishSyncRun(finishCtx, run); err != nil {
		logger.Error("etl: failed to record sync outcome", "sync_id", id, "error", err)
	}
	if p.recorder != nil {
		p.recorder.SyncRun(string(res.Status))
	}

	if runErr != nil {
		logger.Error("etl: sync failed", "sync_id", id, "error", runErr, "duration", res.Duration.String())
		return res, runErr
	}
	logger.Info("etl: sync completed",
		"sync_id", id,
		"duration", res.Duration.String(),
		"campaigns_inserted", res.CampaignsInserted,
		"campaigns_updated", res.CampaignsUpdated,
		"hourly_stored", res.HourlyStored,
		"warnings", len(res.Warnings),
		"api_calls", res.APICalls,
	)
	return res, nil
}

func (p *Pipeline) steps(ctx context.Context, opts Options, res *Result) error {
	if !opts.SkipCampaigns {
		if err := p.syncCampaigns(ctx, res); err != nil {
			return err
		}
	}

	hours := opts.MetricsHours
	if hours <= 0 {
		hours = p.cfg.MetricsHours
	}
	if hours <= 0 {
		hours = 48
	}
	if !opts.SkipMetrics {
		end := p.now()
		if err := p.syncHourly(ctx, end.Add(-time.Duration(hours)*time.Hour), end, res); err != nil {
			return err
		}
	}

	batch, err := p.hierarchy.ResolveAll(ctx)
	if err != nil {
		return fmt.Errorf("resolve hierarchy: %w", err)
	}
	res.Hierarchy = batch
	for _, e := range batch.Errors {
		res.Errors = append(res.Errors, fmt.Sprintf("hierarchy %d: %s", e.CampaignID, e.Error))
	}

	sinceHour := domain.UnixHourOf(p.now().Add(-time.Duration(hours) * time.Hour))
	warnings, err := p.QualityWarnings(ctx, sinceHour)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	res.Warnings = warnings
	return nil
}

func (p *Pipeline) syncCampaigns(ctx context.Context, res *Result) error {
	campaigns, err := p.source.ListCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("fetch campaigns: %w", err)
	}
	res.CampaignsFetched = len(campaigns)
	if len(campaigns) == 0 {
		logger.Warn("etl: no campaigns returned from API")
		return nil
	}
	ins, upd, err := p.store.UpsertCampaigns(ctx, campaigns)
	if err != nil {
		return fmt.Errorf("store campaigns: %w", err)
	}
	res.CampaignsInserted += ins
	res.CampaignsUpdated += upd
	logger.Info("etl: campaigns synced", "inserted", ins, "updated", upd)
	return nil
}

// syncHourly fetches metrics for each stored campaign. A failure for one
// campaign is recorded and the loop continues, except for errors that make
// every further call pointless (bad token, open breaker, cancellation).
func (p *Pipeline) syncHourly(ctx context.Context, start, end time.Time, res *Result) error {
	ids, err := p.store.CampaignIDs(ctx)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	if len(ids) == 0 {
		logger.Warn("etl: no campaigns stored, skipping metrics")
		return nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := p.source.CampaignHourly(ctx, id, start, end)
		if err != nil {
			if fatalFetchError(err) {
				return fmt.Errorf("fetch metrics for campaign %d: %w", id, err)
			}
			logger.Warn("etl: metrics fetch failed", "campaign_id", id, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("metrics %d: %v", id, err))
			continue
		}
		res.HourlyFetched += len(rows)
		if len(rows) == 0 {
			continue
		}
		n, err := p.store.UpsertHourly(ctx, rows)
		if err != nil {
			logger.Error("etl: storing hourly rows failed", "campaign_id", id, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("store hourly %d: %v", id, err))
			continue
		}
		res.HourlyStored += n
	}
	logger.Info("etl: hourly metrics synced",
		"campaigns", len(ids), "fetched", res.HourlyFetched, "stored", res.HourlyStored)
	return nil
}

func fatalFetchError(err error) bool {
	return errors.Is(err, peach.ErrUnauthorized) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// QualityWarnings runs the post-sync data quality checks. Metric checks
// consider hours from sinceHour on.
func (p *Pipeline) QualityWarnings(ctx context.Context, sinceHour int64) ([]string, error) {
	q, err := p.store.QualityStats(ctx, p.threshold, sinceHour)
	if err != nil {
		return nil, err
	}

	var warnings []string
	if q.Campaigns == 0 {
		return []string{"No campaigns available for validation"}, nil
	}
	coverageWarn := p.cfg.MappingCoverageWarn
	if coverageWarn <= 0 {
		coverageWarn = 0.8
	}
	if float64(q.MappedCampaigns) < float64(q.Campaigns)*coverageWarn {
		warnings = append(warnings, fmt.Sprintf("Low mapping coverage: %d/%d campaigns mapped", q.MappedCampaigns, q.Campaigns))
	}
	if q.LowConfidence > 0 {
		warnings = append(warnings, fmt.Sprintf("%d campaigns have mapping confidence below %.2f", q.LowConfidence, p.threshold))
	}
	if q.NoHourlyData > 0 {
		warnings = append(warnings, fmt.Sprintf("%d campaigns have no hourly data", q.NoHourlyData))
	}
	if q.SuspiciousRegistrationRate > 0 {
		warnings = append(warnings, fmt.Sprintf("%d campaigns have a registration rate above 50%%", q.SuspiciousRegistrationRate))
	}
	if q.RegistrationsExceedSessions > 0 {
		warnings = append(warnings, fmt.Sprintf("%d campaigns report more registrations than sessions", q.RegistrationsExceedSessions))
	}

	if ok, err := p.source.Health(ctx); err != nil || !ok {
		warnings = append(warnings, "API connectivity issues detected")
	}

	for _, w := range warnings {
		logger.Warn("etl: data quality", "warning", w)
	}
	return warnings, nil
}

package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/ignite/campaign-warehouse/internal/pkg/distlock"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, opts Options) (*Result, error)
}

// Scheduler runs the sync on a cron schedule. Ticks that fire while a
// previous run is still going are skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	runner Runner
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates spec (standard five-field cron) and prepares the
// scheduler. Start must be called to begin firing.
func NewScheduler(runner Runner, spec string, opts Options) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{spec: spec, runner: runner, opts: opts, ctx: ctx, cancel: cancel}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing on the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("etl: scheduler started", "schedule", s.spec)
}

// RunNow performs one run outside the schedule and waits for it.
func (s *Scheduler) RunNow() {
	s.tick()
}

// Stop cancels an in-flight run and waits for it to record its outcome.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.wg.Wait()
	logger.Info("etl: scheduler stopped")
}

func (s *Scheduler) tick() {
	s.wg.Add(1)
	defer s.wg.Done()
	if s.ctx.Err() != nil {
		return
	}

	res, err := s.runner.Run(s.ctx, s.opts)
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		// Another process holds the sync lock; the next tick tries again.
	case err != nil:
		logger.Error("etl: scheduled sync failed", "error", err)
	case res != nil && len(res.Warnings) > 0:
		logger.Warn("etl: scheduled sync finished with warnings", "warnings", res.Warnings)
	}
}

// cronLogger sends the cron library's messages through the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

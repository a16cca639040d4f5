package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/pkg/distlock"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BatchStatus is the outcome of one historical batch.
type BatchStatus struct {
	Window
	Index   int              `json:"index"`
	Status  domain.RunStatus `json:"status"`
	Fetched int              `json:"fetched"`
	Stored  int              `json:"stored"`
	Errors  []string         `json:"errors,omitempty"`
}

// HistoricalResult summarises a RunHistorical call.
type HistoricalResult struct {
	SyncID           int64            `json:"sync_id"`
	Status           domain.RunStatus `json:"status"`
	TotalBatches     int              `json:"total_batches"`
	BatchesCompleted int              `json:"batches_completed"`
	TotalRecords     int              `json:"total_records"`
	Batches          []BatchStatus    `json:"batches"`
	Duration         time.Duration    `json:"duration"`
}

// DateRange turns YYYY-MM-DD dates into a UTC range covering both days
// fully.
func DateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	end = end.Add(24*time.Hour - time.Second)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	return start.UTC(), end.UTC(), nil
}

// TimeBatches splits [start, end) into contiguous windows of batchHours.
// The last window is cut short at end.
func TimeBatches(start, end time.Time, batchHours int) []Window {
	if batchHours <= 0 {
		batchHours = 6
	}
	step := time.Duration(batchHours) * time.Hour
	var out []Window
	for cur := start; cur.Before(end); {
		next := cur.Add(step)
		if next.After(end) {
			next = end
		}
		out = append(out, Window{Start: cur, End: next})
		cur = next
	}
	return out
}

// RunHistorical backfills hourly metrics between start and end in batches.
// Each batch is synced on its own; a failed batch is recorded and the next
// one runs. maxBatches > 0 limits the number of batches.
func (p *Pipeline) RunHistorical(ctx context.Context, start, end time.Time, batchHours, maxBatches int) (*HistoricalResult, error) {
	if batchHours <= 0 {
		batchHours = p.cfg.BatchHours
	}
	var res *HistoricalResult
	err := distlock.WithLock(ctx, p.lock, func(ctx context.Context) error {
		var err error
		res, err = p.runHistorical(ctx, start, end, batchHours, maxBatches)
		return err
	})
	return res, err
}

func (p *Pipeline) runHistorical(ctx context.Context, start, end time.Time, batchHours, maxBatches int) (*HistoricalResult, error) {
	began := p.now()
	ids, err := p.store.CampaignIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no campaigns stored; run a sync first")
	}

	windows := TimeBatches(start, end, batchHours)
	if maxBatches > 0 && len(windows) > maxBatches {
		windows = windows[:maxBatches]
	}

	syncID, err := p.store.StartSyncRun(ctx, SyncHistorical)
	if err != nil {
		return nil, err
	}
	callsBefore := p.source.Calls()
	res := &HistoricalResult{SyncID: syncID, TotalBatches: len(windows)}
	logger.Info("etl: historical sync started",
		"sync_id", syncID, "campaigns", len(ids), "batches", len(windows),
		"start", start.Format(time.RFC3339), "end", end.Format(time.RFC3339))

	var runErr error
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if i > 0 && p.pause > 0 {
			select {
			case <-time.After(p.pause):
			case <-ctx.Done():
				runErr = ctx.Err()
			}
			if runErr != nil {
				break
			}
		}

		b := p.syncBatch(ctx, i+1, w, ids)
		res.Batches = append(res.Batches, b)
		res.TotalRecords += b.Stored
		if b.Status == domain.RunCompleted {
			res.BatchesCompleted++
		}
		logger.Info("etl: historical batch done",
			"batch", b.Index, "of", len(windows), "status", string(b.Status),
			"stored", b.Stored, "errors", len(b.Errors))
	}

	res.Duration = p.now().Sub(began)
	res.Status = domain.RunCompleted
	run := &domain.SyncRun{
		ID:               syncID,
		SyncType:         SyncHistorical,
		RecordsProcessed: res.TotalRecords,
		RecordsInserted:  res.TotalRecords,
		APICallsMade:     int(p.source.Calls() - callsBefore),
	}
	if runErr != nil {
		res.Status = domain.RunFailed
		run.ErrorMessage = runErr.Error()
	} else if failed := res.TotalBatches - res.BatchesCompleted; failed > 0 {
		run.ErrorMessage = fmt.Sprintf("%d of %d batches failed", failed, res.TotalBatches)
	}
	run.Status = res.Status

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.FinishSyncRun(finishCtx, run); err != nil {
		logger.Error("etl: failed to record historical sync outcome", "sync_id", syncID, "error", err)
	}
	if p.recorder != nil {
		p.recorder.SyncRun(string(res.Status))
	}
	return res, runErr
}

// syncBatch fetches and stores one window for every campaign. The batch
// fails on errors that stop all fetching and on storage errors; other
// per-campaign fetch errors are listed but leave the batch completed.
func (p *Pipeline) syncBatch(ctx context.Context, index int, w Window, ids []int64) BatchStatus {
	b := BatchStatus{Window: w, Index: index, Status: domain.RunCompleted}
	var rows []domain.HourlyMetrics
	for _, id := range ids {
		got, err := p.source.CampaignHourly(ctx, id, w.Start, w.End)
		if err != nil {
			b.Errors = append(b.Errors, fmt.Sprintf("campaign %d: %v", id, err))
			if fatalFetchError(err) {
				b.Status = domain.RunFailed
				return b
			}
			continue
		}
		rows = append(rows, got...)
	}
	b.Fetched = len(rows)
	if len(rows) == 0 {
		return b
	}
	n, err := p.store.UpsertHourly(ctx, rows)
	if err != nil {
		b.Status = domain.RunFailed
		b.Errors = append(b.Errors, err.Error())
		return b
	}
	b.Stored = n
	return b
}

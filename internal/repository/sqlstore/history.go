package sqlstore

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

// StartSyncRun inserts a running sync_history row and returns its id.
func (s *Store) StartSyncRun(ctx context.Context, syncType string) (int64, error) {
	var id int64
	err := s.get(ctx, &id, `
		INSERT INTO sync_history (sync_type, start_time, status)
		VALUES (?, ?, ?)
		RETURNING id`, syncType, s.now(), string(domain.RunRunning))
	if err != nil {
		return 0, fmt.Errorf("start sync run: %w", err)
	}
	return id, nil
}

// FinishSyncRun records the outcome of a sync run.
func (s *Store) FinishSyncRun(ctx context.Context, run *domain.SyncRun) error {
	end := s.now()
	if run.EndTime != nil {
		end = run.EndTime.UTC()
	}
	_, err := s.exec(ctx, `
		UPDATE sync_history
		SET end_time = ?, status = ?, records_processed = ?, records_inserted = ?,
		    records_updated = ?, error_message = ?, api_calls_made = ?
		WHERE id = ?`,
		end, string(run.Status), run.RecordsProcessed, run.RecordsInserted,
		run.RecordsUpdated, run.ErrorMessage, run.APICallsMade, run.ID)
	if err != nil {
		return fmt.Errorf("finish sync run %d: %w", run.ID, err)
	}
	return nil
}

// RecentSyncRuns returns the newest sync runs.
func (s *Store) RecentSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	var runs []domain.SyncRun
	err := s.selectAll(ctx, &runs, `
		SELECT id, sync_type, start_time, end_time, status, records_processed,
		       records_inserted, records_updated, error_message, api_calls_made
		FROM sync_history
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sync runs: %w", err)
	}
	return runs, nil
}

// StartExport inserts a running export_history row and returns its id.
func (s *Store) StartExport(ctx context.Context, exportType, exportConfig string) (int64, error) {
	var id int64
	err := s.get(ctx, &id, `
		INSERT INTO export_history (export_type, export_config, status, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`, exportType, exportConfig, string(domain.RunRunning), s.now())
	if err != nil {
		return 0, fmt.Errorf("start export: %w", err)
	}
	return id, nil
}

// FinishExport records the outcome of an export.
func (s *Store) FinishExport(ctx context.Context, run *domain.ExportRun) error {
	_, err := s.exec(ctx, `
		UPDATE export_history
		SET file_path = ?, sheet_url = ?, records_exported = ?, status = ?,
		    error_message = ?, completed_at = ?
		WHERE id = ?`,
		run.FilePath, run.SheetURL, run.RecordsExported, string(run.Status),
		run.ErrorMessage, s.now(), run.ID)
	if err != nil {
		return fmt.Errorf("finish export %d: %w", run.ID, err)
	}
	return nil
}

// RecentExports returns the newest exports.
func (s *Store) RecentExports(ctx context.Context, limit int) ([]domain.ExportRun, error) {
	var runs []domain.ExportRun
	err := s.selectAll(ctx, &runs, `
		SELECT id, export_type, export_config, file_path, sheet_url, records_exported,
		       status, error_message, created_at, completed_at
		FROM export_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent exports: %w", err)
	}
	return runs, nil
}

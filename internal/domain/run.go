package domain

import "time"

// RunStatus is the state of a sync or export run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun is a row of sync_history.
type SyncRun struct {
	ID               int64      `json:"id" db:"id"`
	SyncType         string     `json:"sync_type" db:"sync_type"`
	StartTime        time.Time  `json:"start_time" db:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty" db:"end_time"`
	Status           RunStatus  `json:"status" db:"status"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	RecordsInserted  int        `json:"records_inserted" db:"records_inserted"`
	RecordsUpdated   int        `json:"records_updated" db:"records_updated"`
	ErrorMessage     string     `json:"error_message,omitempty" db:"error_message"`
	APICallsMade     int        `json:"api_calls_made" db:"api_calls_made"`
}

// ExportRun is a row of export_history.
type ExportRun struct {
	ID              int64      `json:"id" db:"id"`
	ExportType      string     `json:"export_type" db:"export_type"`
	ExportConfig    string     `json:"export_config,omitempty" db:"export_config"`
	FilePath        string     `json:"file_path,omitempty" db:"file_path"`
	SheetURL        string     `json:"sheet_url,omitempty" db:"sheet_url"`
	RecordsExported int        `json:"records_exported" db:"records_exported"`
	Status          RunStatus  `json:"status" db:"status"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

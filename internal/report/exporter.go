package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-warehouse/internal/config"
	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// Export types recorded in export_history.
const (
	TypeCSV    = "csv"
	TypeXLSX   = "xlsx"
	TypeSheets = "google_sheets"
)

// DefaultQualityThreshold flags campaigns whose data_quality_score is lower.
const DefaultQualityThreshold = 0.85

// History records export runs.
type History interface {
	StartExport(ctx context.Context, exportType, exportConfig string) (int64, error)
	FinishExport(ctx context.Context, run *domain.ExportRun) error
}

// Archive stores produced files.
type Archive interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Location(key string) string
}

// Source provides the rows to export.
type Source interface {
	Performance(ctx context.Context, hours int) ([]CampaignPerformance, error)
}

// Sheets publishes rows as a spreadsheet.
type Sheets interface {
	Export(ctx context.Context, title string, rows []CampaignPerformance, shareWith []string) (*SheetResult, error)
}

// ExportResult describes one finished export.
type ExportResult struct {
	ExportID   int64          `json:"export_id"`
	Type       string         `json:"type"`
	Location   string         `json:"location,omitempty"`
	SheetURL   string         `json:"sheet_url,omitempty"`
	Records    int            `json:"records"`
	LowQuality []int64        `json:"low_quality,omitempty"`
	Duration   time.Duration  `json:"duration"`
	Config     map[string]any `json:"config,omitempty"`
}

// Exporter runs exports and records them in export_history.
type Exporter struct {
	source    Source
	history   History
	archive   Archive
	sheets    Sheets
	titles    *TitleRenderer
	cfg       config.ExportConfig
	threshold float64
	now       func() time.Time
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithSheets enables Google Sheets exports.
func WithSheets(s Sheets) ExporterOption {
	return func(e *Exporter) { e.sheets = s }
}

// WithQualityThreshold sets the score below which campaigns are flagged.
func WithQualityThreshold(t float64) ExporterOption {
	return func(e *Exporter) {
		if t > 0 {
			e.threshold = t
		}
	}
}

// WithExportClock overrides the clock used for titles and file names.
func WithExportClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an Exporter writing files to archive.
func NewExporter(source Source, history History, archive Archive, cfg config.ExportConfig, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		source:    source,
		history:   history,
		archive:   archive,
		titles:    NewTitleRenderer(),
		cfg:       cfg,
		threshold: DefaultQualityThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportCSV archives a flat CSV of the trailing hours.
func (e *Exporter) ExportCSV(ctx context.Context, hours int) (*ExportResult, error) {
	return e.exportFile(ctx, TypeCSV, hours, "csv", WriteCSV)
}

// ExportXLSX archives a workbook of the trailing hours.
func (e *Exporter) ExportXLSX(ctx context.Context, hours int) (*ExportResult, error) {
	return e.exportFile(ctx, TypeXLSX, hours, "xlsx", WriteXLSX)
}

// ExportSheets publishes the trailing hours to a new spreadsheet.
func (e *Exporter) ExportSheets(ctx context.Context, hours int) (*ExportResult, error) {
	if e.sheets == nil {
		return nil, errors.New("google sheets export is not configured")
	}
	return e.run(ctx, TypeSheets, hours, func(rows []CampaignPerformance, res *ExportResult, run *domain.ExportRun) error {
		tpl := e.cfg.SheetsTitle
		if tpl == "" {
			tpl = DefaultTitle
		}
		title, err := e.titles.Render(tpl, e.now(), map[string]interface{}{"hours": hours})
		if err != nil {
			return err
		}
		sr, err := e.sheets.Export(ctx, title, rows, e.cfg.ShareWith)
		if sr != nil {
			res.SheetURL = sr.URL
			run.SheetURL = sr.URL
		}
		return err
	})
}

func (e *Exporter) exportFile(ctx context.Context, exportType string, hours int, ext string, write func(io.Writer, []CampaignPerformance) error) (*ExportResult, error) {
	return e.run(ctx, exportType, hours, func(rows []CampaignPerformance, res *ExportResult, run *domain.ExportRun) error {
		var buf bytes.Buffer
		if err := write(&buf, rows); err != nil {
			return fmt.Errorf("write %s: %w", exportType, err)
		}
		key := e.fileKey(ext)
		if err := e.archive.Put(ctx, key, &buf); err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
		res.Location = e.archive.Location(key)
		run.FilePath = res.Location
		return nil
	})
}

func (e *Exporter) fileKey(ext string) string {
	dir := strings.Trim(e.cfg.OutputDir, "/")
	if dir == "" {
		dir = "exports"
	}
	name := fmt.Sprintf("campaign_performance_%s_%s.%s",
		e.now().UTC().Format("20060102_150405"), uuid.NewString()[:8], ext)
	return dir + "/" + name
}

func (e *Exporter) run(ctx context.Context, exportType string, hours int, produce func([]CampaignPerformance, *ExportResult, *domain.ExportRun) error) (*ExportResult, error) {
	started := time.Now()
	if hours <= 0 {
		hours = 24
	}
	cfgMap := map[string]any{"hours": hours}
	cfgJSON, _ := json.Marshal(cfgMap)

	id, err := e.history.StartExport(ctx, exportType, string(cfgJSON))
	if err != nil {
		return nil, err
	}
	res := &ExportResult{ExportID: id, Type: exportType, Config: cfgMap}
	run := &domain.ExportRun{ID: id, ExportType: exportType, ExportConfig: string(cfgJSON)}

	err = func() error {
		rows, err := e.source.Performance(ctx, hours)
		if err != nil {
			return err
		}
		res.Records = len(rows)
		run.RecordsExported = len(rows)
		for _, r := range LowQuality(rows, e.threshold) {
			res.LowQuality = append(res.LowQuality, r.CampaignID)
		}
		if len(res.LowQuality) > 0 {
			logger.Warn("report: campaigns below data quality threshold",
				"count", len(res.LowQuality), "threshold", e.threshold)
		}
		return produce(rows, res, run)
	}()
	res.Duration = time.Since(started)

	run.Status = domain.RunCompleted
	if err != nil {
		run.Status = domain.RunFailed
		run.ErrorMessage = err.Error()
	}
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if ferr := e.history.FinishExport(finishCtx, run); ferr != nil {
		logger.Error("report: recording export failed", "export_id", id, "error", ferr)
	}

	if err != nil {
		logger.Error("report: export failed", "type", exportType, "export_id", id, "error", err)
		return res, fmt.Errorf("%s export: %w", exportType, err)
	}
	logger.Info("report: export completed", "type", exportType, "export_id", id,
		"records", res.Records, "location", res.Location, "sheet_url", res.SheetURL)
	return res, nil
}

package report

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// PerformanceSheet is the tab the Sheets export writes.
const PerformanceSheet = "Campaign Performance"

var sheetsScopes = []string{sheets.SpreadsheetsScope, drive.DriveScope}

// SheetsExporter writes hierarchical reports to new Google spreadsheets.
type SheetsExporter struct {
	sheets *sheets.Service
	drive  *drive.Service
}

// NewSheetsExporter authenticates with the service account file at
// credentialsPath, or with application default credentials when the path
// is empty.
func NewSheetsExporter(ctx context.Context, credentialsPath string) (*SheetsExporter, error) {
	var creds *google.Credentials
	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, sheetsScopes...)
		if err != nil {
			return nil, fmt.Errorf("parse google credentials: %w", err)
		}
	} else {
		var err error
		creds, err = google.FindDefaultCredentials(ctx, sheetsScopes...)
		if err != nil {
			return nil, fmt.Errorf("find default google credentials: %w", err)
		}
	}
	return NewSheetsExporterWithOptions(ctx, option.WithCredentials(creds))
}

// NewSheetsExporterWithOptions builds the API clients from client options.
func NewSheetsExporterWithOptions(ctx context.Context, opts ...option.ClientOption) (*SheetsExporter, error) {
	s, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	d, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &SheetsExporter{sheets: s, drive: d}, nil
}

// SheetResult identifies the created spreadsheet.
type SheetResult struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	URL           string `json:"url"`
	UpdatedCells  int64  `json:"updated_cells"`
}

// Export creates a spreadsheet titled title, writes the hierarchical rows,
// formats the header and shares the file with shareWith as writers.
func (e *SheetsExporter) Export(ctx context.Context, title string, rows []CampaignPerformance, shareWith []string) (*SheetResult, error) {
	values := HierarchicalRows(rows)

	rowCount := int64(len(values))
	if rowCount < 1000 {
		rowCount = 1000
	}
	created, err := e.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:      title,
			Locale:     "en_US",
			AutoRecalc: "ON_CHANGE",
			TimeZone:   "America/New_York",
		},
		Sheets: []*sheets.Sheet{{
			Properties: &sheets.SheetProperties{
				Title: PerformanceSheet,
				GridProperties: &sheets.GridProperties{
					RowCount:    rowCount,
					ColumnCount: int64(len(Columns)),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create spreadsheet: %w", err)
	}
	res := &SheetResult{SpreadsheetID: created.SpreadsheetId, URL: created.SpreadsheetUrl}
	if res.URL == "" {
		res.URL = "https://docs.google.com/spreadsheets/d/" + created.SpreadsheetId
	}

	var sheetID int64
	if len(created.Sheets) > 0 && created.Sheets[0].Properties != nil {
		sheetID = created.Sheets[0].Properties.SheetId
	}

	upd, err := e.sheets.Spreadsheets.Values.Update(created.SpreadsheetId, "'"+PerformanceSheet+"'!A1", &sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         values,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return res, fmt.Errorf("write values: %w", err)
	}
	res.UpdatedCells = upd.UpdatedCells

	if _, err := e.sheets.Spreadsheets.BatchUpdate(created.SpreadsheetId, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: formatRequests(sheetID),
	}).Context(ctx).Do(); err != nil {
		return res, fmt.Errorf("format sheet: %w", err)
	}

	for _, email := range shareWith {
		_, err := e.drive.Permissions.Create(created.SpreadsheetId, &drive.Permission{
			Type:         "user",
			Role:         "writer",
			EmailAddress: email,
		}).SendNotificationEmail(false).Context(ctx).Do()
		if err != nil {
			logger.Warn("report: sharing spreadsheet failed", "spreadsheet_id", created.SpreadsheetId, "error", err)
		}
	}

	logger.Info("report: spreadsheet exported", "spreadsheet_id", res.SpreadsheetID, "cells", res.UpdatedCells)
	return res, nil
}

func formatRequests(sheetID int64) []*sheets.Request {
	force := []string{"SheetId"}
	reqs := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(Columns)),
					ForceSendFields:  force,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:         sheetID,
					GridProperties:  &sheets.GridProperties{FrozenRowCount: 1},
					ForceSendFields: force,
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}
	for i, c := range Columns {
		reqs = append(reqs, &sheets.Request{
			UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "COLUMNS",
					StartIndex:      int64(i),
					EndIndex:        int64(i + 1),
					ForceSendFields: force,
				},
				Properties: &sheets.DimensionProperties{PixelSize: int64(c.Width)},
				Fields:     "pixelSize",
			},
		})
	}
	return reqs
}

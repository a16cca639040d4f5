package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the XLSX export.
const (
	SheetCampaigns = "Campaigns"
	SheetHierarchy = "Hierarchy"
)

// WriteCSV writes one flat row per campaign with campaign_id, the export
// columns and data_quality_score.
func WriteCSV(w io.Writer, rows []CampaignPerformance) error {
	cw := csv.NewWriter(w)
	header := []string{"campaign_id"}
	for _, c := range Columns {
		header = append(header, c.Key)
	}
	header = append(header, "data_quality_score")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{strconv.FormatInt(r.CampaignID, 10)}
		for _, c := range Columns {
			rec = append(rec, c.Raw(r))
		}
		rec = append(rec, strconv.FormatFloat(r.DataQualityScore, 'f', 2, 64))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with a flat Campaigns sheet and a Hierarchy
// sheet grouped like the Sheets export.
func WriteXLSX(w io.Writer, rows []CampaignPerformance) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetCampaigns); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetHierarchy); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6E6E6"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	flat := [][]interface{}{append([]interface{}{"Campaign ID"}, Headers()...)}
	for _, r := range rows {
		row := []interface{}{r.CampaignID}
		for _, c := range Columns {
			row = append(row, c.value(r))
		}
		flat = append(flat, row)
	}
	if err := writeSheet(f, SheetCampaigns, flat, bold, 1); err != nil {
		return err
	}
	if err := writeSheet(f, SheetHierarchy, HierarchicalRows(rows), bold, 0); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeSheet writes rows, bolds and freezes the header and sets the column
// widths. offset shifts the layout columns right by that many columns.
func writeSheet(f *excelize.File, sheet string, rows [][]interface{}, headerStyle, offset int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	for i, c := range Columns {
		col, err := excelize.ColumnNumberToName(i + 1 + offset)
		if err != nil {
			return err
		}
		// Sheets widths are pixels, excelize widths are characters.
		if err := f.SetColWidth(sheet, col, col, float64(c.Width)/7); err != nil {
			return err
		}
	}
	return nil
}

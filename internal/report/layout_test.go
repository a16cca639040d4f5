package report

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func perf(id int64, name, network, targeting string, sessions, regs, cards int64) CampaignPerformance {
	p := CampaignPerformance{
		CampaignID: id, CampaignName: name,
		Network: network, Domain: "Adult", Placement: "Banner", Targeting: targeting, Special: "Standard",
		Sessions: sessions, Registrations: regs, CreditCards: cards,
	}
	p.derive()
	return p
}

func sampleRows() []CampaignPerformance {
	return []CampaignPerformance{
		perf(1, "Zeta", "Pornhub", "US", 1000, 50, 5),
		perf(2, "Alpha", "Pornhub", "US", 200, 4, 1),
		perf(3, "Gamma", "Pornhub", "UK", 300, 30, 0),
		perf(4, "Beta", "Reddit", "US", 0, 0, 0),
	}
}

func TestColumnCell(t *testing.T) {
	p := perf(1, "Zeta", "Pornhub", "US", 1000, 50, 5)
	cells := map[string]interface{}{}
	for _, c := range Columns {
		cells[c.Key] = c.Cell(p)
	}
	assert.Equal(t, "Zeta", cells["campaign_name"])
	assert.Equal(t, int64(1000), cells["sessions"])
	assert.Equal(t, "5.00%", cells["reg_percentage"])
	assert.Equal(t, "10.00%", cells["cc_conv_percentage"])
	assert.Equal(t, "133.34", cells["clicks_to_reg_ratio"])
	assert.Equal(t, "10.00", cells["reg_to_cc_ratio"])
}

func TestHierarchicalRows(t *testing.T) {
	out := HierarchicalRows(sampleRows())
	require.Len(t, out, 20)
	assert.Equal(t, Headers(), out[0])

	label := func(row []interface{}) (int, string) {
		for i, v := range row {
			if s, ok := v.(string); ok && s != "" {
				return i, s
			}
		}
		return -1, ""
	}
	want := []struct {
		row   int
		col   int
		label string
	}{
		{1, 0, "NETWORK: Pornhub"},
		{2, 1, "DOMAIN: Adult"},
		{3, 2, "PLACEMENT: Banner"},
		{4, 3, "TARGETING: UK"},
		{5, 4, "SPECIAL: Standard"},
		{6, 0, "Gamma"},
		{7, -1, ""},
		{8, 3, "TARGETING: US"},
		{9, 4, "SPECIAL: Standard"},
		{10, 0, "Alpha"},
		{11, 0, "Zeta"},
		{12, -1, ""},
		{13, 0, "NETWORK: Reddit"},
		{18, 0, "Beta"},
		{19, -1, ""},
	}
	for _, w := range want {
		col, got := label(out[w.row])
		assert.Equal(t, w.col, col, "row %d", w.row)
		assert.Equal(t, w.label, got, "row %d", w.row)
	}
	for _, row := range out {
		assert.Len(t, row, len(Columns))
	}
}

func TestHierarchicalRowsEmpty(t *testing.T) {
	out := HierarchicalRows(nil)
	require.Len(t, out, 1)
	assert.Equal(t, Headers(), out[0])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()[:1]))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header := records[0]
	assert.Equal(t, "campaign_id", header[0])
	assert.Equal(t, "campaign_name", header[1])
	assert.Equal(t, "data_quality_score", header[len(header)-1])
	assert.Len(t, header, len(Columns)+2)

	row := map[string]string{}
	for i, h := range header {
		row[h] = records[1][i]
	}
	assert.Equal(t, "1", row["campaign_id"])
	assert.Equal(t, "Zeta", row["campaign_name"])
	assert.Equal(t, "1000", row["sessions"])
	assert.Equal(t, "5.00", row["reg_percentage"])
	assert.Equal(t, "1.00", row["data_quality_score"])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetCampaigns, SheetHierarchy}, f.GetSheetList())

	flat, err := f.GetRows(SheetCampaigns)
	require.NoError(t, err)
	require.Len(t, flat, 5)
	assert.Equal(t, "Campaign ID", flat[0][0])
	assert.Equal(t, "Campaign Name", flat[0][1])
	assert.Equal(t, []string{"1", "Zeta", "Pornhub"}, flat[1][:3])

	grouped, err := f.GetRows(SheetHierarchy)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(grouped), 3)
	assert.Equal(t, "Campaign Name", grouped[0][0])
	assert.Equal(t, "NETWORK: Pornhub", grouped[1][0])
	assert.Equal(t, "DOMAIN: Adult", grouped[2][1])

	panes, err := f.GetPanes(SheetHierarchy)
	require.NoError(t, err)
	assert.True(t, panes.Freeze)
	assert.Equal(t, 1, panes.YSplit)
}

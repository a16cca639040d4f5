package report

import (
	"fmt"
	"sort"
	"strconv"
)

// Column formats.
const (
	FormatText       = ""
	FormatNumber     = "number"
	FormatPercentage = "percentage"
	FormatDecimal    = "decimal"
)

// Column describes one exported column.
type Column struct {
	Header string
	Key    string
	Width  int
	Format string
	value  func(p CampaignPerformance) interface{}
}

// Columns is the export column layout.
var Columns = []Column{
	{Header: "Campaign Name", Key: "campaign_name", Width: 250, value: func(p CampaignPerformance) interface{} { return p.CampaignName }},
	{Header: "Network", Key: "network", Width: 120, value: func(p CampaignPerformance) interface{} { return p.Network }},
	{Header: "Domain", Key: "domain", Width: 150, value: func(p CampaignPerformance) interface{} { return p.Domain }},
	{Header: "Placement", Key: "placement", Width: 120, value: func(p CampaignPerformance) interface{} { return p.Placement }},
	{Header: "Targeting", Key: "targeting", Width: 150, value: func(p CampaignPerformance) interface{} { return p.Targeting }},
	{Header: "Special", Key: "special", Width: 100, value: func(p CampaignPerformance) interface{} { return p.Special }},
	{Header: "Sessions", Key: "sessions", Width: 90, Format: FormatNumber, value: func(p CampaignPerformance) interface{} { return p.Sessions }},
	{Header: "Registrations", Key: "registrations", Width: 120, Format: FormatNumber, value: func(p CampaignPerformance) interface{} { return p.Registrations }},
	{Header: "CC's", Key: "credit_cards", Width: 80, Format: FormatNumber, value: func(p CampaignPerformance) interface{} { return p.CreditCards }},
	{Header: "Reg%", Key: "reg_percentage", Width: 80, Format: FormatPercentage, value: func(p CampaignPerformance) interface{} { return p.RegPercentage }},
	{Header: "CC Conv%", Key: "cc_conv_percentage", Width: 100, Format: FormatPercentage, value: func(p CampaignPerformance) interface{} { return p.CCConvPercentage }},
	{Header: "Clicks:Reg", Key: "clicks_to_reg_ratio", Width: 100, Format: FormatDecimal, value: func(p CampaignPerformance) interface{} { return p.ClicksToRegRatio }},
	{Header: "Reg:CC", Key: "reg_to_cc_ratio", Width: 80, Format: FormatDecimal, value: func(p CampaignPerformance) interface{} { return p.RegToCCRatio }},
}

// Cell returns the display value of a column: numbers stay integers,
// percentages and decimals become two-decimal strings.
func (c Column) Cell(p CampaignPerformance) interface{} {
	v := c.value(p)
	switch c.Format {
	case FormatPercentage:
		return fmt.Sprintf("%.2f%%", v.(float64))
	case FormatDecimal:
		return fmt.Sprintf("%.2f", v.(float64))
	}
	return v
}

// Raw returns the unformatted value as a string.
func (c Column) Raw(p CampaignPerformance) string {
	switch v := c.value(p).(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return ""
}

// Headers returns the column headers.
func Headers() []interface{} {
	out := make([]interface{}, len(Columns))
	for i, c := range Columns {
		out[i] = c.Header
	}
	return out
}

func blankRow() []interface{} {
	row := make([]interface{}, len(Columns))
	for i := range row {
		row[i] = ""
	}
	return row
}

func groupRow(depth int, label string) []interface{} {
	row := blankRow()
	row[depth] = label
	return row
}

// HierarchicalRows lays campaigns out under NETWORK / DOMAIN / PLACEMENT /
// TARGETING / SPECIAL group headers, each indented one column deeper than
// its parent. Groups sort by value, campaigns by name, and a blank row
// follows every special group. The first row is the header.
func HierarchicalRows(rows []CampaignPerformance) [][]interface{} {
	type key struct{ network, domain, placement, targeting, special string }
	groups := map[key][]CampaignPerformance{}
	keys := make([]key, 0)
	for _, r := range rows {
		k := key{r.Network, r.Domain, r.Placement, r.Targeting, r.Special}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.network != b.network {
			return a.network < b.network
		}
		if a.domain != b.domain {
			return a.domain < b.domain
		}
		if a.placement != b.placement {
			return a.placement < b.placement
		}
		if a.targeting != b.targeting {
			return a.targeting < b.targeting
		}
		return a.special < b.special
	})

	out := [][]interface{}{Headers()}
	var prev *key
	for i := range keys {
		k := keys[i]
		newNetwork := prev == nil || prev.network != k.network
		newDomain := newNetwork || prev.domain != k.domain
		newPlacement := newDomain || prev.placement != k.placement
		newTargeting := newPlacement || prev.targeting != k.targeting
		if newNetwork {
			out = append(out, groupRow(0, "NETWORK: "+k.network))
		}
		if newDomain {
			out = append(out, groupRow(1, "DOMAIN: "+k.domain))
		}
		if newPlacement {
			out = append(out, groupRow(2, "PLACEMENT: "+k.placement))
		}
		if newTargeting {
			out = append(out, groupRow(3, "TARGETING: "+k.targeting))
		}
		out = append(out, groupRow(4, "SPECIAL: "+k.special))

		campaigns := groups[k]
		sort.SliceStable(campaigns, func(i, j int) bool { return campaigns[i].CampaignName < campaigns[j].CampaignName })
		for _, c := range campaigns {
			row := make([]interface{}, len(Columns))
			for ci, col := range Columns {
				row[ci] = col.Cell(c)
			}
			out = append(out, row)
		}
		out = append(out, blankRow())
		prev = &keys[i]
	}
	return out
}

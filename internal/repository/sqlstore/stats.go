package sqlstore

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

// Counts are the table sizes reported by status.
type Counts struct {
	Campaigns       int `json:"campaigns" db:"campaigns"`
	HourlyRows      int `json:"hourly_rows" db:"hourly_rows"`
	HierarchyRows   int `json:"hierarchy_rows" db:"hierarchy_rows"`
	MappedCampaigns int `json:"mapped_campaigns" db:"mapped_campaigns"`
	ActiveOverrides int `json:"active_overrides" db:"active_overrides"`
	Rules           int `json:"rules" db:"rules"`
}

// MappedRatio is the share of hierarchy rows with a known network.
func (c Counts) MappedRatio() float64 {
	if c.HierarchyRows == 0 {
		return 0
	}
	return float64(c.MappedCampaigns) / float64(c.HierarchyRows)
}

// Counts returns the current table sizes.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.get(ctx, &c, `
		SELECT
			(SELECT COUNT(*) FROM campaigns) AS campaigns,
			(SELECT COUNT(*) FROM hourly_data) AS hourly_rows,
			(SELECT COUNT(*) FROM campaign_hierarchy) AS hierarchy_rows,
			(SELECT COUNT(*) FROM campaign_hierarchy WHERE network <> ?) AS mapped_campaigns,
			(SELECT COUNT(*) FROM campaign_hierarchy_overrides WHERE is_active = ?) AS active_overrides,
			(SELECT COUNT(*) FROM hierarchy_rules) AS rules`,
		domain.DefaultNetwork, true)
	if err != nil {
		return nil, fmt.Errorf("counts: %w", err)
	}
	return &c, nil
}

// Confidence bucket labels.
const (
	BucketHigh   = "high"
	BucketMedium = "medium"
	BucketLow    = "low"
)

// ConfidenceBuckets counts hierarchy rows by mapping confidence:
// high >= 0.8, medium >= 0.5, low otherwise.
func (s *Store) ConfidenceBuckets(ctx context.Context) (map[string]int, error) {
	var row struct {
		High   int `db:"high"`
		Medium int `db:"medium"`
		Low    int `db:"low"`
	}
	err := s.get(ctx, &row, `
		SELECT
			COALESCE(SUM(CASE WHEN mapping_confidence >= 0.8 THEN 1 ELSE 0 END), 0) AS high,
			COALESCE(SUM(CASE WHEN mapping_confidence >= 0.5 AND mapping_confidence < 0.8 THEN 1 ELSE 0 END), 0) AS medium,
			COALESCE(SUM(CASE WHEN mapping_confidence < 0.5 THEN 1 ELSE 0 END), 0) AS low
		FROM campaign_hierarchy`)
	if err != nil {
		return nil, fmt.Errorf("confidence buckets: %w", err)
	}
	return map[string]int{BucketHigh: row.High, BucketMedium: row.Medium, BucketLow: row.Low}, nil
}

// QualityStats feed the post-sync data quality checks.
type QualityStats struct {
	Campaigns                   int `json:"campaigns" db:"campaigns"`
	HierarchyRows               int `json:"hierarchy_rows" db:"hierarchy_rows"`
	MappedCampaigns             int `json:"mapped_campaigns" db:"mapped_campaigns"`
	LowConfidence               int `json:"low_confidence" db:"low_confidence"`
	NoHourlyData                int `json:"no_hourly_data" db:"no_hourly_data"`
	SuspiciousRegistrationRate  int `json:"suspicious_registration_rate" db:"suspicious_registration_rate"`
	RegistrationsExceedSessions int `json:"registrations_exceed_sessions" db:"registrations_exceed_sessions"`
}

// QualityStats computes the quality counters. Metric checks only consider
// hours at or after sinceHour.
func (s *Store) QualityStats(ctx context.Context, confidenceThreshold float64, sinceHour int64) (*QualityStats, error) {
	var q QualityStats
	err := s.get(ctx, &q, `
		WITH totals AS (
			SELECT campaign_id, SUM(sessions) AS sessions, SUM(registrations) AS registrations
			FROM hourly_data
			WHERE unix_hour >= ?
			GROUP BY campaign_id
		)
		SELECT
			(SELECT COUNT(*) FROM campaigns WHERE deleted_at IS NULL) AS campaigns,
			(SELECT COUNT(*) FROM campaign_hierarchy) AS hierarchy_rows,
			(SELECT COUNT(*) FROM campaign_hierarchy WHERE network <> ?) AS mapped_campaigns,
			(SELECT COUNT(*) FROM campaign_hierarchy WHERE mapping_confidence < ?) AS low_confidence,
			(SELECT COUNT(*) FROM campaigns c
			  WHERE c.deleted_at IS NULL
			    AND NOT EXISTS (SELECT 1 FROM hourly_data h WHERE h.campaign_id = c.id)) AS no_hourly_data,
			(SELECT COUNT(*) FROM totals
			  WHERE sessions > 0 AND registrations * 2 > sessions) AS suspicious_registration_rate,
			(SELECT COUNT(*) FROM totals WHERE registrations > sessions) AS registrations_exceed_sessions`,
		sinceHour, domain.DefaultNetwork, confidenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("quality stats: %w", err)
	}
	return &q, nil
}

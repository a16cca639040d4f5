package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

// Store runs the reporting queries.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore creates a Store over an sqlx handle whose driver name selects
// the placeholder style.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the clock used for the trailing window.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

const performanceQuery = `
	SELECT
		c.id AS campaign_id,
		c.name AS campaign_name,
		COALESCE(h.network, 'Unknown') AS network,
		COALESCE(h.domain, 'Unknown') AS domain,
		COALESCE(h.placement, 'Unknown') AS placement,
		COALESCE(h.targeting, 'Unknown') AS targeting,
		COALESCE(h.special, 'Unknown') AS special,
		COALESCE(h.mapping_confidence, 0) AS mapping_confidence,
		COALESCE(SUM(d.sessions), 0) AS sessions,
		COALESCE(SUM(d.registrations), 0) AS registrations,
		COALESCE(SUM(d.credit_cards), 0) AS credit_cards,
		COALESCE(SUM(d.email_accounts), 0) AS email_accounts,
		COALESCE(SUM(d.google_accounts), 0) AS google_accounts,
		COALESCE(SUM(d.total_accounts), 0) AS total_accounts,
		COALESCE(SUM(d.messages), 0) AS messages,
		COALESCE(SUM(d.companion_chats), 0) AS companion_chats,
		COALESCE(SUM(d.total_user_chats), 0) AS total_user_chats,
		COALESCE(SUM(d.media), 0) AS media,
		COALESCE(SUM(d.payment_methods), 0) AS payment_methods,
		COALESCE(SUM(d.converted_users), 0) AS converted_users,
		COALESCE(SUM(d.terms_acceptances), 0) AS terms_acceptances
	FROM campaigns c
	LEFT JOIN campaign_hierarchy h ON h.campaign_id = c.id
	LEFT JOIN hourly_data d ON d.campaign_id = c.id AND d.unix_hour >= ?
	WHERE c.deleted_at IS NULL
	GROUP BY c.id, c.name, h.network, h.domain, h.placement, h.targeting, h.special, h.mapping_confidence
	ORDER BY c.name, c.id`

// Performance summarises every live campaign over the trailing hours
// (24 when hours <= 0).
func (s *Store) Performance(ctx context.Context, hours int) ([]CampaignPerformance, error) {
	if hours <= 0 {
		hours = 24
	}
	since := domain.UnixHourOf(s.now()) - int64(hours)

	var rows []CampaignPerformance
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(performanceQuery), since); err != nil {
		return nil, fmt.Errorf("performance summary: %w", err)
	}
	for i := range rows {
		rows[i].derive()
	}
	return rows, nil
}

// RangeSummary is one campaign's activity inside a date range.
type RangeSummary struct {
	CampaignID            int64     `json:"campaign_id" db:"campaign_id"`
	CampaignName          string    `json:"campaign_name" db:"campaign_name"`
	Description           string    `json:"description" db:"description"`
	Network               string    `json:"network" db:"network"`
	Domain                string    `json:"domain" db:"domain"`
	Placement             string    `json:"placement" db:"placement"`
	Targeting             string    `json:"targeting" db:"targeting"`
	Special               string    `json:"special" db:"special"`
	TotalSessions         int64     `json:"total_sessions" db:"total_sessions"`
	TotalRegistrations    int64     `json:"total_registrations" db:"total_registrations"`
	TotalCreditCards      int64     `json:"total_credit_cards" db:"total_credit_cards"`
	TotalMessages         int64     `json:"total_messages" db:"total_messages"`
	ActiveDays            int       `json:"active_days" db:"active_days"`
	TotalHours            int       `json:"total_hours" db:"total_hours"`
	FirstHour             int64     `json:"-" db:"first_hour"`
	LastHour              int64     `json:"-" db:"last_hour"`
	FirstActivity         time.Time `json:"first_activity" db:"-"`
	LastActivity          time.Time `json:"last_activity" db:"-"`
	RegPercentage         float64   `json:"reg_percentage" db:"-"`
	CCConvPercentage      float64   `json:"cc_conv_percentage" db:"-"`
	AvgDailySessions      float64   `json:"avg_daily_sessions" db:"-"`
	AvgDailyRegistrations float64   `json:"avg_daily_registrations" db:"-"`
}

const rangeQuery = `
	SELECT
		d.campaign_id,
		c.name AS campaign_name,
		c.description,
		COALESCE(h.network, 'Unknown') AS network,
		COALESCE(h.domain, 'Unknown') AS domain,
		COALESCE(h.placement, 'Unknown') AS placement,
		COALESCE(h.targeting, 'Unknown') AS targeting,
		COALESCE(h.special, 'Unknown') AS special,
		SUM(d.sessions) AS total_sessions,
		SUM(d.registrations) AS total_registrations,
		SUM(d.credit_cards) AS total_credit_cards,
		SUM(d.messages) AS total_messages,
		COUNT(DISTINCT d.unix_hour / 24) AS active_days,
		COUNT(*) AS total_hours,
		MIN(d.unix_hour) AS first_hour,
		MAX(d.unix_hour) AS last_hour
	FROM hourly_data d
	JOIN campaigns c ON c.id = d.campaign_id
	LEFT JOIN campaign_hierarchy h ON h.campaign_id = c.id
	WHERE d.unix_hour >= ? AND d.unix_hour <= ?
	  AND (d.sessions > 0 OR d.registrations > 0 OR d.credit_cards > 0)
	GROUP BY d.campaign_id, c.name, c.description, h.network, h.domain, h.placement, h.targeting, h.special
	ORDER BY SUM(d.sessions) DESC, d.campaign_id`

// RangeSummaries sums activity per campaign for the hours from start to end
// inclusive. Hours with no sessions, registrations or credit cards are
// ignored.
func (s *Store) RangeSummaries(ctx context.Context, start, end time.Time) ([]RangeSummary, error) {
	var rows []RangeSummary
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(rangeQuery),
		domain.UnixHourOf(start), domain.UnixHourOf(end))
	if err != nil {
		return nil, fmt.Errorf("range summary: %w", err)
	}
	for i := range rows {
		r := &rows[i]
		r.FirstActivity = domain.HourStart(r.FirstHour)
		r.LastActivity = domain.HourStart(r.LastHour)
		ratios := ComputeRatios(r.TotalSessions, r.TotalRegistrations, r.TotalCreditCards)
		r.RegPercentage = ratios.RegPercentage
		r.CCConvPercentage = ratios.CCConvPercentage
		if r.ActiveDays > 0 {
			r.AvgDailySessions = math.Round(float64(r.TotalSessions)/float64(r.ActiveDays)*10) / 10
			r.AvgDailyRegistrations = math.Round(float64(r.TotalRegistrations)/float64(r.ActiveDays)*10) / 10
		}
	}
	return rows, nil
}

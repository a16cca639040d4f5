package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

type overrideRow struct {
	ID           string         `db:"id"`
	CampaignID   int64          `db:"campaign_id"`
	Network      sql.NullString `db:"network"`
	Domain       sql.NullString `db:"domain"`
	Placement    sql.NullString `db:"placement"`
	Targeting    sql.NullString `db:"targeting"`
	Special      sql.NullString `db:"special"`
	Reason       string         `db:"override_reason"`
	OverriddenBy string         `db:"overridden_by"`
	OverriddenAt time.Time      `db:"overridden_at"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r overrideRow) override() domain.Override {
	return domain.Override{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		OverrideFields: domain.OverrideFields{
			Network:   stringPtr(r.Network),
			Domain:    stringPtr(r.Domain),
			Placement: stringPtr(r.Placement),
			Targeting: stringPtr(r.Targeting),
			Special:   stringPtr(r.Special),
		},
		Reason:       r.Reason,
		OverriddenBy: r.OverriddenBy,
		OverriddenAt: r.OverriddenAt,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const overrideColumns = `id, campaign_id, network, domain, placement, targeting, special,
	override_reason, overridden_by, overridden_at, is_active, created_at, updated_at`

// GetActiveOverride returns the campaign's active override.
func (s *Store) GetActiveOverride(ctx context.Context, campaignID int64) (*domain.Override, error) {
	var row overrideRow
	err := s.get(ctx, &row, `
		SELECT `+overrideColumns+`
		FROM campaign_hierarchy_overrides
		WHERE campaign_id = ? AND is_active = ?
		ORDER BY overridden_at DESC
		LIMIT 1`, campaignID, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hierarchy.ErrNoActiveOverride
	}
	if err != nil {
		return nil, fmt.Errorf("get active override: %w", err)
	}
	o := row.override()
	return &o, nil
}

// DeactivateOverrides clears is_active on the campaign's active overrides.
func (s *Store) DeactivateOverrides(ctx context.Context, campaignID int64, at time.Time) (int64, error) {
	res, err := s.exec(ctx, `
		UPDATE campaign_hierarchy_overrides
		SET is_active = ?, updated_at = ?
		WHERE campaign_id = ? AND is_active = ?`, false, at.UTC(), campaignID, true)
	if err != nil {
		return 0, fmt.Errorf("deactivate overrides: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate overrides: %w", err)
	}
	return n, nil
}

// InsertOverride appends o to the override log.
func (s *Store) InsertOverride(ctx context.Context, o *domain.Override) error {
	_, err := s.exec(ctx, `
		INSERT INTO campaign_hierarchy_overrides (`+overrideColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CampaignID,
		nullString(o.Network), nullString(o.Domain), nullString(o.Placement),
		nullString(o.Targeting), nullString(o.Special),
		o.Reason, o.OverriddenBy, o.OverriddenAt.UTC(), o.IsActive,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	return nil
}

// OverrideHistory returns up to limit overrides of a campaign, newest first.
func (s *Store) OverrideHistory(ctx context.Context, campaignID int64, limit int) ([]domain.Override, error) {
	var rows []overrideRow
	err := s.selectAll(ctx, &rows, `
		SELECT `+overrideColumns+`
		FROM campaign_hierarchy_overrides
		WHERE campaign_id = ?
		ORDER BY overridden_at DESC, created_at DESC
		LIMIT ?`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("override history: %w", err)
	}
	out := make([]domain.Override, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.override())
	}
	return out, nil
}

// CountActiveOverrides returns the number of campaigns with an active override.
func (s *Store) CountActiveOverrides(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM campaign_hierarchy_overrides WHERE is_active = ?`, true); err != nil {
		return 0, fmt.Errorf("count active overrides: %w", err)
	}
	return n, nil
}

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

type hierarchyRow struct {
	CampaignID        int64     `db:"campaign_id"`
	CampaignName      string    `db:"campaign_name"`
	Network           string    `db:"network"`
	Domain            string    `db:"domain"`
	Placement         string    `db:"placement"`
	Targeting         string    `db:"targeting"`
	Special           string    `db:"special"`
	MappingConfidence float64   `db:"mapping_confidence"`
	RuleNetwork       string    `db:"rule_network"`
	RuleDomain        string    `db:"rule_domain"`
	RulePlacement     string    `db:"rule_placement"`
	RuleTargeting     string    `db:"rule_targeting"`
	RuleSpecial       string    `db:"rule_special"`
	RuleConfidence    float64   `db:"rule_confidence"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r hierarchyRow) record() *domain.HierarchyRecord {
	return &domain.HierarchyRecord{
		CampaignID:   r.CampaignID,
		CampaignName: r.CampaignName,
		Hierarchy: domain.Hierarchy{
			Network: r.Network, Domain: r.Domain, Placement: r.Placement,
			Targeting: r.Targeting, Special: r.Special,
		},
		MappingConfidence: r.MappingConfidence,
		RuleBased: domain.Hierarchy{
			Network: r.RuleNetwork, Domain: r.RuleDomain, Placement: r.RulePlacement,
			Targeting: r.RuleTargeting, Special: r.RuleSpecial,
		},
		RuleConfidence: r.RuleConfidence,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const hierarchyColumns = `campaign_id, campaign_name, network, domain, placement, targeting, special,
	mapping_confidence, rule_network, rule_domain, rule_placement, rule_targeting, rule_special,
	rule_confidence, created_at, updated_at`

// GetHierarchy returns the campaign_hierarchy row for a campaign.
func (s *Store) GetHierarchy(ctx context.Context, campaignID int64) (*domain.HierarchyRecord, error) {
	var row hierarchyRow
	err := s.get(ctx, &row, `SELECT `+hierarchyColumns+` FROM campaign_hierarchy WHERE campaign_id = ?`, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hierarchy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hierarchy: %w", err)
	}
	return row.record(), nil
}

// UpsertHierarchy writes the single row for rec.CampaignID, keeping the
// original created_at on update.
func (s *Store) UpsertHierarchy(ctx context.Context, rec *domain.HierarchyRecord) error {
	_, err := s.exec(ctx, `
		INSERT INTO campaign_hierarchy (`+hierarchyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id) DO UPDATE SET
			campaign_name = excluded.campaign_name,
			network = excluded.network,
			domain = excluded.domain,
			placement = excluded.placement,
			targeting = excluded.targeting,
			special = excluded.special,
			mapping_confidence = excluded.mapping_confidence,
			rule_network = excluded.rule_network,
			rule_domain = excluded.rule_domain,
			rule_placement = excluded.rule_placement,
			rule_targeting = excluded.rule_targeting,
			rule_special = excluded.rule_special,
			rule_confidence = excluded.rule_confidence,
			updated_at = excluded.updated_at
	`,
		rec.CampaignID, rec.CampaignName,
		rec.Network, rec.Domain, rec.Placement, rec.Targeting, rec.Special,
		rec.MappingConfidence,
		rec.RuleBased.Network, rec.RuleBased.Domain, rec.RuleBased.Placement,
		rec.RuleBased.Targeting, rec.RuleBased.Special,
		rec.RuleConfidence, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert hierarchy: %w", err)
	}
	return nil
}

// ListHierarchy returns every hierarchy row ordered by campaign id.
func (s *Store) ListHierarchy(ctx context.Context) ([]domain.HierarchyRecord, error) {
	var rows []hierarchyRow
	if err := s.selectAll(ctx, &rows, `SELECT `+hierarchyColumns+` FROM campaign_hierarchy ORDER BY campaign_id`); err != nil {
		return nil, fmt.Errorf("list hierarchy: %w", err)
	}
	out := make([]domain.HierarchyRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.record())
	}
	return out, nil
}

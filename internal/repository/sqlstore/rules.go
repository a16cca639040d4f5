package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/campaign-warehouse/internal/domain"
)

type ruleRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"rule_name"`
	PatternType  string    `db:"pattern_type"`
	PatternValue string    `db:"pattern_value"`
	Network      string    `db:"network"`
	Domain       string    `db:"domain"`
	Placement    string    `db:"placement"`
	Targeting    string    `db:"targeting"`
	Special      string    `db:"special"`
	Priority     int       `db:"priority"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r ruleRow) stored() domain.StoredRule {
	return domain.StoredRule{
		Rule: domain.Rule{
			Name:         r.Name,
			Priority:     r.Priority,
			PatternType:  domain.PatternType(r.PatternType),
			PatternValue: r.PatternValue,
			Mapping: domain.Hierarchy{
				Network: r.Network, Domain: r.Domain, Placement: r.Placement,
				Targeting: r.Targeting, Special: r.Special,
			},
			Active: r.IsActive,
		},
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ReplaceRules mirrors rules into hierarchy_rules: listed rules are
// upserted by name and every other row is removed.
func (s *Store) ReplaceRules(ctx context.Context, rules []domain.Rule) error {
	now := s.now()
	return s.inTx(ctx, func(tx *Store) error {
		names := make([]string, 0, len(rules))
		for _, r := range rules {
			_, err := tx.exec(ctx, `
				INSERT INTO hierarchy_rules
					(rule_name, pattern_type, pattern_value, network, domain, placement,
					 targeting, special, priority, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (rule_name) DO UPDATE SET
					pattern_type = excluded.pattern_type,
					pattern_value = excluded.pattern_value,
					network = excluded.network,
					domain = excluded.domain,
					placement = excluded.placement,
					targeting = excluded.targeting,
					special = excluded.special,
					priority = excluded.priority,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at
			`,
				r.Name, string(r.PatternType), r.PatternValue,
				r.Mapping.Network, r.Mapping.Domain, r.Mapping.Placement,
				r.Mapping.Targeting, r.Mapping.Special,
				r.Priority, r.Active, now, now,
			)
			if err != nil {
				return fmt.Errorf("mirror rule %q: %w", r.Name, err)
			}
			names = append(names, r.Name)
		}

		if len(names) == 0 {
			_, err := tx.exec(ctx, `DELETE FROM hierarchy_rules`)
			return err
		}
		query, args, err := sqlx.In(`DELETE FROM hierarchy_rules WHERE rule_name NOT IN (?)`, names)
		if err != nil {
			return fmt.Errorf("build rule prune: %w", err)
		}
		if _, err := tx.exec(ctx, query, args...); err != nil {
			return fmt.Errorf("prune rules: %w", err)
		}
		return nil
	})
}

// LoadRules returns the mirrored rules in descending priority.
func (s *Store) LoadRules(ctx context.Context) ([]domain.Rule, error) {
	stored, err := s.StoredRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Rule, 0, len(stored))
	for _, r := range stored {
		out = append(out, r.Rule)
	}
	return out, nil
}

// StoredRules returns the mirrored rules with their row metadata.
func (s *Store) StoredRules(ctx context.Context) ([]domain.StoredRule, error) {
	var rows []ruleRow
	err := s.selectAll(ctx, &rows, `
		SELECT id, rule_name, pattern_type, pattern_value, network, domain, placement,
		       targeting, special, priority, is_active, created_at, updated_at
		FROM hierarchy_rules
		ORDER BY priority DESC, rule_name`)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	out := make([]domain.StoredRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.stored())
	}
	return out, nil
}

package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/repository/sqlstore"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

// Status describes the warehouse and its upstream.
type Status struct {
	Ready      bool             `json:"pipeline_ready"`
	APIHealthy bool             `json:"api_healthy"`
	APIError   string           `json:"api_error,omitempty"`
	Counts     *sqlstore.Counts `json:"database_stats"`
	Rules      mapper.RuleStats `json:"rule_stats"`
	RecentRuns []domain.SyncRun `json:"recent_syncs"`
	CheckedAt  time.Time        `json:"status_checked_at"`
}

// Status reports recent runs, table counts, rule stats and API health.
func (p *Pipeline) Status(ctx context.Context, recent int) (*Status, error) {
	if recent <= 0 {
		recent = 5
	}
	runs, err := p.store.RecentSyncRuns(ctx, recent)
	if err != nil {
		return nil, err
	}
	counts, err := p.store.Counts(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Counts:     counts,
		Rules:      p.rules.Stats(),
		RecentRuns: runs,
		CheckedAt:  p.now(),
	}
	ok, err := p.source.Health(ctx)
	if err != nil {
		st.APIError = err.Error()
	}
	st.APIHealthy = ok
	st.Ready = ok && st.Rules.ActiveRules > 0
	return st, nil
}

// CampaignDebug gathers everything known about one campaign.
type CampaignDebug struct {
	Campaign       *domain.Campaign       `json:"campaign"`
	Resolution     mapper.Resolution      `json:"rule_resolution"`
	Stored         *domain.HierarchyView  `json:"stored_hierarchy,omitempty"`
	ActiveOverride *domain.Override       `json:"active_override,omitempty"`
	RecentHourly   []domain.HourlyMetrics `json:"recent_hourly"`
}

// DebugCampaign returns the stored campaign, a fresh rule resolution of its
// name, the persisted hierarchy, any active override and recent hourly rows.
func (p *Pipeline) DebugCampaign(ctx context.Context, campaignID int64, hourlyLimit int) (*CampaignDebug, error) {
	if hourlyLimit <= 0 {
		hourlyLimit = 10
	}
	c, err := p.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %d: %w", campaignID, err)
	}
	out := &CampaignDebug{
		Campaign:   c,
		Resolution: p.rules.Classify(ctx, c.Name),
	}

	view, err := p.hierarchy.GetHierarchy(ctx, campaignID)
	switch {
	case err == nil:
		out.Stored = view
	case !errors.Is(err, hierarchy.ErrNotFound):
		return nil, err
	}

	o, err := p.hierarchy.GetActiveOverride(ctx, campaignID)
	switch {
	case err == nil:
		out.ActiveOverride = o
	case !errors.Is(err, hierarchy.ErrNoActiveOverride):
		return nil, err
	}

	out.RecentHourly, err = p.store.RecentHourly(ctx, campaignID, hourlyLimit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

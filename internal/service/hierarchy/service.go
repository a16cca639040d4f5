package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// Upsert sources reported to the upsert hook.
const (
	SourceResolve  = "resolve"
	SourceOverride = "override"
)

// OverrideConfidence is the persisted confidence of any campaign with an
// active override.
const OverrideConfidence = 1.0

// DefaultHistoryLimit caps OverrideHistory when no limit is given.
const DefaultHistoryLimit = 50

// Service owns every write to campaign_hierarchy and the override log.
type Service struct {
	repo          Repository
	classifier    Classifier
	now           func() time.Time
	lowConfidence float64
	onUpsert      func(source string)
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLowConfidenceThreshold sets the confidence below which ResolveAll
// counts a campaign as low confidence.
func WithLowConfidenceThreshold(v float64) Option {
	return func(s *Service) { s.lowConfidence = v }
}

// WithUpsertHook registers fn to be called after each successful write of a
// hierarchy row.
func WithUpsertHook(fn func(source string)) Option {
	return func(s *Service) { s.onUpsert = fn }
}

// NewService creates a hierarchy service.
func NewService(repo Repository, classifier Classifier, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		classifier:    classifier,
		now:           func() time.Time { return time.Now().UTC() },
		lowConfidence: 0.7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Merge layers an active override over a rule-based mapping. Override
// fields win where set; confidence becomes OverrideConfidence whenever an
// override is active.
func Merge(ruleBased domain.Hierarchy, ruleConfidence float64, o *domain.Override) (domain.Hierarchy, float64) {
	if o == nil || !o.IsActive {
		return ruleBased, ruleConfidence
	}
	return o.OverrideFields.Apply(ruleBased), OverrideConfidence
}

// UpsertHierarchy persists the rule-based mapping for a campaign, merged with
// the campaign's active override. Calling it twice with the same inputs and
// unchanged overrides stores the same field values.
func (s *Service) UpsertHierarchy(ctx context.Context, campaignID int64, name string, ruleBased domain.Hierarchy, confidence float64) error {
	if campaignID <= 0 {
		return ErrInvalidCampaignID
	}
	err := s.repo.WithTx(ctx, func(q Queries) error {
		if err := q.LockCampaign(ctx, campaignID); err != nil {
			return err
		}
		o, err := activeOverride(ctx, q, campaignID)
		if err != nil {
			return err
		}
		return s.write(ctx, q, campaignID, name, ruleBased, confidence, o)
	})
	if err != nil {
		return fmt.Errorf("upsert hierarchy %d: %w", campaignID, err)
	}
	s.upserted(SourceResolve)
	return nil
}

// SetOverride records a manual correction for a campaign and re-merges its
// hierarchy row in the same transaction. Any previously active override is
// deactivated, not deleted. Empty-string fields count as unset.
func (s *Service) SetOverride(ctx context.Context, campaignID int64, fields domain.OverrideFields, reason, author string) (string, error) {
	if campaignID <= 0 {
		return "", ErrInvalidCampaignID
	}
	fields = normalizeFields(fields)
	if fields.Empty() {
		return "", ErrInvalidOverride
	}

	name, err := s.repo.CampaignName(ctx, campaignID)
	if err != nil {
		return "", err
	}
	// Classification may touch the rule mirror, so it runs before the
	// transaction takes the connection.
	fresh := s.classifier.Classify(ctx, name)

	now := s.now()
	o := &domain.Override{
		ID:             uuid.New().String(),
		CampaignID:     campaignID,
		OverrideFields: fields,
		Reason:         reason,
		OverriddenBy:   author,
		OverriddenAt:   now,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.repo.WithTx(ctx, func(q Queries) error {
		if err := q.LockCampaign(ctx, campaignID); err != nil {
			return err
		}
		if _, err := q.DeactivateOverrides(ctx, campaignID, now); err != nil {
			return err
		}
		if err := q.InsertOverride(ctx, o); err != nil {
			return err
		}
		base, conf := fresh.Hierarchy, fresh.Confidence
		rec, err := q.GetHierarchy(ctx, campaignID)
		switch {
		case err == nil:
			base, conf = rec.RuleBased, rec.RuleConfidence
		case !errors.Is(err, ErrNotFound):
			return err
		}
		return s.write(ctx, q, campaignID, name, base, conf, o)
	})
	if err != nil {
		return "", fmt.Errorf("set override %d: %w", campaignID, err)
	}

	s.upserted(SourceOverride)
	logger.Info("hierarchy: override set",
		"campaign_id", campaignID, "override_id", o.ID, "author", author)
	return o.ID, nil
}

// GetActiveOverride returns the campaign's active override, or
// ErrNoActiveOverride.
func (s *Service) GetActiveOverride(ctx context.Context, campaignID int64) (*domain.Override, error) {
	if campaignID <= 0 {
		return nil, ErrInvalidCampaignID
	}
	return s.repo.GetActiveOverride(ctx, campaignID)
}

// DeactivateOverride turns off the campaign's active override and restores
// the rule-based mapping and confidence on its hierarchy row. It reports
// whether an active override existed.
func (s *Service) DeactivateOverride(ctx context.Context, campaignID int64) (bool, error) {
	if campaignID <= 0 {
		return false, ErrInvalidCampaignID
	}
	var changed bool
	err := s.repo.WithTx(ctx, func(q Queries) error {
		if err := q.LockCampaign(ctx, campaignID); err != nil {
			return err
		}
		n, err := q.DeactivateOverrides(ctx, campaignID, s.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		changed = true

		rec, err := q.GetHierarchy(ctx, campaignID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.write(ctx, q, campaignID, rec.CampaignName, rec.RuleBased, rec.RuleConfidence, nil)
	})
	if err != nil {
		return false, fmt.Errorf("deactivate override %d: %w", campaignID, err)
	}
	if changed {
		s.upserted(SourceOverride)
		logger.Info("hierarchy: override deactivated", "campaign_id", campaignID)
	}
	return changed, nil
}

// OverrideHistory returns the campaign's override log, newest first.
func (s *Service) OverrideHistory(ctx context.Context, campaignID int64, limit int) ([]domain.Override, error) {
	if campaignID <= 0 {
		return nil, ErrInvalidCampaignID
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.repo.OverrideHistory(ctx, campaignID, limit)
}

// GetHierarchy returns the merged hierarchy of a campaign with the metadata
// of the override that shaped it.
func (s *Service) GetHierarchy(ctx context.Context, campaignID int64) (*domain.HierarchyView, error) {
	if campaignID <= 0 {
		return nil, ErrInvalidCampaignID
	}
	rec, err := s.repo.GetHierarchy(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	view := &domain.HierarchyView{HierarchyRecord: *rec}

	o, err := s.repo.GetActiveOverride(ctx, campaignID)
	if errors.Is(err, ErrNoActiveOverride) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	at := o.OverriddenAt
	view.HasOverride = true
	view.OverrideID = o.ID
	view.OverrideReason = o.Reason
	view.OverriddenBy = o.OverriddenBy
	view.OverriddenAt = &at
	return view, nil
}

// ItemError describes one campaign a batch pass could not write.
type ItemError struct {
	CampaignID int64  `json:"campaign_id"`
	Name       string `json:"campaign_name"`
	Error      string `json:"error"`
}

// BatchResult summarises a ResolveAll pass.
type BatchResult struct {
	Processed     int         `json:"processed"`
	Updated       int         `json:"updated"`
	LowConfidence int         `json:"low_confidence"`
	Errors        []ItemError `json:"errors,omitempty"`
}

// ResolveAll classifies every stored campaign against one snapshot of the
// rule set and upserts the merged result. A storage error on one campaign is
// recorded and the pass continues.
func (s *Service) ResolveAll(ctx context.Context) (*BatchResult, error) {
	refs, err := s.repo.ListCampaignRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	rules, resolve := s.classifier.Snapshot(ctx)
	if len(rules) == 0 {
		logger.Warn("hierarchy: no rules available, resolving with defaults")
	}

	res := &BatchResult{}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r := resolve(ref.Name)
		res.Processed++
		if r.Confidence < s.lowConfidence {
			res.LowConfidence++
		}
		if err := s.UpsertHierarchy(ctx, ref.ID, ref.Name, r.Hierarchy, r.Confidence); err != nil {
			logger.Error("hierarchy: upsert failed", "campaign_id", ref.ID, "error", err)
			res.Errors = append(res.Errors, ItemError{CampaignID: ref.ID, Name: ref.Name, Error: err.Error()})
			continue
		}
		res.Updated++
	}

	logger.Info("hierarchy: resolution pass complete",
		"processed", res.Processed, "updated", res.Updated,
		"low_confidence", res.LowConfidence, "errors", len(res.Errors))
	return res, nil
}

func (s *Service) write(ctx context.Context, q Queries, campaignID int64, name string, ruleBased domain.Hierarchy, confidence float64, o *domain.Override) error {
	merged, mergedConf := Merge(ruleBased, confidence, o)
	now := s.now()
	return q.UpsertHierarchy(ctx, &domain.HierarchyRecord{
		CampaignID:        campaignID,
		CampaignName:      name,
		Hierarchy:         merged,
		MappingConfidence: mergedConf,
		RuleBased:         ruleBased,
		RuleConfidence:    confidence,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

func (s *Service) upserted(source string) {
	if s.onUpsert != nil {
		s.onUpsert(source)
	}
}

func activeOverride(ctx context.Context, q Queries, campaignID int64) (*domain.Override, error) {
	o, err := q.GetActiveOverride(ctx, campaignID)
	if errors.Is(err, ErrNoActiveOverride) {
		return nil, nil
	}
	return o, err
}

func normalizeFields(f domain.OverrideFields) domain.OverrideFields {
	out := domain.OverrideFields{}
	set := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		if v == "" {
			return nil
		}
		return &v
	}
	out.Network = set(f.Network)
	out.Domain = set(f.Domain)
	out.Placement = set(f.Placement)
	out.Targeting = set(f.Targeting)
	out.Special = set(f.Special)
	return out
}

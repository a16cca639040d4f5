package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-warehouse/internal/domain"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/pkg/httputil"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

// DefaultAuthor is recorded when an override request names no author.
const DefaultAuthor = "api"

// HierarchyService is the override-aware hierarchy store.
type HierarchyService interface {
	GetHierarchy(ctx context.Context, campaignID int64) (*domain.HierarchyView, error)
	SetOverride(ctx context.Context, campaignID int64, fields domain.OverrideFields, reason, author string) (string, error)
	DeactivateOverride(ctx context.Context, campaignID int64) (bool, error)
	OverrideHistory(ctx context.Context, campaignID int64, limit int) ([]domain.Override, error)
}

// RuleEngine classifies names with the current rule set.
type RuleEngine interface {
	Classify(ctx context.Context, name string) mapper.Resolution
	Stats() mapper.RuleStats
}

// Handlers serves the hierarchy query and override endpoints.
type Handlers struct {
	svc   HierarchyService
	rules RuleEngine
}

// NewHandlers creates the hierarchy handlers.
func NewHandlers(svc HierarchyService, rules RuleEngine) *Handlers {
	return &Handlers{svc: svc, rules: rules}
}

type overrideRequest struct {
	domain.OverrideFields
	Reason string `json:"reason"`
	Author string `json:"author"`
}

type overrideResponse struct {
	OverrideID string                `json:"override_id"`
	Hierarchy  *domain.HierarchyView `json:"hierarchy"`
}

type testRequest struct {
	CampaignName string `json:"campaign_name"`
}

// GetHierarchy returns the merged hierarchy with override metadata.
//
//	GET /api/campaigns/{id}/hierarchy
func (h *Handlers) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetHierarchy(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, view)
}

// SetOverride records a manual correction and returns the new merged row.
//
//	PUT /api/campaigns/{id}/override
func (h *Handlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	var problems []string
	if req.OverrideFields.Empty() {
		problems = append(problems, "at least one of network, domain, placement, targeting, special is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		problems = append(problems, "reason is required")
	}
	if len(problems) > 0 {
		httputil.Unprocessable(w, "invalid override", problems)
		return
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		author = DefaultAuthor
	}

	overrideID, err := h.svc.SetOverride(r.Context(), id, req.OverrideFields, req.Reason, author)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	view, err := h.svc.GetHierarchy(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, overrideResponse{OverrideID: overrideID, Hierarchy: view})
}

// DeactivateOverride turns off the active override.
//
//	DELETE /api/campaigns/{id}/override
func (h *Handlers) DeactivateOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	changed, err := h.svc.DeactivateOverride(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"deactivated": changed})
}

// OverrideHistory lists the campaign's overrides, newest first.
//
//	GET /api/campaigns/{id}/override/history?limit=
func (h *Handlers) OverrideHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	limit := httputil.QueryInt(r, "limit", hierarchy.DefaultHistoryLimit)
	history, err := h.svc.OverrideHistory(r.Context(), id, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if history == nil {
		history = []domain.Override{}
	}
	httputil.OK(w, map[string]interface{}{"campaign_id": id, "overrides": history})
}

// TestHierarchy classifies a campaign name without storing anything.
//
//	POST /api/hierarchy/test
func (h *Handlers) TestHierarchy(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CampaignName) == "" {
		httputil.BadRequest(w, "campaign_name is required")
		return
	}
	res := h.rules.Classify(r.Context(), req.CampaignName)
	if res.MatchedRules == nil {
		res.MatchedRules = []domain.Rule{}
	}
	httputil.OK(w, map[string]interface{}{
		"campaign_name": req.CampaignName,
		"hierarchy":     res.Hierarchy,
		"confidence":    res.Confidence,
		"matched_rules": res.MatchedRules,
	})
}

// RuleStats reports the cached rule set.
//
//	GET /api/rules/stats
func (h *Handlers) RuleStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.rules.Stats())
}

func campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "campaign id must be a positive integer")
		return 0, false
	}
	return id, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hierarchy.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, hierarchy.ErrNoActiveOverride):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, hierarchy.ErrInvalidCampaignID), errors.Is(err, hierarchy.ErrInvalidOverride):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

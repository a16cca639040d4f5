package peach

import (
	"context"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

type campaignPayload struct {
	ID            *int64     `json:"id"`
	Name          *string    `json:"name"`
	Description   string     `json:"description"`
	TrackingURL   string     `json:"tracking_url"`
	IsServing     bool       `json:"is_serving"`
	ServingURL    string     `json:"serving_url"`
	TrafficWeight int        `json:"traffic_weight"`
	DeletedAt     *time.Time `json:"deleted_at"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
	Slug          string     `json:"slug"`
	Path          string     `json:"path"`
}

// ListCampaigns fetches every campaign. Records missing id, name,
// created_at or updated_at are skipped with a warning.
func (c *Client) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	var payload []campaignPayload
	if err := c.get(ctx, "/admin/campaigns", nil, &payload); err != nil {
		return nil, err
	}

	out := make([]domain.Campaign, 0, len(payload))
	for i, p := range payload {
		if p.ID == nil || p.Name == nil || p.CreatedAt == nil || p.UpdatedAt == nil {
			logger.Warn("peach: skipping campaign missing required fields", "index", i)
			continue
		}
		out = append(out, domain.Campaign{
			ID:            *p.ID,
			Name:          *p.Name,
			Description:   p.Description,
			TrackingURL:   p.TrackingURL,
			IsServing:     p.IsServing,
			ServingURL:    p.ServingURL,
			TrafficWeight: p.TrafficWeight,
			DeletedAt:     p.DeletedAt,
			CreatedAt:     p.CreatedAt.UTC(),
			UpdatedAt:     p.UpdatedAt.UTC(),
			Slug:          p.Slug,
			Path:          p.Path,
		})
	}
	logger.Info("peach: fetched campaigns", "count", len(out), "skipped", len(payload)-len(out))
	return out, nil
}

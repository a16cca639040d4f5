package hierarchy

import (
	"context"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
)

// CampaignRef identifies a stored campaign for a resolution pass.
type CampaignRef struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Queries is the data access contract shared by the plain repository and
// its transaction-scoped form.
type Queries interface {
	// LockCampaign serialises writers of one campaign's hierarchy and
	// override rows until the enclosing transaction ends. Outside a
	// transaction it has no lasting effect.
	LockCampaign(ctx context.Context, campaignID int64) error

	// CampaignName returns the stored campaign's name, or ErrNotFound.
	CampaignName(ctx context.Context, campaignID int64) (string, error)

	// ListCampaignRefs returns every stored campaign ordered by id.
	ListCampaignRefs(ctx context.Context) ([]CampaignRef, error)

	// GetHierarchy returns the campaign_hierarchy row, or ErrNotFound.
	GetHierarchy(ctx context.Context, campaignID int64) (*domain.HierarchyRecord, error)

	// UpsertHierarchy writes rec as the single row for its campaign. The
	// row's created_at is preserved on update.
	UpsertHierarchy(ctx context.Context, rec *domain.HierarchyRecord) error

	// GetActiveOverride returns the active override, or ErrNoActiveOverride.
	GetActiveOverride(ctx context.Context, campaignID int64) (*domain.Override, error)

	// DeactivateOverrides clears is_active on every active override of the
	// campaign and returns how many rows changed.
	DeactivateOverrides(ctx context.Context, campaignID int64, at time.Time) (int64, error)

	// InsertOverride appends o to the override log.
	InsertOverride(ctx context.Context, o *domain.Override) error

	// OverrideHistory returns up to limit overrides, newest first.
	OverrideHistory(ctx context.Context, campaignID int64, limit int) ([]domain.Override, error)
}

// Repository adds transactions to Queries. Implementations must be safe for
// concurrent use.
type Repository interface {
	Queries

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// Classifier resolves campaign names against the current rule set.
type Classifier interface {
	Classify(ctx context.Context, name string) mapper.Resolution
	Snapshot(ctx context.Context) ([]domain.Rule, func(name string) mapper.Resolution)
}

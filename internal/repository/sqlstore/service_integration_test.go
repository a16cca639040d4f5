package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-warehouse/internal/domain"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

// fixedClassifier resolves every name to the same mapping.
type fixedClassifier struct{ res mapper.Resolution }

func (c *fixedClassifier) Classify(context.Context, string) mapper.Resolution { return c.res }

func (c *fixedClassifier) Snapshot(context.Context) ([]domain.Rule, func(string) mapper.Resolution) {
	return nil, func(string) mapper.Resolution { return c.res }
}

func TestService_OverrideDurableAcrossResync(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seedCampaigns(t, s, "PornhubM_Ava_Lounge")

	rule := domain.DefaultHierarchy()
	rule.Network = "Pornhub"
	rule.Domain = "Adult Video Platform"
	cl := &fixedClassifier{res: mapper.Resolution{Hierarchy: rule, Confidence: 0.5}}
	svc := hierarchy.NewService(s, cl)

	res, err := svc.ResolveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	_, err = svc.SetOverride(ctx, 1, domain.OverrideFields{Network: domain.StringPtr("Aylo")}, "rebrand", "ops")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.ResolveAll(ctx)
		require.NoError(t, err)
	}

	view, err := svc.GetHierarchy(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Aylo", view.Network)
	assert.Equal(t, "Adult Video Platform", view.Domain)
	assert.Equal(t, 1.0, view.MappingConfidence)
	assert.True(t, view.HasOverride)
	assert.Equal(t, "rebrand", view.OverrideReason)

	for i := 0; i < 4; i++ {
		_, err := svc.SetOverride(ctx, 1, domain.OverrideFields{Special: domain.StringPtr("VIP")}, "", "ops")
		require.NoError(t, err)
	}
	hist, err := svc.OverrideHistory(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, hist, 5)
	active := 0
	for _, o := range hist {
		if o.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)

	ok, err := svc.DeactivateOverride(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := s.GetHierarchy(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Pornhub", rec.Network)
	assert.Equal(t, "Standard", rec.Special)
	assert.Equal(t, 0.5, rec.MappingConfidence)
}

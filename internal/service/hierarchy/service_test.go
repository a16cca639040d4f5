package hierarchy_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ignite/campaign-warehouse/internal/domain"
	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

// memRepo is an in-memory hierarchy repository for unit testing. WithTx
// restores the previous state when fn fails.
type memRepo struct {
	mu        sync.Mutex
	campaigns map[int64]string
	rows      map[int64]domain.HierarchyRecord
	overrides []domain.Override
	failWrite map[int64]bool
	writes    int
	inTx      bool
	calls     []string
}

func newMemRepo() *memRepo {
	return &memRepo{
		campaigns: make(map[int64]string),
		rows:      make(map[int64]domain.HierarchyRecord),
		failWrite: make(map[int64]bool),
	}
}

func (m *memRepo) LockCampaign(_ context.Context, id int64) error {
	if m.inTx {
		m.calls = append(m.calls, fmt.Sprintf("lock:%d", id))
	}
	return nil
}

func (m *memRepo) CampaignName(_ context.Context, id int64) (string, error) {
	name, ok := m.campaigns[id]
	if !ok {
		return "", hierarchy.ErrNotFound
	}
	return name, nil
}

func (m *memRepo) ListCampaignRefs(_ context.Context) ([]hierarchy.CampaignRef, error) {
	var out []hierarchy.CampaignRef
	for id, name := range m.campaigns {
		out = append(out, hierarchy.CampaignRef{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetHierarchy(_ context.Context, id int64) (*domain.HierarchyRecord, error) {
	rec, ok := m.rows[id]
	if !ok {
		return nil, hierarchy.ErrNotFound
	}
	return &rec, nil
}

func (m *memRepo) UpsertHierarchy(_ context.Context, rec *domain.HierarchyRecord) error {
	if m.failWrite[rec.CampaignID] {
		return fmt.Errorf("disk full")
	}
	if prev, ok := m.rows[rec.CampaignID]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	m.rows[rec.CampaignID] = *rec
	m.writes++
	return nil
}

func (m *memRepo) GetActiveOverride(_ context.Context, id int64) (*domain.Override, error) {
	for i := len(m.overrides) - 1; i >= 0; i-- {
		if o := m.overrides[i]; o.CampaignID == id && o.IsActive {
			return &o, nil
		}
	}
	return nil, hierarchy.ErrNoActiveOverride
}

func (m *memRepo) DeactivateOverrides(_ context.Context, id int64, at time.Time) (int64, error) {
	var n int64
	for i := range m.overrides {
		if m.overrides[i].CampaignID == id && m.overrides[i].IsActive {
			m.overrides[i].IsActive = false
			m.overrides[i].UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (m *memRepo) InsertOverride(_ context.Context, o *domain.Override) error {
	for _, existing := range m.overrides {
		if existing.CampaignID == o.CampaignID && existing.IsActive && o.IsActive {
			return fmt.Errorf("unique violation: second active override")
		}
	}
	m.overrides = append(m.overrides, *o)
	return nil
}

func (m *memRepo) OverrideHistory(_ context.Context, id int64, limit int) ([]domain.Override, error) {
	var out []domain.Override
	for i := len(m.overrides) - 1; i >= 0 && len(out) < limit; i-- {
		if m.overrides[i].CampaignID == id {
			out = append(out, m.overrides[i])
		}
	}
	return out, nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(q hierarchy.Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make(map[int64]domain.HierarchyRecord, len(m.rows))
	for k, v := range m.rows {
		rows[k] = v
	}
	overrides := append([]domain.Override(nil), m.overrides...)

	m.inTx = true
	m.calls = append(m.calls, "begin")
	defer func() { m.inTx = false }()
	if err := fn(m); err != nil {
		m.rows = rows
		m.overrides = overrides
		return err
	}
	return nil
}

func (m *memRepo) activeCount(id int64) (active, total int) {
	for _, o := range m.overrides {
		if o.CampaignID != id {
			continue
		}
		total++
		if o.IsActive {
			active++
		}
	}
	return
}

// stubClassifier returns a fixed resolution for every name.
type stubClassifier struct {
	res   mapper.Resolution
	calls int
}

func (c *stubClassifier) Classify(_ context.Context, _ string) mapper.Resolution {
	c.calls++
	return c.res
}

func (c *stubClassifier) Snapshot(_ context.Context) ([]domain.Rule, func(string) mapper.Resolution) {
	return []domain.Rule{{Name: "stub"}}, func(string) mapper.Resolution {
		c.calls++
		return c.res
	}
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestService(repo *memRepo, res mapper.Resolution) (*hierarchy.Service, *stubClassifier) {
	cl := &stubClassifier{res: res}
	return hierarchy.NewService(repo, cl, hierarchy.WithClock(fixedClock())), cl
}

func ruleBased(network, domainName string) domain.Hierarchy {
	h := domain.DefaultHierarchy()
	h.Network = network
	h.Domain = domainName
	return h
}

func TestMerge(t *testing.T) {
	base := ruleBased("Pornhub", "Adult Video Platform")

	got, conf := hierarchy.Merge(base, 0.5, nil)
	if got != base || conf != 0.5 {
		t.Fatalf("no override: got %+v %.2f", got, conf)
	}

	inactive := &domain.Override{OverrideFields: domain.OverrideFields{Network: domain.StringPtr("Aylo")}}
	got, conf = hierarchy.Merge(base, 0.5, inactive)
	if got.Network != "Pornhub" || conf != 0.5 {
		t.Fatalf("inactive override must be ignored: %+v %.2f", got, conf)
	}

	active := &domain.Override{IsActive: true, OverrideFields: domain.OverrideFields{Network: domain.StringPtr("Aylo")}}
	got, conf = hierarchy.Merge(base, 0.5, active)
	if got.Network != "Aylo" || got.Domain != "Adult Video Platform" || conf != 1.0 {
		t.Fatalf("active override: %+v %.2f", got, conf)
	}
}

func TestUpsertHierarchy_OverrideSurvivesResync(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[7] = "PornhubM_Ava_Lounge"
	svc, _ := newTestService(repo, mapper.Resolution{Hierarchy: ruleBased("Pornhub", "Adult Video Platform"), Confidence: 0.5})
	ctx := context.Background()

	if _, err := svc.SetOverride(ctx, 7, domain.OverrideFields{Network: domain.StringPtr("Aylo")}, "rebrand", "ops"); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	for _, network := range []string{"Pornhub", "Unknown", "Reddit"} {
		if err := svc.UpsertHierarchy(ctx, 7, "PornhubM_Ava_Lounge", ruleBased(network, "X"), 0.3); err != nil {
			t.Fatalf("UpsertHierarchy: %v", err)
		}
		row := repo.rows[7]
		if row.Network != "Aylo" {
			t.Fatalf("resync with %q erased override: network=%q", network, row.Network)
		}
		if row.MappingConfidence != 1.0 {
			t.Fatalf("confidence = %.2f, want 1.0", row.MappingConfidence)
		}
		if row.Domain != "X" {
			t.Fatalf("domain should fall through to rule value, got %q", row.Domain)
		}
		if row.RuleBased.Network != network || row.RuleConfidence != 0.3 {
			t.Fatalf("rule-based values not kept: %+v", row.RuleBased)
		}
	}
}

func TestSetOverride_SingleActiveWithHistory(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[5] = "Reddit_US"
	svc, _ := newTestService(repo, mapper.Resolution{Hierarchy: domain.DefaultHierarchy(), Confidence: 0.1})
	ctx := context.Background()

	const n = 5
	var lastID string
	for i := 0; i < n; i++ {
		id, err := svc.SetOverride(ctx, 5, domain.OverrideFields{Targeting: domain.StringPtr(fmt.Sprintf("T%d", i))}, "", "ops")
		if err != nil {
			t.Fatalf("SetOverride %d: %v", i, err)
		}
		lastID = id
	}

	active, total := repo.activeCount(5)
	if active != 1 || total != n {
		t.Fatalf("active=%d total=%d, want 1 and %d", active, total, n)
	}

	o, err := svc.GetActiveOverride(ctx, 5)
	if err != nil {
		t.Fatalf("GetActiveOverride: %v", err)
	}
	if o.ID != lastID || *o.Targeting != "T4" {
		t.Fatalf("active override = %+v", o)
	}
	if repo.rows[5].Targeting != "T4" {
		t.Fatalf("row not re-merged: %+v", repo.rows[5])
	}

	hist, err := svc.OverrideHistory(ctx, 5, 0)
	if err != nil {
		t.Fatalf("OverrideHistory: %v", err)
	}
	if len(hist) != n || hist[0].ID != lastID {
		t.Fatalf("history not newest first: %d entries", len(hist))
	}
	hist, _ = svc.OverrideHistory(ctx, 5, 2)
	if len(hist) != 2 {
		t.Fatalf("limit ignored: %d", len(hist))
	}
}

func TestSetOverride_NullFieldFallsThrough(t *testing.T) {
	// Campaign 42: rule-based network Unknown, override {network: null, domain: "Dating Platform"}.
	repo := newMemRepo()
	repo.campaigns[42] = "Campaign 42"
	svc, _ := newTestService(repo, mapper.Resolution{Hierarchy: domain.DefaultHierarchy(), Confidence: 0.1})
	ctx := context.Background()

	if err := svc.UpsertHierarchy(ctx, 42, "Campaign 42", domain.DefaultHierarchy(), 0.1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetOverride(ctx, 42, domain.OverrideFields{Domain: domain.StringPtr("Dating Platform")}, "manual", "ops"); err != nil {
		t.Fatal(err)
	}

	view, err := svc.GetHierarchy(ctx, 42)
	if err != nil {
		t.Fatalf("GetHierarchy: %v", err)
	}
	if view.Network != "Unknown" || view.Domain != "Dating Platform" || view.MappingConfidence != 1.0 {
		t.Fatalf("merged = %+v", view.HierarchyRecord)
	}
	if !view.HasOverride || view.OverrideReason != "manual" || view.OverriddenBy != "ops" || view.OverriddenAt == nil {
		t.Fatalf("override metadata missing: %+v", view)
	}
}

func TestSetOverride_CreatesRowFromFreshResolution(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[9] = "Pornhub_Mobile"
	svc, cl := newTestService(repo, mapper.Resolution{Hierarchy: ruleBased("Pornhub", "Adult Video Platform"), Confidence: 0.5})

	if _, err := svc.SetOverride(context.Background(), 9, domain.OverrideFields{Special: domain.StringPtr("VIP")}, "", "ops"); err != nil {
		t.Fatal(err)
	}
	row, ok := repo.rows[9]
	if !ok {
		t.Fatal("no hierarchy row written")
	}
	if row.Network != "Pornhub" || row.Special != "VIP" || row.RuleConfidence != 0.5 {
		t.Fatalf("row = %+v", row)
	}
	if cl.calls != 1 {
		t.Fatalf("classifier calls = %d", cl.calls)
	}
}

func TestSetOverride_Validation(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[1] = "c"
	svc, _ := newTestService(repo, mapper.Resolution{Hierarchy: domain.DefaultHierarchy(), Confidence: 0.1})
	ctx := context.Background()

	if _, err := svc.SetOverride(ctx, 1, domain.OverrideFields{}, "", ""); !errors.Is(err, hierarchy.ErrInvalidOverride) {
		t.Fatalf("empty fields: %v", err)
	}
	if _, err := svc.SetOverride(ctx, 1, domain.OverrideFields{Network: domain.StringPtr("  ")}, "", ""); !errors.Is(err, hierarchy.ErrInvalidOverride) {
		t.Fatalf("blank field: %v", err)
	}
	if _, err := svc.SetOverride(ctx, 0, domain.OverrideFields{Network: domain.StringPtr("A")}, "", ""); !errors.Is(err, hierarchy.ErrInvalidCampaignID) {
		t.Fatalf("bad id: %v", err)
	}
	if _, err := svc.SetOverride(ctx, 99, domain.OverrideFields{Network: domain.StringPtr("A")}, "", ""); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("unknown campaign: %v", err)
	}
}

func TestSetOverride_FailedWriteRollsBack(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[3] = "c"
	svc, _ := newTestService(repo, mapper.Resolution{Hierarchy: domain.DefaultHierarchy(), Confidence: 0.1})
	ctx := context.Background()

	first, err := svc.SetOverride(ctx, 3, domain.OverrideFields{Network: domain.StringPtr("A")}, "", "")
	if err != nil {
		t.Fatal(err)
	}

	repo.failWrite[3] = true
	if _, err := svc.SetOverride(ctx, 3, domain.OverrideFields{Network: domain.StringPtr("B")}, "", ""); err == nil {
		t.Fatal("expected error")
	}

	o, err := svc.GetActiveOverride(ctx, 3)
	if err != nil || o.ID != first {
		t.Fatalf("previous override should still be active: %v %+v", err, o)
	}
	if active, total := repo.activeCount(3); active != 1 || total != 1 {
		t.Fatalf("active=%d total=%d", active, total)
	}
}

func TestDeactivateOverride_RestoresRuleMapping(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[4] = "Pornhub_X"
	svc, _ := newTestService(repo, mapper.Resolution{Hierarchy: ruleBased("Pornhub", "Adult Video Platform"), Confidence: 0.5})
	ctx := context.Background()

	if err := svc.UpsertHierarchy(ctx, 4, "Pornhub_X", ruleBased("Pornhub", "Adult Video Platform"), 0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetOverride(ctx, 4, domain.OverrideFields{Network: domain.StringPtr("Aylo")}, "", ""); err != nil {
		t.Fatal(err)
	}

	ok, err := svc.DeactivateOverride(ctx, 4)
	if err != nil || !ok {
		t.Fatalf("DeactivateOverride = %v, %v", ok, err)
	}
	row := repo.rows[4]
	if row.Network != "Pornhub" || row.MappingConfidence != 0.5 {
		t.Fatalf("row not restored: %+v", row)
	}
	if _, err := svc.GetActiveOverride(ctx, 4); !errors.Is(err, hierarchy.ErrNoActiveOverride) {
		t.Fatalf("override still active: %v", err)
	}
	if _, total := repo.activeCount(4); total != 1 {
		t.Fatalf("history lost: %d", total)
	}

	ok, err = svc.DeactivateOverride(ctx, 4)
	if err != nil || ok {
		t.Fatalf("second deactivate = %v, %v", ok, err)
	}
}

func TestWrites_LockCampaignBeforeReading(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[9] = "Reddit_US"
	svc, _ := newTestService(repo, mapper.Resolution{Hierarchy: ruleBased("Reddit", "Social"), Confidence: 0.8})
	ctx := context.Background()

	if err := svc.UpsertHierarchy(ctx, 9, "Reddit_US", ruleBased("Reddit", "Social"), 0.8); err != nil {
		t.Fatalf("UpsertHierarchy: %v", err)
	}
	if _, err := svc.SetOverride(ctx, 9, domain.OverrideFields{Network: domain.StringPtr("Aylo")}, "", "ops"); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if _, err := svc.DeactivateOverride(ctx, 9); err != nil {
		t.Fatalf("DeactivateOverride: %v", err)
	}

	want := []string{"begin", "lock:9", "begin", "lock:9", "begin", "lock:9"}
	if fmt.Sprint(repo.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %v, want %v", repo.calls, want)
	}
}

func TestUpsertHierarchy_Idempotent(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[8] = "c"
	svc, _ := newTestService(repo, mapper.Resolution{})
	ctx := context.Background()

	if _, err := svc.SetOverride(ctx, 8, domain.OverrideFields{Domain: domain.StringPtr("D")}, "", ""); err != nil {
		t.Fatal(err)
	}
	h := ruleBased("N", "X")
	if err := svc.UpsertHierarchy(ctx, 8, "c", h, 0.4); err != nil {
		t.Fatal(err)
	}
	first := repo.rows[8]
	if err := svc.UpsertHierarchy(ctx, 8, "c", h, 0.4); err != nil {
		t.Fatal(err)
	}
	second := repo.rows[8]

	if first.Hierarchy != second.Hierarchy || first.MappingConfidence != second.MappingConfidence ||
		first.RuleBased != second.RuleBased || first.CampaignName != second.CampaignName {
		t.Fatalf("rows differ:\n%+v\n%+v", first, second)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatal("updated_at not refreshed")
	}
}

func TestResolveAll_ContinuesPastErrors(t *testing.T) {
	repo := newMemRepo()
	for i := int64(1); i <= 4; i++ {
		repo.campaigns[i] = fmt.Sprintf("c%d", i)
	}
	repo.failWrite[2] = true

	var hooks int
	cl := &stubClassifier{res: mapper.Resolution{Hierarchy: domain.DefaultHierarchy(), Confidence: 0.1}}
	svc := hierarchy.NewService(repo, cl,
		hierarchy.WithClock(fixedClock()),
		hierarchy.WithLowConfidenceThreshold(0.7),
		hierarchy.WithUpsertHook(func(source string) {
			if source == hierarchy.SourceResolve {
				hooks++
			}
		}))

	res, err := svc.ResolveAll(context.Background())
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if res.Processed != 4 || res.Updated != 3 || len(res.Errors) != 1 || res.LowConfidence != 4 {
		t.Fatalf("result = %+v", res)
	}
	if res.Errors[0].CampaignID != 2 || res.Errors[0].Name != "c2" {
		t.Fatalf("error item = %+v", res.Errors[0])
	}
	if hooks != 3 {
		t.Fatalf("hook calls = %d", hooks)
	}
}

func TestGetHierarchy_NoOverride(t *testing.T) {
	repo := newMemRepo()
	repo.campaigns[2] = "c"
	svc, _ := newTestService(repo, mapper.Resolution{})
	ctx := context.Background()

	if _, err := svc.GetHierarchy(ctx, 2); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("missing row: %v", err)
	}
	if err := svc.UpsertHierarchy(ctx, 2, "c", ruleBased("N", "D"), 0.6); err != nil {
		t.Fatal(err)
	}
	view, err := svc.GetHierarchy(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if view.HasOverride || view.Network != "N" || view.MappingConfidence != 0.6 {
		t.Fatalf("view = %+v", view)
	}
}

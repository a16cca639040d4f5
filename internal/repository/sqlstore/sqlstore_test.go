package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-warehouse/internal/db"
	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

func setupTestDB(t *testing.T, driver string) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return New(conn, driver), mock, func() { conn.Close() }
}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn, db.DriverSQLite))

	s := New(conn, db.DriverSQLite)
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return s
}

func seedCampaigns(t *testing.T, s *Store, names ...string) {
	t.Helper()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var cs []domain.Campaign
	for i, n := range names {
		cs = append(cs, domain.Campaign{ID: int64(i + 1), Name: n, CreatedAt: created, UpdatedAt: created})
	}
	_, _, err := s.UpsertCampaigns(context.Background(), cs)
	require.NoError(t, err)
}

func TestGetHierarchy_NotFound(t *testing.T) {
	s, mock, cleanup := setupTestDB(t, "sqlmock")
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM campaign_hierarchy WHERE campaign_id = ?")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id"}))

	_, err := s.GetHierarchy(context.Background(), 5)
	assert.True(t, errors.Is(err, hierarchy.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateOverrides_PostgresPlaceholders(t *testing.T) {
	s, mock, cleanup := setupTestDB(t, db.DriverPostgres)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("SET is_active = $1, updated_at = $2 WHERE campaign_id = $3 AND is_active = $4")).
		WithArgs(false, sqlmock.AnyArg(), int64(7), true).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.DeactivateOverrides(context.Background(), 7, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockCampaign_PostgresAdvisoryLockInTx(t *testing.T) {
	s, mock, cleanup := setupTestDB(t, db.DriverPostgres)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1, $2)")).
		WithArgs(int64(campaignLockSpace), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaign_hierarchy_overrides")).
		WithArgs(int64(7), true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(q hierarchy.Queries) error {
		if err := q.LockCampaign(context.Background(), 7); err != nil {
			return err
		}
		_, err := q.GetActiveOverride(context.Background(), 7)
		if errors.Is(err, hierarchy.ErrNoActiveOverride) {
			return nil
		}
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockCampaign_NoopOffPostgres(t *testing.T) {
	s, mock, cleanup := setupTestDB(t, "sqlmock")
	defer cleanup()

	require.NoError(t, s.LockCampaign(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s, mock, cleanup := setupTestDB(t, "sqlmock")
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaign_hierarchy_overrides")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(q hierarchy.Queries) error {
		if _, err := q.DeactivateOverrides(context.Background(), 1, time.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSyncRun_Returning(t *testing.T) {
	s, mock, cleanup := setupTestDB(t, "sqlmock")
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sync_history (sync_type, start_time, status) VALUES (?, ?, ?) RETURNING id")).
		WithArgs("full", sqlmock.AnyArg(), "running").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	id, err := s.StartSyncRun(context.Background(), "full")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCampaigns_CountsInsertedAndUpdated(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ins, upd, err := s.UpsertCampaigns(ctx, []domain.Campaign{
		{ID: 1, Name: "PornhubM_Ava_Lounge", IsServing: true, CreatedAt: created, UpdatedAt: created},
		{ID: 2, Name: "Reddit_US", CreatedAt: created, UpdatedAt: created},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ins)
	assert.Equal(t, 0, upd)

	deleted := created.Add(time.Hour)
	ins, upd, err = s.UpsertCampaigns(ctx, []domain.Campaign{
		{ID: 2, Name: "Reddit_US_v2", CreatedAt: created, UpdatedAt: deleted, DeletedAt: &deleted},
		{ID: 3, Name: "Tinder", CreatedAt: created, UpdatedAt: created},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ins)
	assert.Equal(t, 1, upd)

	c, err := s.GetCampaign(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Reddit_US_v2", c.Name)
	require.NotNil(t, c.DeletedAt)
	assert.True(t, c.DeletedAt.Equal(deleted))

	one, err := s.GetCampaign(ctx, 1)
	require.NoError(t, err)
	assert.True(t, one.IsServing)

	ids, err := s.CampaignIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	refs, err := s.ListCampaignRefs(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 3)

	_, err = s.GetCampaign(ctx, 99)
	assert.ErrorIs(t, err, hierarchy.ErrNotFound)
}

func TestUpsertHourly_ReplacesSameHour(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seedCampaigns(t, s, "c1")

	_, err := s.UpsertHourly(ctx, []domain.HourlyMetrics{
		{CampaignID: 1, UnixHour: 100, Sessions: 10, Registrations: 1},
		{CampaignID: 1, UnixHour: 101, Sessions: 20, Registrations: 2},
	})
	require.NoError(t, err)
	n, err := s.UpsertHourly(ctx, []domain.HourlyMetrics{{CampaignID: 1, UnixHour: 101, Sessions: 25, Registrations: 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.RecentHourly(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(101), rows[0].UnixHour)
	assert.Equal(t, int64(25), rows[0].Sessions)

	_, err = s.UpsertHourly(ctx, []domain.HourlyMetrics{{CampaignID: 404, UnixHour: 1}})
	assert.Error(t, err, "hourly rows need a stored campaign")
}

func TestOverrides_SingleActiveAndHistory(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seedCampaigns(t, s, "c1")

	for i, network := range []string{"A", "B", "C"} {
		id := []string{"0000-a", "0000-b", "0000-c"}[i]
		err := s.WithTx(ctx, func(q hierarchy.Queries) error {
			at := time.Date(2026, 2, 1, i, 0, 0, 0, time.UTC)
			if _, err := q.DeactivateOverrides(ctx, 1, at); err != nil {
				return err
			}
			return q.InsertOverride(ctx, &domain.Override{
				ID: id, CampaignID: 1,
				OverrideFields: domain.OverrideFields{Network: domain.StringPtr(network)},
				Reason:         "r", OverriddenBy: "ops", OverriddenAt: at,
				IsActive: true, CreatedAt: at, UpdatedAt: at,
			})
		})
		require.NoError(t, err)
	}

	o, err := s.GetActiveOverride(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0000-c", o.ID)
	assert.Equal(t, "C", *o.Network)
	assert.Nil(t, o.Domain)

	hist, err := s.OverrideHistory(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []string{"0000-c", "0000-b", "0000-a"}, []string{hist[0].ID, hist[1].ID, hist[2].ID})
	assert.True(t, hist[0].IsActive)
	assert.False(t, hist[1].IsActive)

	active, err := s.CountActiveOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	err = s.InsertOverride(ctx, &domain.Override{
		ID: "dup", CampaignID: 1, OverrideFields: domain.OverrideFields{Network: domain.StringPtr("X")},
		OverriddenAt: time.Now(), IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	assert.Error(t, err, "unique partial index rejects a second active override")
}

func TestRules_ReplaceAndLoad(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	mapping := domain.Hierarchy{Network: "Pornhub", Domain: "Adult Video Platform",
		Placement: domain.Inherit, Targeting: domain.Inherit, Special: domain.Inherit}
	rules := []domain.Rule{
		{Name: "pornhub", Priority: 1000, PatternType: domain.PatternStartsWith, PatternValue: "pornhub", Mapping: mapping, Active: true},
		{Name: "fallback", Priority: 10, PatternType: domain.PatternRegex, PatternValue: ".*", Mapping: domain.DefaultHierarchy(), Active: true},
	}
	require.NoError(t, s.ReplaceRules(ctx, rules))

	loaded, err := s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, rules, loaded)

	require.NoError(t, s.ReplaceRules(ctx, rules[1:]))
	loaded, err = s.LoadRules(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "fallback", loaded[0].Name)

	require.NoError(t, s.ReplaceRules(ctx, nil))
	loaded, err = s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSyncAndExportHistory(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	id, err := s.StartSyncRun(ctx, "full")
	require.NoError(t, err)
	require.NoError(t, s.FinishSyncRun(ctx, &domain.SyncRun{
		ID: id, Status: domain.RunCompleted, RecordsProcessed: 10, RecordsInserted: 4, RecordsUpdated: 6, APICallsMade: 3,
	}))
	id2, err := s.StartSyncRun(ctx, "historical")
	require.NoError(t, err)

	runs, err := s.RecentSyncRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, id2, runs[0].ID)
	assert.Equal(t, domain.RunRunning, runs[0].Status)
	assert.Nil(t, runs[0].EndTime)
	assert.Equal(t, domain.RunCompleted, runs[1].Status)
	assert.NotNil(t, runs[1].EndTime)
	assert.Equal(t, 6, runs[1].RecordsUpdated)

	eid, err := s.StartExport(ctx, "csv", `{"days":1}`)
	require.NoError(t, err)
	require.NoError(t, s.FinishExport(ctx, &domain.ExportRun{
		ID: eid, FilePath: "exports/report.csv", RecordsExported: 3, Status: domain.RunCompleted,
	}))
	exports, err := s.RecentExports(ctx, 5)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "exports/report.csv", exports[0].FilePath)
	assert.NotNil(t, exports[0].CompletedAt)
}

func TestCountsAndQuality(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seedCampaigns(t, s, "mapped", "unknown", "silent")

	now := time.Now().UTC()
	require.NoError(t, s.UpsertHierarchy(ctx, &domain.HierarchyRecord{
		CampaignID: 1, CampaignName: "mapped",
		Hierarchy:         domain.Hierarchy{Network: "Pornhub", Domain: "D", Placement: "P", Targeting: "T", Special: "S"},
		MappingConfidence: 0.9, RuleBased: domain.DefaultHierarchy(), RuleConfidence: 0.9,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.UpsertHierarchy(ctx, &domain.HierarchyRecord{
		CampaignID: 2, CampaignName: "unknown", Hierarchy: domain.DefaultHierarchy(),
		MappingConfidence: 0.1, RuleBased: domain.DefaultHierarchy(), RuleConfidence: 0.1,
		CreatedAt: now, UpdatedAt: now,
	}))
	_, err := s.UpsertHourly(ctx, []domain.HourlyMetrics{
		{CampaignID: 1, UnixHour: 500, Sessions: 100, Registrations: 10},
		{CampaignID: 2, UnixHour: 500, Sessions: 10, Registrations: 12},
	})
	require.NoError(t, err)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Campaigns)
	assert.Equal(t, 2, c.HourlyRows)
	assert.Equal(t, 2, c.HierarchyRows)
	assert.Equal(t, 1, c.MappedCampaigns)
	assert.InDelta(t, 0.5, c.MappedRatio(), 1e-9)

	buckets, err := s.ConfidenceBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{BucketHigh: 1, BucketMedium: 0, BucketLow: 1}, buckets)

	q, err := s.QualityStats(ctx, 0.7, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, q.LowConfidence)
	assert.Equal(t, 1, q.NoHourlyData)
	assert.Equal(t, 1, q.SuspiciousRegistrationRate)
	assert.Equal(t, 1, q.RegistrationsExceedSessions)

	q, err = s.QualityStats(ctx, 0.7, 501)
	require.NoError(t, err)
	assert.Equal(t, 0, q.SuspiciousRegistrationRate)
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, nullString(nil).Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString(domain.StringPtr("x")))
	assert.Nil(t, stringPtr(sql.NullString{}))
	assert.Nil(t, timePtr(sql.NullTime{}))
}

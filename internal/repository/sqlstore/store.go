// Package sqlstore implements the warehouse repositories on database/sql
// for both supported dialects. Queries are written with "?" placeholders
// and rebound per driver through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/campaign-warehouse/internal/db"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

func init() {
	sqlx.BindDriver(db.DriverSQLite, sqlx.QUESTION)
}

// Store is the sqlite/postgres repository. A Store created by WithTx runs
// every query on the transaction.
type Store struct {
	db  *sqlx.DB
	q   sqlx.ExtContext
	now func() time.Time
}

// New wraps an open database for the given driver name.
func New(conn *sql.DB, driver string) *Store {
	x := sqlx.NewDb(conn, driver)
	return &Store{db: x, q: x, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the store clock.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

// WithTx runs fn in a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(q hierarchy.Queries) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

// campaignLockSpace is the first key of the two-key advisory lock taken
// per campaign. The single-key space belongs to distlock.
const campaignLockSpace int32 = 0x6869 // "hi"

// LockCampaign takes a transaction-scoped advisory lock on the campaign so
// that a resolve pass cannot interleave with an override change at READ
// COMMITTED. sqlite already admits one writer at a time, so it is a no-op
// there.
func (s *Store) LockCampaign(ctx context.Context, campaignID int64) error {
	if s.db.DriverName() != db.DriverPostgres {
		return nil
	}
	key := int32(campaignID ^ campaignID>>32)
	if _, err := s.exec(ctx, `SELECT pg_advisory_xact_lock(?, ?)`, campaignLockSpace, key); err != nil {
		return fmt.Errorf("lock campaign %d: %w", campaignID, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{db: s.db, q: tx, now: s.now}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.q.Rebind(query), args...)
}

func (s *Store) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

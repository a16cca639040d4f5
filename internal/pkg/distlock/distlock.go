// Package distlock guards sync runs so two warehouse processes never
// resolve and upsert the same campaigns at once.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by WithLock when another holder owns the lock.
var ErrNotAcquired = errors.New("distlock: lock held by another process")

// DistLock is the interface for distributed locking.
// A single lock instance must not be shared across goroutines.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock picks a backend: Redis when a client is configured, a Postgres
// advisory lock for the postgres driver, and an in-process lock otherwise
// (sqlite deployments run as a single process).
func NewLock(redisClient *redis.Client, db *sql.DB, driver, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	if driver == "postgres" && db != nil {
		return NewPGAdvisoryLock(db, key)
	}
	return NewLocalLock(key)
}

// WithLock runs fn while holding lock. It returns ErrNotAcquired without
// calling fn if the lock is taken.
func WithLock(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) error {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		// Release on a fresh context so a cancelled run still frees the lock.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(relCtx)
	}()
	return fn(ctx)
}

// =============================================================================
// PostgreSQL Advisory Lock
// =============================================================================
// pg_try_advisory_lock is session scoped, so the lock pins one pooled
// connection from Acquire until Release.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a lock ID derived from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	return &PGAdvisoryLock{db: db, lockID: KeyID(key)}
}

// KeyID hashes a lock key to the int64 advisory lock space.
func KeyID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns the pinned connection.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}

// =============================================================================
// Local lock
// =============================================================================

var (
	localMu   sync.Mutex
	localHeld = map[string]bool{}
)

// LocalLock is a process-wide named lock.
type LocalLock struct {
	key  string
	held bool
}

// NewLocalLock creates a process-local lock for key.
func NewLocalLock(key string) *LocalLock {
	return &LocalLock{key: key}
}

// Acquire takes the named lock if no other LocalLock holds it.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	localMu.Lock()
	defer localMu.Unlock()
	if localHeld[l.key] {
		return false, nil
	}
	localHeld[l.key] = true
	l.held = true
	return true, nil
}

// Release frees the named lock if this instance holds it.
func (l *LocalLock) Release(ctx context.Context) error {
	localMu.Lock()
	defer localMu.Unlock()
	if l.held {
		delete(localHeld, l.key)
		l.held = false
	}
	return nil
}

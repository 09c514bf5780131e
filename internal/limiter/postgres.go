package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter implementation with sliding window and lockout.
type PG struct {
	pool      pgxQuerier
	window    time.Duration
	maxPushes int
	blockFor  time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxPushes int, blockFor time.Duration) *PG {
	return &PG{pool: pool, window: window, maxPushes: maxPushes, blockFor: blockFor}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, maxPushes int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxPushes: maxPushes, blockFor: blockFor}
}

// Allow reports whether pushes are currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, userID, deviceID string) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM sync_limiter WHERE user_id=$1 AND device_id=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, userID, deviceID).Scan(&blockedUntil)
	switch err {
	case nil:
		if blockedUntil.After(time.Now()) {
			return false, time.Until(blockedUntil), nil
		}
		return true, 0, nil
	case pgx.ErrNoRows:
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Record counts one push; resets the window when stale, blocks when the
// budget is exhausted.
func (l *PG) Record(ctx context.Context, userID, deviceID string) (bool, time.Duration, error) {
	const q = `
INSERT INTO sync_limiter (user_id, device_id, push_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (user_id, device_id) DO UPDATE
SET
  push_count = CASE WHEN EXCLUDED.updated_at - sync_limiter.updated_at > $3::interval THEN 1 ELSE sync_limiter.push_count + 1 END,
  updated_at = now()
RETURNING push_count`
	var count int
	if err := l.pool.QueryRow(ctx, q, userID, deviceID, l.window).Scan(&count); err != nil {
		return false, 0, err
	}
	if count > l.maxPushes {
		blockUntil := time.Now().Add(l.blockFor)
		const upd = `UPDATE sync_limiter SET blocked_until=$3 WHERE user_id=$1 AND device_id=$2`
		if _, err := l.pool.Exec(ctx, upd, userID, deviceID, blockUntil); err != nil {
			return false, 0, err
		}
		return true, l.blockFor, nil
	}
	return false, 0, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

// ConflictRepo implements ConflictRepository using PostgreSQL. The paired
// operations are stored as JSONB snapshots: the local one was held back and
// never entered the log, so there is no row to reference.
type ConflictRepo struct{ db *DB }

// NewConflictRepo constructs a conflict repository.
func NewConflictRepo(db *DB) *ConflictRepo { return &ConflictRepo{db: db} }

const conflictColumns = `id, user_id, entity_type, entity_id, local_op, server_op, resolution, resolved_at, detected_at`

// Add appends a detected conflict.
func (r *ConflictRepo) Add(ctx context.Context, c model.Conflict) (model.Conflict, error) {
	localJSON, err := json.Marshal(c.Local)
	if err != nil {
		return model.Conflict{}, err
	}
	serverJSON, err := json.Marshal(c.Server)
	if err != nil {
		return model.Conflict{}, err
	}
	const q = `INSERT INTO sync_conflicts (id, user_id, entity_type, entity_id, local_op, server_op, detected_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.db.Pool.Exec(ctx, q,
		c.ID, c.UserID, string(c.EntityType), c.EntityID, localJSON, serverJSON, c.DetectedAt,
	); err != nil {
		return model.Conflict{}, err
	}
	return c, nil
}

// Get returns a conflict by ID across all users.
func (r *ConflictRepo) Get(ctx context.Context, id string) (*model.Conflict, error) {
	const q = `
SELECT ` + conflictColumns + `
FROM sync_conflicts WHERE id=$1`
	c, err := scanConflict(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// Resolve sets resolution kind and timestamp and returns the updated record.
func (r *ConflictRepo) Resolve(
	ctx context.Context, id string, res model.Resolution, at time.Time,
) (*model.Conflict, error) {
	const q = `
UPDATE sync_conflicts SET resolution=$2, resolved_at=$3
WHERE id=$1
RETURNING ` + conflictColumns
	c, err := scanConflict(r.db.Pool.QueryRow(ctx, q, id, string(res), at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListUnresolved returns the user's unresolved conflicts, oldest first.
func (r *ConflictRepo) ListUnresolved(ctx context.Context, userID string) ([]model.Conflict, error) {
	const q = `
SELECT ` + conflictColumns + `
FROM sync_conflicts
WHERE user_id=$1 AND resolved_at IS NULL
ORDER BY detected_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountUnresolved returns the user's unresolved conflict count.
func (r *ConflictRepo) CountUnresolved(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM sync_conflicts WHERE user_id=$1 AND resolved_at IS NULL`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanConflict(row pgx.Row) (*model.Conflict, error) {
	var (
		c          model.Conflict
		localJSON  []byte
		serverJSON []byte
		resolution *string
	)
	if err := row.Scan(
		&c.ID, &c.UserID, &c.EntityType, &c.EntityID,
		&localJSON, &serverJSON, &resolution, &c.ResolvedAt, &c.DetectedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(localJSON, &c.Local); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(serverJSON, &c.Server); err != nil {
		return nil, err
	}
	if resolution != nil {
		c.Resolution = model.Resolution(*resolution)
	}
	return &c, nil
}

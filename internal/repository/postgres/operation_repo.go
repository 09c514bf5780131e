package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

// OperationRepo implements OperationRepository using PostgreSQL. The
// monotonic-version invariant is kept under concurrent pushes by making the
// version bump a single atomic upsert: ON CONFLICT DO UPDATE locks the
// version row and assigns current+1 in one statement, so two first writes
// for an unseen key serialize instead of both reading version 0. A unique
// index on (user_id, entity_type, entity_id, version) backstops the log.
type OperationRepo struct{ db *DB }

// NewOperationRepo constructs an operation log repository.
func NewOperationRepo(db *DB) *OperationRepo { return &OperationRepo{db: db} }

const opColumns = `id, user_id, device_id, entity_type, entity_id, kind, payload, version, synced, created_at`

// Push assigns version = current key version + 1 and stores the operation.
func (r *OperationRepo) Push(
	ctx context.Context, userID string, op model.LocalOp,
) (stored model.Operation, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Operation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const bump = `
INSERT INTO entity_versions (entity_key, version) VALUES ($1,1)
ON CONFLICT (entity_key) DO UPDATE SET version = entity_versions.version + 1
RETURNING version`
	const ins = `INSERT INTO sync_operations (id, user_id, device_id, entity_type, entity_id, kind, payload, version, synced, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,$9)`

	var newVer int64
	if err = tx.QueryRow(ctx, bump, op.EntityKey()).Scan(&newVer); err != nil {
		return model.Operation{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Operation{}, err
	}
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err = tx.Exec(ctx, ins,
		id.String(), userID, op.DeviceID, string(op.EntityType), op.EntityID,
		string(op.Kind), op.Payload, newVer, createdAt,
	); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrVersionConflict
		}
		return model.Operation{}, err
	}

	return model.Operation{
		ID:         id.String(),
		UserID:     userID,
		DeviceID:   op.DeviceID,
		EntityType: op.EntityType,
		EntityID:   op.EntityID,
		Kind:       op.Kind,
		Payload:    op.Payload,
		Version:    newVer,
		Synced:     false,
		CreatedAt:  createdAt,
	}, nil
}

// ListSince returns operations from other devices, oldest first.
func (r *OperationRepo) ListSince(
	ctx context.Context, userID, deviceID string, since *time.Time,
) ([]model.Operation, error) {
	q := `
SELECT ` + opColumns + `
FROM sync_operations
WHERE user_id=$1 AND device_id<>$2
ORDER BY created_at ASC`
	args := []any{userID, deviceID}
	if since != nil {
		q = `
SELECT ` + opColumns + `
FROM sync_operations
WHERE user_id=$1 AND device_id<>$2 AND created_at>$3
ORDER BY created_at ASC`
		args = append(args, *since)
	}
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOperations(rows)
}

// MarkSynced flips synced=true for ids not yet synced.
func (r *OperationRepo) MarkSynced(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `UPDATE sync_operations SET synced=true WHERE id=ANY($1) AND synced=false`
	tag, err := r.db.Pool.Exec(ctx, q, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// OfflineQueue returns the device's own unsynced operations, oldest first.
func (r *OperationRepo) OfflineQueue(ctx context.Context, userID, deviceID string) ([]model.Operation, error) {
	const q = `
SELECT ` + opColumns + `
FROM sync_operations
WHERE user_id=$1 AND device_id=$2 AND synced=false
ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOperations(rows)
}

// ClearOfflineQueue deletes the device's synced operations.
func (r *OperationRepo) ClearOfflineQueue(ctx context.Context, userID, deviceID string) (int, error) {
	const q = `DELETE FROM sync_operations WHERE user_id=$1 AND device_id=$2 AND synced=true`
	tag, err := r.db.Pool.Exec(ctx, q, userID, deviceID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// FindByKeyVersion returns the stored operation at exactly the given version.
func (r *OperationRepo) FindByKeyVersion(
	ctx context.Context, userID string, t model.EntityType, entityID string, version int64,
) (*model.Operation, error) {
	const q = `
SELECT ` + opColumns + `
FROM sync_operations
WHERE user_id=$1 AND entity_type=$2 AND entity_id=$3 AND version=$4
LIMIT 1`
	row := r.db.Pool.QueryRow(ctx, q, userID, string(t), entityID, version)
	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return op, nil
}

// GetVersion returns the entity key's current version, 0 when unseen.
func (r *OperationRepo) GetVersion(ctx context.Context, t model.EntityType, entityID string) (int64, error) {
	const q = `SELECT COALESCE((SELECT version FROM entity_versions WHERE entity_key=$1), 0)`
	var v int64
	if err := r.db.Pool.QueryRow(ctx, q, model.EntityKey(t, entityID)).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// SetVersion overwrites the entity key's version.
func (r *OperationRepo) SetVersion(ctx context.Context, t model.EntityType, entityID string, version int64) error {
	const q = `INSERT INTO entity_versions (entity_key, version) VALUES ($1,$2) ON CONFLICT (entity_key) DO UPDATE SET version=EXCLUDED.version`
	_, err := r.db.Pool.Exec(ctx, q, model.EntityKey(t, entityID), version)
	return err
}

// StoreResolved stores a pre-versioned synthetic operation and raises the
// version table to its version.
func (r *OperationRepo) StoreResolved(ctx context.Context, op model.Operation) (stored model.Operation, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Operation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `INSERT INTO sync_operations (id, user_id, device_id, entity_type, entity_id, kind, payload, version, synced, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,$9)`
	const bump = `INSERT INTO entity_versions (entity_key, version) VALUES ($1,$2) ON CONFLICT (entity_key) DO UPDATE SET version=EXCLUDED.version`

	if _, err = tx.Exec(ctx, ins,
		op.ID, op.UserID, op.DeviceID, string(op.EntityType), op.EntityID,
		string(op.Kind), op.Payload, op.Version, op.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrVersionConflict
		}
		return model.Operation{}, err
	}
	if _, err = tx.Exec(ctx, bump, op.EntityKey(), op.Version); err != nil {
		return model.Operation{}, err
	}
	return op, nil
}

func scanOperation(row pgx.Row) (*model.Operation, error) {
	var op model.Operation
	if err := row.Scan(
		&op.ID, &op.UserID, &op.DeviceID, &op.EntityType, &op.EntityID,
		&op.Kind, &op.Payload, &op.Version, &op.Synced, &op.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &op, nil
}

func scanOperations(rows pgx.Rows) ([]model.Operation, error) {
	var out []model.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

// Push assigns version = current key version + 1 and stores the operation.
func (d *DB) Push(_ context.Context, userID string, op model.LocalOp) (model.Operation, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	key := op.EntityKey()
	cur, err := readVersion(txn, key)
	if err != nil {
		return model.Operation{}, err
	}
	newVer := cur + 1

	id, err := uuid.NewV4()
	if err != nil {
		return model.Operation{}, err
	}
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	stored := &model.Operation{
		ID:         id.String(),
		UserID:     userID,
		DeviceID:   op.DeviceID,
		EntityType: op.EntityType,
		EntityID:   op.EntityID,
		Kind:       op.Kind,
		Payload:    clonePayload(op.Payload),
		Version:    newVer,
		Synced:     false,
		CreatedAt:  createdAt,
	}
	if err := txn.Insert(tblOperations, stored); err != nil {
		return model.Operation{}, fmt.Errorf("insert operation: %w", err)
	}
	if err := txn.Insert(tblVersions, &versionRecord{Key: key, Version: newVer}); err != nil {
		return model.Operation{}, fmt.Errorf("bump version: %w", err)
	}
	txn.Commit()
	return *cloneOperation(stored), nil
}

// ListSince returns operations from other devices, oldest first.
func (d *DB) ListSince(_ context.Context, userID, deviceID string, since *time.Time) ([]model.Operation, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblOperations, "user", userID)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	var out []model.Operation
	for raw := it.Next(); raw != nil; raw = it.Next() {
		op := raw.(*model.Operation)
		if op.DeviceID == deviceID {
			continue
		}
		if since != nil && !op.CreatedAt.After(*since) {
			continue
		}
		out = append(out, *cloneOperation(op))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkSynced flips synced=true for ids not yet synced.
func (d *DB) MarkSynced(_ context.Context, ids []string) (int, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	flipped := 0
	for _, id := range ids {
		raw, err := txn.First(tblOperations, "id", id)
		if err != nil {
			return 0, fmt.Errorf("find operation: %w", err)
		}
		if raw == nil {
			continue
		}
		op := raw.(*model.Operation)
		if op.Synced {
			continue
		}
		upd := cloneOperation(op)
		upd.Synced = true
		if err := txn.Insert(tblOperations, upd); err != nil {
			return 0, fmt.Errorf("update operation: %w", err)
		}
		flipped++
	}
	txn.Commit()
	return flipped, nil
}

// OfflineQueue returns the device's own unsynced operations, oldest first.
func (d *DB) OfflineQueue(_ context.Context, userID, deviceID string) ([]model.Operation, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblOperations, "user_device", userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	var out []model.Operation
	for raw := it.Next(); raw != nil; raw = it.Next() {
		op := raw.(*model.Operation)
		if op.Synced {
			continue
		}
		out = append(out, *cloneOperation(op))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ClearOfflineQueue deletes the device's synced operations.
func (d *DB) ClearOfflineQueue(_ context.Context, userID, deviceID string) (int, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(tblOperations, "user_device", userID, deviceID)
	if err != nil {
		return 0, fmt.Errorf("list queue: %w", err)
	}
	var synced []*model.Operation
	for raw := it.Next(); raw != nil; raw = it.Next() {
		op := raw.(*model.Operation)
		if op.Synced {
			synced = append(synced, op)
		}
	}
	for _, op := range synced {
		if err := txn.Delete(tblOperations, op); err != nil {
			return 0, fmt.Errorf("delete operation: %w", err)
		}
	}
	txn.Commit()
	return len(synced), nil
}

// FindByKeyVersion returns the stored operation at exactly the given version.
func (d *DB) FindByKeyVersion(
	_ context.Context, userID string, t model.EntityType, entityID string, version int64,
) (*model.Operation, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblOperations, "user_key", userID, string(t), entityID)
	if err != nil {
		return nil, fmt.Errorf("find operation: %w", err)
	}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		op := raw.(*model.Operation)
		if op.Version == version {
			return cloneOperation(op), nil
		}
	}
	return nil, errs.ErrNotFound
}

// GetVersion returns the entity key's current version, 0 when unseen.
func (d *DB) GetVersion(_ context.Context, t model.EntityType, entityID string) (int64, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()
	return readVersion(txn, model.EntityKey(t, entityID))
}

// SetVersion overwrites the entity key's version.
func (d *DB) SetVersion(_ context.Context, t model.EntityType, entityID string, version int64) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblVersions, &versionRecord{Key: model.EntityKey(t, entityID), Version: version}); err != nil {
		return fmt.Errorf("set version: %w", err)
	}
	txn.Commit()
	return nil
}

// StoreResolved stores a pre-versioned synthetic operation and raises the
// version table to its version.
func (d *DB) StoreResolved(_ context.Context, op model.Operation) (model.Operation, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	stored := cloneOperation(&op)
	if err := txn.Insert(tblOperations, stored); err != nil {
		return model.Operation{}, fmt.Errorf("insert operation: %w", err)
	}
	if err := txn.Insert(tblVersions, &versionRecord{Key: op.EntityKey(), Version: op.Version}); err != nil {
		return model.Operation{}, fmt.Errorf("bump version: %w", err)
	}
	txn.Commit()
	return *cloneOperation(stored), nil
}

func readVersion(txn interface {
	First(table, index string, args ...any) (any, error)
}, key string) (int64, error) {
	raw, err := txn.First(tblVersions, "id", key)
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	return raw.(*versionRecord).Version, nil
}

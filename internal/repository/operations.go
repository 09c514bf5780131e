// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/dosepilot/medsync/internal/model"
)

// OperationRepository provides access to the append-only operation log and
// the entity version table. The two live behind one interface because a push
// must assign "current version + 1" and raise the table in a single
// transaction; backends serving concurrent callers must hold a per-key lock
// (or CAS the version row) across that read-increment-write.
type OperationRepository interface {
	// Push stores a new operation with version = current key version + 1,
	// raises the entity version table, and returns the stored record.
	Push(ctx context.Context, userID string, op model.LocalOp) (model.Operation, error)

	// ListSince returns the user's operations originating from other devices,
	// optionally restricted to CreatedAt > since, ordered by CreatedAt ASC.
	ListSince(ctx context.Context, userID, deviceID string, since *time.Time) ([]model.Operation, error)

	// MarkSynced flips synced=true for the given operation IDs across all
	// users and returns how many were newly flipped.
	MarkSynced(ctx context.Context, ids []string) (int, error)

	// OfflineQueue returns the device's own operations not yet synced.
	OfflineQueue(ctx context.Context, userID, deviceID string) ([]model.Operation, error)

	// ClearOfflineQueue removes the device's operations that are already
	// synced, keeps unsynced ones, and returns the count removed.
	ClearOfflineQueue(ctx context.Context, userID, deviceID string) (int, error)

	// FindByKeyVersion returns the user's stored operation for the entity key
	// at exactly the given version, or ErrNotFound.
	FindByKeyVersion(ctx context.Context, userID string, t model.EntityType, entityID string, version int64) (*model.Operation, error)

	// GetVersion returns the entity key's current version, 0 when unseen.
	GetVersion(ctx context.Context, t model.EntityType, entityID string) (int64, error)

	// SetVersion overwrites the entity key's version (conflict resolution).
	SetVersion(ctx context.Context, t model.EntityType, entityID string, version int64) error

	// StoreResolved stores a pre-versioned synthetic operation produced by a
	// merge resolution and raises the entity version table to its version.
	StoreResolved(ctx context.Context, op model.Operation) (model.Operation, error)
}

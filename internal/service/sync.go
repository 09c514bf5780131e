package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
	"github.com/dosepilot/medsync/internal/repository"
)

// SyncService defines operations over the versioned operation log.
type SyncService interface {
	// Push accepts one device change, assigns the next version for its
	// entity key, and returns the stored operation.
	Push(ctx context.Context, userID string, op model.LocalOp) (model.Operation, error)
	// Pull returns operations made on other devices, oldest first.
	Pull(ctx context.Context, userID, deviceID string, since *time.Time) ([]model.Operation, error)
	// MarkSynced flips synced=true for the given ids; idempotent, returns
	// the count newly flipped.
	MarkSynced(ctx context.Context, ids []string) (int, error)
	// OfflineQueue returns the device's own unsynced operations.
	OfflineQueue(ctx context.Context, userID, deviceID string) ([]model.Operation, error)
	// ClearOfflineQueue removes the device's synced operations.
	ClearOfflineQueue(ctx context.Context, userID, deviceID string) (int, error)
}

type SyncServiceImpl struct {
	repo     repository.OperationRepository
	maxBatch int
}

// NewSyncService constructs SyncService with batch limits.
func NewSyncService(repo repository.OperationRepository, maxBatch int) *SyncServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &SyncServiceImpl{repo: repo, maxBatch: maxBatch}
}

// ValidateLocalOp rejects operations outside the fixed entity-type and
// kind sets before they reach storage.
func ValidateLocalOp(op model.LocalOp) error {
	if op.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", errs.ErrValidation)
	}
	if op.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", errs.ErrValidation)
	}
	if !op.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", errs.ErrValidation, op.EntityType)
	}
	if !op.Kind.Valid() {
		return fmt.Errorf("%w: unknown operation kind %q", errs.ErrValidation, op.Kind)
	}
	if op.Version < 0 {
		return fmt.Errorf("%w: negative version", errs.ErrValidation)
	}
	return nil
}

// Push validates input and delegates the versioned append to the repository.
func (s *SyncServiceImpl) Push(ctx context.Context, userID string, op model.LocalOp) (model.Operation, error) {
	if userID == "" {
		return model.Operation{}, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if err := ValidateLocalOp(op); err != nil {
		return model.Operation{}, err
	}
	return s.repo.Push(ctx, userID, op)
}

// Pull returns operations from other devices with CreatedAt > since.
func (s *SyncServiceImpl) Pull(ctx context.Context, userID, deviceID string, since *time.Time) ([]model.Operation, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	return s.repo.ListSince(ctx, userID, deviceID, since)
}

// MarkSynced flips the synced flag for the given operation ids.
func (s *SyncServiceImpl) MarkSynced(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > s.maxBatch {
		return 0, fmt.Errorf("%w: batch too large (%d > %d)", errs.ErrValidation, len(ids), s.maxBatch)
	}
	return s.repo.MarkSynced(ctx, ids)
}

// OfflineQueue returns the device's pending operations.
func (s *SyncServiceImpl) OfflineQueue(ctx context.Context, userID, deviceID string) ([]model.Operation, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	return s.repo.OfflineQueue(ctx, userID, deviceID)
}

// ClearOfflineQueue drops the device's already-propagated operations.
func (s *SyncServiceImpl) ClearOfflineQueue(ctx context.Context, userID, deviceID string) (int, error) {
	if userID == "" || deviceID == "" {
		return 0, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	return s.repo.ClearOfflineQueue(ctx, userID, deviceID)
}

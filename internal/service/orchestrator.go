package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

// ConnectivityProbe reports whether the server considers itself online.
// The status endpoint never fabricates connectivity; deployments inject a
// real probe or the static default.
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline is the static probe for single-node deployments.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online(context.Context) bool { return true }

// Orchestrator composes detection, push and the device registry into the
// full sync cycle.
type Orchestrator interface {
	// FullSync detects conflicts in the batch, holds back operations whose
	// entity is involved in one, pushes the rest, touches the device's
	// last-sync time and returns applied ops, conflicts and status.
	FullSync(ctx context.Context, userID, deviceID string, local []model.LocalOp) (*model.FullSyncResult, error)
	// Status reports the device's pending-operation count, the user's
	// unresolved-conflict count, last sync time and connectivity.
	Status(ctx context.Context, userID, deviceID string) (model.SyncStatus, error)
}

type OrchestratorImpl struct {
	sync      SyncService
	conflicts ConflictService
	devices   DeviceService
	probe     ConnectivityProbe
	maxBatch  int
}

// NewOrchestrator constructs Orchestrator. A nil probe reports online.
func NewOrchestrator(
	sync SyncService,
	conflicts ConflictService,
	devices DeviceService,
	probe ConnectivityProbe,
	maxBatch int,
) *OrchestratorImpl {
	if probe == nil {
		probe = AlwaysOnline{}
	}
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &OrchestratorImpl{sync: sync, conflicts: conflicts, devices: devices, probe: probe, maxBatch: maxBatch}
}

// FullSync runs one pull-detect-apply-status cycle for a device. Atomicity
// is per entity, not per batch: operations on conflicted entities are held
// back while the rest apply.
func (o *OrchestratorImpl) FullSync(
	ctx context.Context, userID, deviceID string, local []model.LocalOp,
) (*model.FullSyncResult, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	if len(local) > o.maxBatch {
		return nil, fmt.Errorf("%w: batch too large (%d > %d)", errs.ErrValidation, len(local), o.maxBatch)
	}

	detected, err := o.conflicts.Detect(ctx, userID, local)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(detected))
	for i := range detected {
		held[model.EntityKey(detected[i].EntityType, detected[i].EntityID)] = struct{}{}
	}

	applied := make([]model.Operation, 0, len(local))
	for _, op := range local {
		if _, ok := held[op.EntityKey()]; ok {
			continue
		}
		stored, err := o.sync.Push(ctx, userID, op)
		if err != nil {
			return nil, err
		}
		applied = append(applied, stored)
	}

	now := time.Now().UTC()
	if err := o.devices.TouchLastSync(ctx, userID, deviceID, now); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	status, err := o.Status(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	return &model.FullSyncResult{Applied: applied, Conflicts: detected, Status: status}, nil
}

// Status assembles the device's current sync status.
func (o *OrchestratorImpl) Status(ctx context.Context, userID, deviceID string) (model.SyncStatus, error) {
	if userID == "" || deviceID == "" {
		return model.SyncStatus{}, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	queue, err := o.sync.OfflineQueue(ctx, userID, deviceID)
	if err != nil {
		return model.SyncStatus{}, err
	}
	unresolved, err := o.conflicts.UnresolvedCount(ctx, userID)
	if err != nil {
		return model.SyncStatus{}, err
	}
	var lastSync *time.Time
	dev, err := o.devices.Get(ctx, userID, deviceID)
	switch {
	case err == nil:
		lastSync = dev.LastSyncAt
	case errors.Is(err, errs.ErrNotFound):
		// Unregistered devices still get a status.
	default:
		return model.SyncStatus{}, err
	}
	return model.SyncStatus{
		PendingOps:          len(queue),
		UnresolvedConflicts: unresolved,
		LastSyncAt:          lastSync,
		Online:              o.probe.Online(ctx),
	}, nil
}

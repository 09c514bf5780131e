package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
	"github.com/dosepilot/medsync/internal/repository"
)

// MergeValidator checks caller-supplied merged payloads against whatever
// shape the entity type expects. The engine ships a no-op default; products
// plug in schema validation here instead of the engine guessing shapes.
type MergeValidator interface {
	Validate(t model.EntityType, payload map[string]any) error
}

// NopMergeValidator accepts any merged payload.
type NopMergeValidator struct{}

// Validate always succeeds.
func (NopMergeValidator) Validate(model.EntityType, map[string]any) error { return nil }

// ConflictService defines conflict detection and resolution.
type ConflictService interface {
	// Detect records a conflict for every incoming operation whose version
	// is stale and whose server-side counterpart came from another device.
	// Returns only the conflicts detected in this call.
	Detect(ctx context.Context, userID string, incoming []model.LocalOp) ([]model.Conflict, error)
	// Resolve applies a resolution to a conflict found by ID across all
	// users. merged is required for the merged resolution.
	Resolve(ctx context.Context, id string, res model.Resolution, merged map[string]any) (*model.Conflict, error)
	// Unresolved returns the user's conflicts lacking a resolution.
	Unresolved(ctx context.Context, userID string) ([]model.Conflict, error)
	// UnresolvedCount returns the user's unresolved conflict count.
	UnresolvedCount(ctx context.Context, userID string) (int, error)
}

type ConflictServiceImpl struct {
	ops       repository.OperationRepository
	conflicts repository.ConflictRepository
	validate  MergeValidator
}

// NewConflictService constructs ConflictService. A nil validator accepts
// any merged payload.
func NewConflictService(
	ops repository.OperationRepository,
	conflicts repository.ConflictRepository,
	validate MergeValidator,
) *ConflictServiceImpl {
	if validate == nil {
		validate = NopMergeValidator{}
	}
	return &ConflictServiceImpl{ops: ops, conflicts: conflicts, validate: validate}
}

// Detect flags incoming operations whose version is at or behind the server
// version for their entity key, when the stored operation at exactly that
// version originated from a different device. Version comparison is a cheap
// partial substitute for vector clocks: same-device replays are not flagged,
// and a first write with no prior stored operation cannot conflict.
func (s *ConflictServiceImpl) Detect(ctx context.Context, userID string, incoming []model.LocalOp) ([]model.Conflict, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	detected := make([]model.Conflict, 0)
	for i, op := range incoming {
		if err := ValidateLocalOp(op); err != nil {
			return nil, fmt.Errorf("op[%d]: %w", i, err)
		}
		serverVer, err := s.ops.GetVersion(ctx, op.EntityType, op.EntityID)
		if err != nil {
			return nil, err
		}
		if op.Version > serverVer {
			continue
		}
		if serverVer < 2 {
			// A key's very first accepted write cannot collide: divergence
			// needs a second write to exist.
			continue
		}
		serverOp, err := s.ops.FindByKeyVersion(ctx, userID, op.EntityType, op.EntityID, serverVer)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if serverOp.DeviceID == op.DeviceID {
			continue
		}
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		c, err := s.conflicts.Add(ctx, model.Conflict{
			ID:         id.String(),
			UserID:     userID,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Local:      op,
			Server:     *serverOp,
			DetectedAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		detected = append(detected, c)
	}
	return detected, nil
}

// Resolve applies the chosen resolution and marks the conflict resolved.
func (s *ConflictServiceImpl) Resolve(
	ctx context.Context, id string, res model.Resolution, merged map[string]any,
) (*model.Conflict, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty conflict id", errs.ErrValidation)
	}
	if !res.Valid() {
		return nil, fmt.Errorf("%w: unknown resolution %q", errs.ErrValidation, res)
	}
	c, err := s.conflicts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Resolved() {
		return nil, fmt.Errorf("%w: conflict already resolved", errs.ErrValidation)
	}

	switch res {
	case model.ResolveLocal:
		// Accept the local writer's view as final.
		if err := s.ops.SetVersion(ctx, c.EntityType, c.EntityID, c.Local.Version); err != nil {
			return nil, err
		}
	case model.ResolveServer:
		// The server's version already stands.
	case model.ResolveMerged:
		if len(merged) == 0 {
			return nil, fmt.Errorf("%w: merged resolution requires merged data", errs.ErrValidation)
		}
		if err := s.validate.Validate(c.EntityType, merged); err != nil {
			return nil, fmt.Errorf("%w: merged data rejected: %v", errs.ErrValidation, err)
		}
		opID, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		version := c.Local.Version
		if c.Server.Version > version {
			version = c.Server.Version
		}
		version++
		if _, err := s.ops.StoreResolved(ctx, model.Operation{
			ID:         opID.String(),
			UserID:     c.UserID,
			DeviceID:   c.Local.DeviceID,
			EntityType: c.EntityType,
			EntityID:   c.EntityID,
			Kind:       model.OpUpdate,
			Payload:    merged,
			Version:    version,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}

	return s.conflicts.Resolve(ctx, id, res, time.Now().UTC())
}

// Unresolved returns pending conflicts for the user.
func (s *ConflictServiceImpl) Unresolved(ctx context.Context, userID string) ([]model.Conflict, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	return s.conflicts.ListUnresolved(ctx, userID)
}

// UnresolvedCount counts pending conflicts for the user.
func (s *ConflictServiceImpl) UnresolvedCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	return s.conflicts.CountUnresolved(ctx, userID)
}

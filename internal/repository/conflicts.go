package repository

import (
	"context"
	"time"

	"github.com/dosepilot/medsync/internal/model"
)

// ConflictRepository stores detected conflicts. Conflicts are mutated once
// (resolution) and never deleted.
type ConflictRepository interface {
	// Add appends a detected conflict to the user's conflict list.
	Add(ctx context.Context, c model.Conflict) (model.Conflict, error)

	// Get returns a conflict by ID across all users, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Conflict, error)

	// Resolve sets the resolution kind and timestamp and returns the updated
	// record, or ErrNotFound.
	Resolve(ctx context.Context, id string, res model.Resolution, at time.Time) (*model.Conflict, error)

	// ListUnresolved returns the user's conflicts lacking a resolution.
	ListUnresolved(ctx context.Context, userID string) ([]model.Conflict, error)

	// CountUnresolved returns how many of the user's conflicts are unresolved.
	CountUnresolved(ctx context.Context, userID string) (int, error)
}

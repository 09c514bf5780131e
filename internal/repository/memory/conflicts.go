package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

// Add appends a detected conflict.
func (d *ConflictRepo) Add(_ context.Context, c model.Conflict) (model.Conflict, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblConflicts, cloneConflict(&c)); err != nil {
		return model.Conflict{}, fmt.Errorf("insert conflict: %w", err)
	}
	txn.Commit()
	return c, nil
}

// Get returns a conflict by ID across all users.
func (d *ConflictRepo) Get(_ context.Context, id string) (*model.Conflict, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblConflicts, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find conflict: %w", err)
	}
	if raw == nil {
		return nil, errs.ErrNotFound
	}
	return cloneConflict(raw.(*model.Conflict)), nil
}

// Resolve sets resolution kind and timestamp and returns the updated record.
func (d *ConflictRepo) Resolve(
	_ context.Context, id string, res model.Resolution, at time.Time,
) (*model.Conflict, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblConflicts, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find conflict: %w", err)
	}
	if raw == nil {
		return nil, errs.ErrNotFound
	}
	upd := cloneConflict(raw.(*model.Conflict))
	upd.Resolution = res
	upd.ResolvedAt = &at
	if err := txn.Insert(tblConflicts, upd); err != nil {
		return nil, fmt.Errorf("update conflict: %w", err)
	}
	txn.Commit()
	return cloneConflict(upd), nil
}

// ListUnresolved returns the user's unresolved conflicts, oldest first.
func (d *ConflictRepo) ListUnresolved(_ context.Context, userID string) ([]model.Conflict, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblConflicts, "user", userID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	var out []model.Conflict
	for raw := it.Next(); raw != nil; raw = it.Next() {
		c := raw.(*model.Conflict)
		if c.Resolved() {
			continue
		}
		out = append(out, *cloneConflict(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

// CountUnresolved returns the user's unresolved conflict count.
func (d *ConflictRepo) CountUnresolved(ctx context.Context, userID string) (int, error) {
	list, err := d.ListUnresolved(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

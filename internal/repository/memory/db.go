// Package memory implements the repository interfaces with an in-memory
// database, for tests and single-node dev runs.
package memory

import (
	"fmt"

	"github.com/hashicorp/go-memdb"

	"github.com/dosepilot/medsync/internal/model"
)

// DB is an in-memory backend implementing OperationRepository; its
// Conflicts and Devices views implement ConflictRepository and
// DeviceRepository. memdb transactions serialize writers, which keeps
// the monotonic-version invariant without extra locking.
type DB struct {
	db *memdb.MemDB
}

// New returns a new in-memory database.
func New() (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &DB{db: memDB}, nil
}

// Close releases the database. No-op for the in-memory backend.
func (d *DB) Close() error { return nil }

// ConflictRepo is the ConflictRepository view of the in-memory database.
type ConflictRepo struct {
	db *memdb.MemDB
}

// Conflicts returns the ConflictRepository backed by this database.
func (d *DB) Conflicts() *ConflictRepo { return &ConflictRepo{db: d.db} }

// DeviceRepo is the DeviceRepository view of the in-memory database.
type DeviceRepo struct {
	db *memdb.MemDB
}

// Devices returns the DeviceRepository backed by this database.
func (d *DB) Devices() *DeviceRepo { return &DeviceRepo{db: d.db} }

// versionRecord is one entity version table row.
type versionRecord struct {
	Key     string
	Version int64
}

// Stored records are never handed out directly: memdb shares pointers
// between transactions, so every read returns a copy.

func cloneOperation(op *model.Operation) *model.Operation {
	c := *op
	c.Payload = clonePayload(op.Payload)
	return &c
}

func cloneConflict(cf *model.Conflict) *model.Conflict {
	c := *cf
	c.Local.Payload = clonePayload(cf.Local.Payload)
	c.Server.Payload = clonePayload(cf.Server.Payload)
	if cf.ResolvedAt != nil {
		at := *cf.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

func cloneDevice(dv *model.Device) *model.Device {
	c := *dv
	if dv.LastSyncAt != nil {
		at := *dv.LastSyncAt
		c.LastSyncAt = &at
	}
	return &c
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

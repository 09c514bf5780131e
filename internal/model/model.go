// Package model defines domain entities used by services and repositories.
package model

import "time"

// EntityType names a syncable entity collection.
type EntityType string

// Entity types a device may sync.
const (
	EntityMedication EntityType = "medication"
	EntitySchedule   EntityType = "schedule"
	EntityAdherence  EntityType = "adherence"
	EntitySettings   EntityType = "settings"
)

// Valid reports whether the entity type belongs to the fixed set.
func (t EntityType) Valid() bool {
	switch t {
	case EntityMedication, EntitySchedule, EntityAdherence, EntitySettings:
		return true
	}
	return false
}

// OpKind is the kind of mutation an operation carries.
type OpKind string

// Operation kinds.
const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Valid reports whether the kind belongs to the fixed set.
func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Platform identifies the device platform.
type Platform string

// Supported platforms.
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// Valid reports whether the platform belongs to the fixed set.
func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// Resolution is the outcome chosen for a conflict.
type Resolution string

// Conflict resolutions.
const (
	ResolveLocal  Resolution = "local"
	ResolveServer Resolution = "server"
	ResolveMerged Resolution = "merged"
)

// Valid reports whether the resolution belongs to the fixed set.
func (r Resolution) Valid() bool {
	switch r {
	case ResolveLocal, ResolveServer, ResolveMerged:
		return true
	}
	return false
}

// EntityKey scopes version numbers to one entity instance.
func EntityKey(t EntityType, entityID string) string {
	return string(t) + ":" + entityID
}

// Operation is one accepted mutation in the append-only log. Version is
// authoritative and strictly increasing per entity key; Synced flips true
// once the operation has propagated to all other devices.
type Operation struct {
	ID         string         `json:"id"`
	UserID     string         `json:"-"`
	DeviceID   string         `json:"device_id"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Kind       OpKind         `json:"kind"`
	Payload    map[string]any `json:"payload"`
	Version    int64          `json:"version"`
	Synced     bool           `json:"synced"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EntityKey returns the operation's version scope.
func (o *Operation) EntityKey() string { return EntityKey(o.EntityType, o.EntityID) }

// LocalOp is a device-side operation submitted for sync. Version is the
// version the device believes it wrote; it feeds conflict detection only,
// the log assigns the authoritative version at push time.
type LocalOp struct {
	DeviceID   string         `json:"device_id"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Kind       OpKind         `json:"kind"`
	Payload    map[string]any `json:"payload"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EntityKey returns the operation's version scope.
func (o *LocalOp) EntityKey() string { return EntityKey(o.EntityType, o.EntityID) }

// Conflict pairs a held-back local operation with the stored operation it
// collided with. Resolution and ResolvedAt stay empty until resolved;
// conflicts are never deleted.
type Conflict struct {
	ID         string     `json:"id"`
	UserID     string     `json:"-"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Local      LocalOp    `json:"local"`
	Server     Operation  `json:"server"`
	Resolution Resolution `json:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}

// Resolved reports whether a resolution has been applied.
func (c *Conflict) Resolved() bool { return c.ResolvedAt != nil }

// Device is a registration record for one device of one user,
// upserted by device ID within the user's device list.
type Device struct {
	DeviceID     string     `json:"device_id"`
	UserID       string     `json:"-"`
	Platform     Platform   `json:"platform"`
	AppVersion   string     `json:"app_version"`
	PushToken    string     `json:"push_token,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// SyncStatus summarizes one device's sync state.
type SyncStatus struct {
	PendingOps          int        `json:"pending_ops"`
	UnresolvedConflicts int        `json:"unresolved_conflicts"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	Online              bool       `json:"online"`
}

// FullSyncResult is the outcome of one full sync cycle: operations applied
// immediately, conflicts detected (their entities held back), and the
// device's status afterwards.
type FullSyncResult struct {
	Applied   []Operation `json:"applied"`
	Conflicts []Conflict  `json:"conflicts"`
	Status    SyncStatus  `json:"status"`
}

package repository

import (
	"context"
	"time"

	"github.com/dosepilot/medsync/internal/model"
)

// DeviceRepository tracks per-user device registrations.
type DeviceRepository interface {
	// Upsert inserts or updates a device record keyed by (user, device)
	// and returns the stored record.
	Upsert(ctx context.Context, d model.Device) (model.Device, error)

	// Remove deletes a device record and reports whether one existed.
	Remove(ctx context.Context, userID, deviceID string) (bool, error)

	// Get returns a device record, or ErrNotFound.
	Get(ctx context.Context, userID, deviceID string) (*model.Device, error)

	// ListByUser returns all device records for the user.
	ListByUser(ctx context.Context, userID string) ([]model.Device, error)

	// TouchLastSync updates the device's last-sync timestamp.
	TouchLastSync(ctx context.Context, userID, deviceID string, at time.Time) error
}

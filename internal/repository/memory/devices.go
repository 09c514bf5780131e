package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

// Upsert inserts or updates a device record keyed by (user, device).
func (d *DeviceRepo) Upsert(_ context.Context, dv model.Device) (model.Device, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	stored := cloneDevice(&dv)
	if stored.RegisteredAt.IsZero() {
		stored.RegisteredAt = time.Now().UTC()
	}
	raw, err := txn.First(tblDevices, "id", dv.UserID, dv.DeviceID)
	if err != nil {
		return model.Device{}, fmt.Errorf("find device: %w", err)
	}
	if raw != nil {
		prev := raw.(*model.Device)
		stored.RegisteredAt = prev.RegisteredAt
		stored.LastSyncAt = prev.LastSyncAt
	}
	if err := txn.Insert(tblDevices, stored); err != nil {
		return model.Device{}, fmt.Errorf("upsert device: %w", err)
	}
	txn.Commit()
	return *cloneDevice(stored), nil
}

// Remove deletes a device record and reports whether one existed.
func (d *DeviceRepo) Remove(_ context.Context, userID, deviceID string) (bool, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDevices, "id", userID, deviceID)
	if err != nil {
		return false, fmt.Errorf("find device: %w", err)
	}
	if raw == nil {
		return false, nil
	}
	if err := txn.Delete(tblDevices, raw); err != nil {
		return false, fmt.Errorf("delete device: %w", err)
	}
	txn.Commit()
	return true, nil
}

// Get returns a device record.
func (d *DeviceRepo) Get(_ context.Context, userID, deviceID string) (*model.Device, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblDevices, "id", userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	if raw == nil {
		return nil, errs.ErrNotFound
	}
	return cloneDevice(raw.(*model.Device)), nil
}

// ListByUser returns all devices for the user, oldest registration first.
func (d *DeviceRepo) ListByUser(_ context.Context, userID string) ([]model.Device, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblDevices, "user", userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var out []model.Device
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *cloneDevice(raw.(*model.Device)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

// TouchLastSync updates the device's last-sync timestamp.
func (d *DeviceRepo) TouchLastSync(_ context.Context, userID, deviceID string, at time.Time) error {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDevices, "id", userID, deviceID)
	if err != nil {
		return fmt.Errorf("find device: %w", err)
	}
	if raw == nil {
		return errs.ErrNotFound
	}
	upd := cloneDevice(raw.(*model.Device))
	upd.LastSyncAt = &at
	if err := txn.Insert(tblDevices, upd); err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	txn.Commit()
	return nil
}

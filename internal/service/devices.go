// Package service contains application services for the sync engine.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
	"github.com/dosepilot/medsync/internal/repository"
)

// DeviceService defines device registry operations.
type DeviceService interface {
	// Register upserts a device record keyed by device ID within the user's
	// device list and returns the stored record.
	Register(ctx context.Context, d model.Device) (model.Device, error)
	// Unregister removes the device and reports whether one was removed.
	Unregister(ctx context.Context, userID, deviceID string) (bool, error)
	// List returns all device records for the user.
	List(ctx context.Context, userID string) ([]model.Device, error)
	// Get returns one device record, or ErrNotFound.
	Get(ctx context.Context, userID, deviceID string) (*model.Device, error)
	// TouchLastSync updates the device's last-sync timestamp.
	TouchLastSync(ctx context.Context, userID, deviceID string, at time.Time) error
}

type DeviceServiceImpl struct {
	repo repository.DeviceRepository
}

// NewDeviceService constructs DeviceService.
func NewDeviceService(repo repository.DeviceRepository) *DeviceServiceImpl {
	return &DeviceServiceImpl{repo: repo}
}

// Register validates the record and upserts it.
func (s *DeviceServiceImpl) Register(ctx context.Context, d model.Device) (model.Device, error) {
	if d.UserID == "" || d.DeviceID == "" {
		return model.Device{}, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	if !d.Platform.Valid() {
		return model.Device{}, fmt.Errorf("%w: unknown platform %q", errs.ErrValidation, d.Platform)
	}
	return s.repo.Upsert(ctx, d)
}

// Unregister removes the device; absence is a normal outcome.
func (s *DeviceServiceImpl) Unregister(ctx context.Context, userID, deviceID string) (bool, error) {
	if userID == "" || deviceID == "" {
		return false, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	return s.repo.Remove(ctx, userID, deviceID)
}

// List returns the user's devices.
func (s *DeviceServiceImpl) List(ctx context.Context, userID string) ([]model.Device, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	return s.repo.ListByUser(ctx, userID)
}

// Get fetches one device record.
func (s *DeviceServiceImpl) Get(ctx context.Context, userID, deviceID string) (*model.Device, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	return s.repo.Get(ctx, userID, deviceID)
}

// TouchLastSync records the device's last successful sync time.
func (s *DeviceServiceImpl) TouchLastSync(ctx context.Context, userID, deviceID string, at time.Time) error {
	if userID == "" || deviceID == "" {
		return fmt.Errorf("%w: empty user/device id", errs.ErrValidation)
	}
	return s.repo.TouchLastSync(ctx, userID, deviceID, at)
}

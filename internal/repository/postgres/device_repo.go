package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device registry repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

const deviceColumns = `user_id, device_id, platform, app_version, push_token, last_sync_at, registered_at`

// Upsert inserts or updates a device record keyed by (user, device).
// Registration never fails on a duplicate; it refreshes the record.
func (r *DeviceRepo) Upsert(ctx context.Context, d model.Device) (model.Device, error) {
	const q = `
INSERT INTO devices (user_id, device_id, platform, app_version, push_token, registered_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id, device_id) DO UPDATE SET
	platform=EXCLUDED.platform,
	app_version=EXCLUDED.app_version,
	push_token=EXCLUDED.push_token
RETURNING ` + deviceColumns
	registeredAt := d.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}
	stored, err := scanDevice(r.db.Pool.QueryRow(ctx, q,
		d.UserID, d.DeviceID, string(d.Platform), d.AppVersion, nullableString(d.PushToken), registeredAt,
	))
	if err != nil {
		return model.Device{}, err
	}
	return *stored, nil
}

// Remove deletes a device record and reports whether one existed.
func (r *DeviceRepo) Remove(ctx context.Context, userID, deviceID string) (bool, error) {
	const q = `DELETE FROM devices WHERE user_id=$1 AND device_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, deviceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns a device record.
func (r *DeviceRepo) Get(ctx context.Context, userID, deviceID string) (*model.Device, error) {
	const q = `
SELECT ` + deviceColumns + `
FROM devices WHERE user_id=$1 AND device_id=$2`
	d, err := scanDevice(r.db.Pool.QueryRow(ctx, q, userID, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListByUser returns all devices for the user, oldest registration first.
func (r *DeviceRepo) ListByUser(ctx context.Context, userID string) ([]model.Device, error) {
	const q = `
SELECT ` + deviceColumns + `
FROM devices WHERE user_id=$1
ORDER BY registered_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// TouchLastSync updates the device's last-sync timestamp.
func (r *DeviceRepo) TouchLastSync(ctx context.Context, userID, deviceID string, at time.Time) error {
	const q = `UPDATE devices SET last_sync_at=$3 WHERE user_id=$1 AND device_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, userID, deviceID, at)
	return err
}

func scanDevice(row pgx.Row) (*model.Device, error) {
	var (
		d         model.Device
		pushToken *string
	)
	if err := row.Scan(
		&d.UserID, &d.DeviceID, &d.Platform, &d.AppVersion,
		&pushToken, &d.LastSyncAt, &d.RegisteredAt,
	); err != nil {
		return nil, err
	}
	if pushToken != nil {
		d.PushToken = *pushToken
	}
	return &d, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

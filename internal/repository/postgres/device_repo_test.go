package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

func deviceRows(registeredAt time.Time, pushToken *string, lastSync *time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"user_id", "device_id", "platform", "app_version",
		"push_token", "last_sync_at", "registered_at",
	}).AddRow(
		"u1", "d1", model.PlatformIOS, "1.0.0",
		pushToken, lastSync, registeredAt,
	)
}

func TestDeviceRepo_Upsert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeviceRepo(db)

	ctx := context.Background()
	registeredAt := time.Now().UTC()
	token := "tok-1"

	mock.ExpectQuery(`INSERT INTO devices`).
		WithArgs("u1", "d1", "ios", "1.0.0", &token, registeredAt).
		WillReturnRows(deviceRows(registeredAt, &token, nil))

	out, err := r.Upsert(ctx, model.Device{
		UserID: "u1", DeviceID: "d1", Platform: model.PlatformIOS,
		AppVersion: "1.0.0", PushToken: "tok-1", RegisteredAt: registeredAt,
	})
	require.NoError(t, err)
	require.Equal(t, "tok-1", out.PushToken)
	require.Nil(t, out.LastSyncAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_Upsert_EmptyPushToken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeviceRepo(db)

	ctx := context.Background()
	registeredAt := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO devices`).
		WithArgs("u1", "d1", "ios", "1.0.0", (*string)(nil), registeredAt).
		WillReturnRows(deviceRows(registeredAt, nil, nil))

	out, err := r.Upsert(ctx, model.Device{
		UserID: "u1", DeviceID: "d1", Platform: model.PlatformIOS,
		AppVersion: "1.0.0", RegisteredAt: registeredAt,
	})
	require.NoError(t, err)
	require.Empty(t, out.PushToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_Remove(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeviceRepo(db)

	ctx := context.Background()
	mock.ExpectExec(`DELETE FROM devices WHERE user_id=\$1 AND device_id=\$2`).
		WithArgs("u1", "d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM devices WHERE user_id=\$1 AND device_id=\$2`).
		WithArgs("u1", "d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	found, err := r.Remove(ctx, "u1", "d1")
	require.NoError(t, err)
	require.True(t, found)

	found, err = r.Remove(ctx, "u1", "d1")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeviceRepo(db)

	ctx := context.Background()
	mock.ExpectQuery(`FROM devices WHERE user_id=\$1 AND device_id=\$2`).
		WithArgs("u1", "ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(ctx, "u1", "ghost")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_TouchLastSync(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeviceRepo(db)

	ctx := context.Background()
	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE devices SET last_sync_at=\$3`).
		WithArgs("u1", "d1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.TouchLastSync(ctx, "u1", "d1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/dosepilot/medsync/internal/errs"
	"github.com/dosepilot/medsync/internal/model"
)

func testConflict(detectedAt time.Time) model.Conflict {
	return model.Conflict{
		ID:         "c1",
		UserID:     "u1",
		EntityType: model.EntityMedication,
		EntityID:   "m1",
		Local: model.LocalOp{
			DeviceID: "d2", EntityType: model.EntityMedication, EntityID: "m1",
			Kind: model.OpUpdate, Payload: map[string]any{"dose": "5mg"}, Version: 1,
		},
		Server: model.Operation{
			ID: "op-1", DeviceID: "d1", EntityType: model.EntityMedication, EntityID: "m1",
			Kind: model.OpUpdate, Payload: map[string]any{"dose": "10mg"}, Version: 2,
		},
		DetectedAt: detectedAt,
	}
}

func TestConflictRepo_Add(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewConflictRepo(db)

	ctx := context.Background()
	c := testConflict(time.Now().UTC())
	localJSON, err := json.Marshal(c.Local)
	require.NoError(t, err)
	serverJSON, err := json.Marshal(c.Server)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO sync_conflicts`).
		WithArgs("c1", "u1", "medication", "m1", localJSON, serverJSON, c.DetectedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	out, err := r.Add(ctx, c)
	require.NoError(t, err)
	require.Equal(t, c.ID, out.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewConflictRepo(db)

	ctx := context.Background()
	mock.ExpectQuery(`FROM sync_conflicts WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(ctx, "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepo_Resolve(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewConflictRepo(db)

	ctx := context.Background()
	detectedAt := time.Now().UTC().Add(-time.Minute)
	resolvedAt := time.Now().UTC()
	c := testConflict(detectedAt)
	localJSON, err := json.Marshal(c.Local)
	require.NoError(t, err)
	serverJSON, err := json.Marshal(c.Server)
	require.NoError(t, err)

	resolution := "server"
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "entity_type", "entity_id",
		"local_op", "server_op", "resolution", "resolved_at", "detected_at",
	}).AddRow(
		"c1", "u1", model.EntityMedication, "m1",
		localJSON, serverJSON, &resolution, &resolvedAt, detectedAt,
	)
	mock.ExpectQuery(`UPDATE sync_conflicts SET resolution=\$2, resolved_at=\$3`).
		WithArgs("c1", "server", resolvedAt).
		WillReturnRows(rows)

	out, err := r.Resolve(ctx, "c1", model.ResolveServer, resolvedAt)
	require.NoError(t, err)
	require.True(t, out.Resolved())
	require.Equal(t, model.ResolveServer, out.Resolution)
	require.Equal(t, "d2", out.Local.DeviceID)
	require.Equal(t, int64(2), out.Server.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepo_ListUnresolved(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewConflictRepo(db)

	ctx := context.Background()
	detectedAt := time.Now().UTC()
	c := testConflict(detectedAt)
	localJSON, err := json.Marshal(c.Local)
	require.NoError(t, err)
	serverJSON, err := json.Marshal(c.Server)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "entity_type", "entity_id",
		"local_op", "server_op", "resolution", "resolved_at", "detected_at",
	}).AddRow(
		"c1", "u1", model.EntityMedication, "m1",
		localJSON, serverJSON, (*string)(nil), (*time.Time)(nil), detectedAt,
	)
	mock.ExpectQuery(`WHERE user_id=\$1 AND resolved_at IS NULL`).
		WithArgs("u1").
		WillReturnRows(rows)

	out, err := r.ListUnresolved(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.False(t, out[0].Resolved())
	require.Equal(t, map[string]any{"dose": "5mg"}, out[0].Local.Payload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepo_CountUnresolved(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewConflictRepo(db)

	ctx := context.Background()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sync_conflicts`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := r.CountUnresolved(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

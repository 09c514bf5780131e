package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dosepilot/medsync/internal/model"
	"github.com/dosepilot/medsync/internal/repository"
)

type fakeOperationRepo struct {
	pushInUser string
	pushInOp   model.LocalOp
	pushOut    model.Operation
	pushErr    error

	listInUser   string
	listInDevice string
	listInSince  *time.Time
	listOut      []model.Operation
	listErr      error

	markInIDs []string
	markOut   int
	markErr   error

	queueOut []model.Operation
	queueErr error

	clearOut int
	clearErr error

	verOut  int64
	findOut *model.Operation
	findErr error
}

var _ repository.OperationRepository = (*fakeOperationRepo)(nil)

func (f *fakeOperationRepo) Push(_ context.Context, userID string, op model.LocalOp) (model.Operation, error) {
	f.pushInUser, f.pushInOp = userID, op
	return f.pushOut, f.pushErr
}

func (f *fakeOperationRepo) ListSince(_ context.Context, userID, deviceID string, since *time.Time) ([]model.Operation, error) {
	f.listInUser, f.listInDevice, f.listInSince = userID, deviceID, since
	return append([]model.Operation(nil), f.listOut...), f.listErr
}

func (f *fakeOperationRepo) MarkSynced(_ context.Context, ids []string) (int, error) {
	f.markInIDs = append([]string(nil), ids...)
	return f.markOut, f.markErr
}

func (f *fakeOperationRepo) OfflineQueue(_ context.Context, _, _ string) ([]model.Operation, error) {
	return append([]model.Operation(nil), f.queueOut...), f.queueErr
}

func (f *fakeOperationRepo) ClearOfflineQueue(_ context.Context, _, _ string) (int, error) {
	return f.clearOut, f.clearErr
}

func (f *fakeOperationRepo) FindByKeyVersion(_ context.Context, _ string, _ model.EntityType, _ string, _ int64) (*model.Operation, error) {
	return f.findOut, f.findErr
}

func (f *fakeOperationRepo) GetVersion(_ context.Context, _ model.EntityType, _ string) (int64, error) {
	return f.verOut, nil
}

func (f *fakeOperationRepo) SetVersion(_ context.Context, _ model.EntityType, _ string, _ int64) error {
	return nil
}

func (f *fakeOperationRepo) StoreResolved(_ context.Context, op model.Operation) (model.Operation, error) {
	return op, nil
}

func validLocalOp() model.LocalOp {
	return model.LocalOp{
		DeviceID:   "d1",
		EntityType: model.EntityMedication,
		EntityID:   "m1",
		Kind:       model.OpUpdate,
		Payload:    map[string]any{"dose": "10mg"},
	}
}

func TestNewSyncService_DefaultMaxBatch(t *testing.T) {
	s := NewSyncService(&fakeOperationRepo{}, 0)
	if s.maxBatch != 1000 {
		t.Fatalf("default maxBatch want 1000, got %d", s.maxBatch)
	}
}

func TestSyncService_Push_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeOperationRepo{}
	s := NewSyncService(repo, 10)

	if _, err := s.Push(ctx, "", validLocalOp()); err == nil {
		t.Fatalf("want validation error on empty userID")
	}

	op := validLocalOp()
	op.DeviceID = ""
	if _, err := s.Push(ctx, "u1", op); err == nil {
		t.Fatalf("want validation error on empty device id")
	}

	op = validLocalOp()
	op.EntityID = ""
	if _, err := s.Push(ctx, "u1", op); err == nil {
		t.Fatalf("want validation error on empty entity id")
	}

	op = validLocalOp()
	op.EntityType = "vitals"
	if _, err := s.Push(ctx, "u1", op); err == nil {
		t.Fatalf("want validation error on unknown entity type")
	}

	op = validLocalOp()
	op.Kind = "patch"
	if _, err := s.Push(ctx, "u1", op); err == nil {
		t.Fatalf("want validation error on unknown kind")
	}

	op = validLocalOp()
	op.Version = -1
	if _, err := s.Push(ctx, "u1", op); err == nil {
		t.Fatalf("want validation error on negative version")
	}
	if repo.pushInUser != "" {
		t.Fatalf("repo should not be called on invalid input")
	}
}

func TestSyncService_Push_DelegatesToRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeOperationRepo{pushOut: model.Operation{ID: "op-1", Version: 3}}
	s := NewSyncService(repo, 10)

	out, err := s.Push(ctx, "u1", validLocalOp())
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if out.ID != "op-1" || out.Version != 3 {
		t.Fatalf("unexpected repo result: %+v", out)
	}
	if repo.pushInUser != "u1" || repo.pushInOp.EntityID != "m1" {
		t.Fatalf("repo args not forwarded correctly")
	}
}

func TestSyncService_Pull_ValidationAndDelegate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeOperationRepo{listOut: []model.Operation{{ID: "a"}, {ID: "b"}}}
	s := NewSyncService(repo, 10)

	if _, err := s.Pull(ctx, "", "d1", nil); err == nil {
		t.Fatalf("want validation error on empty userID")
	}
	if _, err := s.Pull(ctx, "u1", "", nil); err == nil {
		t.Fatalf("want validation error on empty deviceID")
	}

	since := time.Now().Add(-time.Hour)
	out, err := s.Pull(ctx, "u1", "d1", &since)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(out) != 2 || repo.listInUser != "u1" || repo.listInDevice != "d1" || repo.listInSince == nil {
		t.Fatalf("delegate mismatch: out=%+v repo=%+v", out, repo)
	}
}

func TestSyncService_MarkSynced_Batching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeOperationRepo{markOut: 2}
	s := NewSyncService(repo, 2)

	n, err := s.MarkSynced(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("empty ids: n=%d err=%v", n, err)
	}
	if repo.markInIDs != nil {
		t.Fatalf("repo should not be called on empty input")
	}

	if _, err := s.MarkSynced(ctx, []string{"a", "b", "c"}); err == nil {
		t.Fatalf("want error on batch too large")
	}

	n, err = s.MarkSynced(ctx, []string{"a", "b"})
	if err != nil || n != 2 {
		t.Fatalf("MarkSynced: n=%d err=%v", n, err)
	}
}

func TestSyncService_Queue_ValidationAndDelegate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeOperationRepo{queueOut: []model.Operation{{ID: "a"}}, clearOut: 4}
	s := NewSyncService(repo, 10)

	if _, err := s.OfflineQueue(ctx, "", "d1"); err == nil {
		t.Fatalf("want validation error on empty userID")
	}
	if _, err := s.ClearOfflineQueue(ctx, "u1", ""); err == nil {
		t.Fatalf("want validation error on empty deviceID")
	}

	q, err := s.OfflineQueue(ctx, "u1", "d1")
	if err != nil || len(q) != 1 {
		t.Fatalf("OfflineQueue: q=%+v err=%v", q, err)
	}
	n, err := s.ClearOfflineQueue(ctx, "u1", "d1")
	if err != nil || n != 4 {
		t.Fatalf("ClearOfflineQueue: n=%d err=%v", n, err)
	}
}

func TestSyncService_RepoErrorsPropagate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &fakeOperationRepo{
		pushErr:  errors.New("boom-push"),
		listErr:  errors.New("boom-list"),
		markErr:  errors.New("boom-mark"),
		queueErr: errors.New("boom-queue"),
		clearErr: errors.New("boom-clear"),
	}
	s := NewSyncService(repo, 10)

	if _, err := s.Push(ctx, "u1", validLocalOp()); err == nil {
		t.Fatalf("want repo error propagate (push)")
	}
	if _, err := s.Pull(ctx, "u1", "d1", nil); err == nil {
		t.Fatalf("want repo error propagate (pull)")
	}
	if _, err := s.MarkSynced(ctx, []string{"a"}); err == nil {
		t.Fatalf("want repo error propagate (mark)")
	}
	if _, err := s.OfflineQueue(ctx, "u1", "d1"); err == nil {
		t.Fatalf("want repo error propagate (queue)")
	}
	if _, err := s.ClearOfflineQueue(ctx, "u1", "d1"); err == nil {
		t.Fatalf("want repo error propagate (clear)")
	}
}

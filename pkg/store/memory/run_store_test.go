package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xkatana/launchkit/pkg/store"
)

func testRun(id string, createdAt time.Time) *store.Run {
	return &store.Run{
		ID:        id,
		Status:    store.RunPending,
		Stage:     store.StageInitializing,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRunStore_InsertAndGet(t *testing.T) {
	s := NewRunStore()
	ctx := context.Background()

	r := testRun("run-1", time.Now())
	r.Keys = []store.KeyRecord{{Address: "addr", PrivateKey: "key", Role: "creator"}}
	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != "run-1" || got.Status != store.RunPending {
		t.Errorf("got %+v", got)
	}
	if len(got.Keys) != 1 || got.Keys[0].Address != "addr" {
		t.Errorf("keys = %+v", got.Keys)
	}
}

func TestRunStore_InsertDuplicate(t *testing.T) {
	s := NewRunStore()
	ctx := context.Background()

	if err := s.Insert(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := s.Insert(ctx, testRun("run-1", time.Now()))
	if !errors.Is(err, store.ErrDuplicateRun) {
		t.Errorf("err = %v, want ErrDuplicateRun", err)
	}
}

func TestRunStore_InsertInvalid(t *testing.T) {
	s := NewRunStore()
	ctx := context.Background()

	if err := s.Insert(ctx, nil); !errors.Is(err, store.ErrInvalidRun) {
		t.Errorf("Insert(nil) = %v, want ErrInvalidRun", err)
	}
	if err := s.Insert(ctx, &store.Run{}); !errors.Is(err, store.ErrInvalidRun) {
		t.Errorf("Insert(empty ID) = %v, want ErrInvalidRun", err)
	}
}

func TestRunStore_Update(t *testing.T) {
	s := NewRunStore()
	ctx := context.Background()

	r := testRun("run-1", time.Now())
	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	r.Status = store.RunSuccess
	r.Stage = store.StageConfirming
	r.Mint = "So11111111111111111111111111111111111111112"
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.GetByID(ctx, "run-1")
	if got.Status != store.RunSuccess || got.Mint == "" {
		t.Errorf("got %+v", got)
	}
	if got.Progress() != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress())
	}
}

func TestRunStore_UpdateNotFound(t *testing.T) {
	s := NewRunStore()
	err := s.Update(context.Background(), testRun("missing", time.Now()))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunStore_GetNotFound(t *testing.T) {
	s := NewRunStore()
	_, err := s.GetByID(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunStore_ListOrder(t *testing.T) {
	s := NewRunStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		if err := s.Insert(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	runs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("List len = %d, want 3", len(runs))
	}
	if runs[0].ID != "new" || runs[2].ID != "old" {
		t.Errorf("order = %s, %s, %s; want new, mid, old", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func TestRunStore_CloneIsolation(t *testing.T) {
	s := NewRunStore()
	ctx := context.Background()

	r := testRun("run-1", time.Now())
	r.Keys = []store.KeyRecord{{Address: "addr"}}
	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Mutating the caller's copy must not reach the store
	r.Status = store.RunFailed
	r.Keys[0].Address = "tampered"

	got, _ := s.GetByID(ctx, "run-1")
	if got.Status != store.RunPending {
		t.Error("stored status changed through caller's pointer")
	}
	if got.Keys[0].Address != "addr" {
		t.Error("stored keys changed through caller's slice")
	}

	// Mutating a read result must not reach the store either
	got.Keys[0].Address = "tampered"
	again, _ := s.GetByID(ctx, "run-1")
	if again.Keys[0].Address != "addr" {
		t.Error("stored keys changed through a read result")
	}
}

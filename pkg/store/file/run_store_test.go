package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
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

func TestRunStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	ctx := context.Background()

	s, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}

	r := testRun("run-1", time.Now().UTC())
	r.Keys = []store.KeyRecord{{Address: "addr", PrivateKey: "secret", Role: "bundle"}}
	if err := s.Insert(ctx, r); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	r.Status = store.RunSuccess
	r.Mint = "mint-address"
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID after reopen: %v", err)
	}
	if got.Status != store.RunSuccess || got.Mint != "mint-address" {
		t.Errorf("got %+v", got)
	}
	if len(got.Keys) != 1 || got.Keys[0].PrivateKey != "secret" {
		t.Errorf("keys did not survive reopen: %+v", got.Keys)
	}
}

func TestRunStore_FileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")

	s, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	if err := s.Insert(context.Background(), testRun("run-1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestRunStore_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "runs.json")

	s, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	if err := s.Insert(context.Background(), testRun("run-1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("store file missing: %v", err)
	}
}

func TestRunStore_Duplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	ctx := context.Background()

	s, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	if err := s.Insert(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, testRun("run-1", time.Now())); !errors.Is(err, store.ErrDuplicateRun) {
		t.Errorf("err = %v, want ErrDuplicateRun", err)
	}
}

func TestRunStore_NotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	ctx := context.Background()

	s, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID err = %v, want ErrNotFound", err)
	}
	if err := s.Update(ctx, testRun("missing", time.Now())); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update err = %v, want ErrNotFound", err)
	}
}

func TestRunStore_ListOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	ctx := context.Background()

	s, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.Insert(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	runs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "new" || runs[2].ID != "old" {
		t.Errorf("order = %+v", runs)
	}
}

func TestRunStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewRunStore(path); err == nil {
		t.Fatal("corrupt store file should fail to open")
	}
}

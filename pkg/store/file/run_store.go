// Package file persists launch runs as a JSON document on disk. This is the
// default backend: run state, including generated wallet keys, must survive
// a process restart even without a database.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/0xkatana/launchkit/pkg/store"
)

// RunStore is a file-backed implementation of store.RunStore. Every write
// rewrites the whole document through a temp-file rename, so a crash mid
// write never leaves a torn file.
type RunStore struct {
	path string

	mu   sync.Mutex
	data map[string]*store.Run
}

var _ store.RunStore = (*RunStore)(nil)

// NewRunStore opens (or creates) the store at path.
func NewRunStore(path string) (*RunStore, error) {
	s := &RunStore{
		path: path,
		data: make(map[string]*store.Run),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RunStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read run store: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var runs []*store.Run
	if err := json.Unmarshal(raw, &runs); err != nil {
		return fmt.Errorf("decode run store %s: %w", s.path, err)
	}
	for _, r := range runs {
		s.data[r.ID] = r
	}
	return nil
}

// flush writes the full document atomically. Caller holds s.mu.
func (s *RunStore) flush() error {
	runs := make([]*store.Run, 0, len(s.data))
	for _, r := range s.data {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	raw, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create run store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".runs-*.json")
	if err != nil {
		return fmt.Errorf("create temp run store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write run store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close run store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace run store: %w", err)
	}
	// Key material lives in this file.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("chmod run store: %w", err)
	}
	return nil
}

// Insert adds a new run. Returns ErrDuplicateRun if the ID exists.
func (s *RunStore) Insert(_ context.Context, r *store.Run) error {
	if r == nil || r.ID == "" {
		return store.ErrInvalidRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return store.ErrDuplicateRun
	}
	cp := cloneRun(r)
	s.data[r.ID] = cp
	if err := s.flush(); err != nil {
		delete(s.data, r.ID)
		return err
	}
	return nil
}

// Update replaces the stored run. Returns ErrNotFound if it does not exist.
func (s *RunStore) Update(_ context.Context, r *store.Run) error {
	if r == nil || r.ID == "" {
		return store.ErrInvalidRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.data[r.ID]
	if !exists {
		return store.ErrNotFound
	}
	s.data[r.ID] = cloneRun(r)
	if err := s.flush(); err != nil {
		s.data[r.ID] = prev
		return err
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if it does not exist.
func (s *RunStore) GetByID(_ context.Context, id string) (*store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneRun(r), nil
}

// List retrieves all runs ordered by creation time descending.
func (s *RunStore) List(_ context.Context) ([]*store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]*store.Run, 0, len(s.data))
	for _, r := range s.data {
		runs = append(runs, cloneRun(r))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func cloneRun(r *store.Run) *store.Run {
	cp := *r
	if len(r.Keys) > 0 {
		cp.Keys = make([]store.KeyRecord, len(r.Keys))
		copy(cp.Keys, r.Keys)
	}
	return &cp
}

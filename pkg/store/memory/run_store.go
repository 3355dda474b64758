// Package memory provides an in-memory RunStore for tests and ephemeral use.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/0xkatana/launchkit/pkg/store"
)

// RunStore is an in-memory implementation of store.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*store.Run
}

// NewRunStore creates an empty in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{data: make(map[string]*store.Run)}
}

var _ store.RunStore = (*RunStore)(nil)

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
	return nil
}

// Update replaces the stored run. Returns ErrNotFound if it does not exist.
func (s *RunStore) Update(_ context.Context, r *store.Run) error {
	if r == nil || r.ID == "" {
		return store.ErrInvalidRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; !exists {
		return store.ErrNotFound
	}
	s.data[r.ID] = cloneRun(r)
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if it does not exist.
func (s *RunStore) GetByID(_ context.Context, id string) (*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneRun(r), nil
}

// List retrieves all runs ordered by creation time descending.
func (s *RunStore) List(_ context.Context) ([]*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*store.Run, 0, len(s.data))
	for _, r := range s.data {
		runs = append(runs, cloneRun(r))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// cloneRun copies a run so callers cannot mutate stored state.
func cloneRun(r *store.Run) *store.Run {
	cp := *r
	if len(r.Keys) > 0 {
		cp.Keys = make([]store.KeyRecord, len(r.Keys))
		copy(cp.Keys, r.Keys)
	}
	return &cp
}

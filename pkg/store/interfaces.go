package store

import "context"

// RunStore persists launch runs.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateRun if the ID exists.
	Insert(ctx context.Context, r *Run) error

	// Update replaces the stored run. Returns ErrNotFound if it does not
	// exist.
	Update(ctx context.Context, r *Run) error

	// GetByID retrieves a run. Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Run, error)

	// List retrieves all runs ordered by creation time descending.
	List(ctx context.Context) ([]*Run, error)
}

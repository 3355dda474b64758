package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/0xkatana/launchkit/pkg/store"
)

// Schema is the DDL for the launch_runs table. Applied by tests and by
// operators; the store itself never migrates.
const Schema = `
CREATE TABLE IF NOT EXISTS launch_runs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	stage          TEXT NOT NULL,
	mint           TEXT NOT NULL DEFAULT '',
	bundle_id      TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	keys           JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
`

// RunStore implements store.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a PostgreSQL run store.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

var _ store.RunStore = (*RunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateRun if the ID exists.
func (s *RunStore) Insert(ctx context.Context, r *store.Run) error {
	if r == nil || r.ID == "" {
		return store.ErrInvalidRun
	}

	keys, err := json.Marshal(r.Keys)
	if err != nil {
		return fmt.Errorf("encode run keys: %w", err)
	}

	query := `
		INSERT INTO launch_runs (
			id, status, stage, mint, bundle_id, failure_reason, keys, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(ctx, query,
		r.ID,
		string(r.Status),
		string(r.Stage),
		r.Mint,
		r.BundleID,
		r.FailureReason,
		keys,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return store.ErrDuplicateRun
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update replaces the stored run. Returns ErrNotFound if it does not exist.
func (s *RunStore) Update(ctx context.Context, r *store.Run) error {
	if r == nil || r.ID == "" {
		return store.ErrInvalidRun
	}

	keys, err := json.Marshal(r.Keys)
	if err != nil {
		return fmt.Errorf("encode run keys: %w", err)
	}

	query := `
		UPDATE launch_runs
		SET status = $2, stage = $3, mint = $4, bundle_id = $5,
		    failure_reason = $6, keys = $7, updated_at = $8
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		r.ID,
		string(r.Status),
		string(r.Stage),
		r.Mint,
		r.BundleID,
		r.FailureReason,
		keys,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if it does not exist.
func (s *RunStore) GetByID(ctx context.Context, id string) (*store.Run, error) {
	query := `
		SELECT id, status, stage, mint, bundle_id, failure_reason, keys, created_at, updated_at
		FROM launch_runs
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// List retrieves all runs ordered by creation time descending.
func (s *RunStore) List(ctx context.Context) ([]*store.Run, error) {
	query := `
		SELECT id, status, stage, mint, bundle_id, failure_reason, keys, created_at, updated_at
		FROM launch_runs
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*store.Run, error) {
	var (
		r       store.Run
		status  string
		stage   string
		keysRaw []byte
	)
	err := row.Scan(
		&r.ID,
		&status,
		&stage,
		&r.Mint,
		&r.BundleID,
		&r.FailureReason,
		&keysRaw,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = store.RunStatus(status)
	r.Stage = store.Stage(stage)
	if len(keysRaw) > 0 {
		if err := json.Unmarshal(keysRaw, &r.Keys); err != nil {
			return nil, fmt.Errorf("decode run keys: %w", err)
		}
	}
	return &r, nil
}

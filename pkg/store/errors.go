package store

import "errors"

var (
	// ErrNotFound is returned when a requested run does not exist.
	ErrNotFound = errors.New("run not found")

	// ErrDuplicateRun is returned when inserting a run whose ID exists.
	ErrDuplicateRun = errors.New("duplicate run id")

	// ErrInvalidRun is returned when input validation fails.
	ErrInvalidRun = errors.New("invalid run")
)

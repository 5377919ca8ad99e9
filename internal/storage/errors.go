package storage

import "errors"

// Storage errors. Trial, event and bar stores are append-only: records are
// written once and never updated.
var (
	// ErrNotFound is returned when a requested trial or run does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a trial index, run id or bar
	// timestamp is already stored.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned for empty keys or malformed records.
	ErrInvalidInput = errors.New("invalid input")
)

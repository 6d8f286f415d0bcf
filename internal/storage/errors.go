package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Snapshots are immutable once written.
	ErrDuplicateKey = errors.New("duplicate key: snapshots are immutable once written")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPayloadUnavailable is returned when a snapshot's metadata row
	// exists but the underlying payload cannot be read (file missing or
	// corrupt). It is deliberately distinct from ErrNotFound.
	ErrPayloadUnavailable = errors.New("payload unavailable")
)

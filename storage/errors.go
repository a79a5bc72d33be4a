package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned when a retrieved key does not exist in the
	// database.
	ErrNotFound = errors.New("key not found")

	// ErrAlreadyExists is returned when an inserted key already exists in
	// the database.
	ErrAlreadyExists = errors.New("key already exists")

	// ErrDataMismatch is returned when the data to insert under an existing
	// key differs from the data already stored. Immutable records (synced
	// checkpoints, contents) must never change.
	ErrDataMismatch = errors.New("data for key is different")
)

package store

import "errors"

// Predefined errors for the store layer.
var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates a conflict, e.g., a token row owned by a different user.
	ErrConflict = errors.New("conflict")
)

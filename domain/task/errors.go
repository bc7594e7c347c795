package task

import "errors"

var (
	// ErrValidation is returned when a request is rejected before reaching the store.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when the referenced task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrStore wraps failures of the durable store.
	ErrStore = errors.New("store failure")
)

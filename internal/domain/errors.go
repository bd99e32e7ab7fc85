package domain

import "errors"

var (
	// ErrValidation marks caller input errors, mapped to HTTP 400.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks missing records, mapped to HTTP 404.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks operations rejected by the current record state, mapped to HTTP 409.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition marks an attempt to terminal-mark a record twice.
	ErrInvalidTransition = errors.New("invalid status transition")
)

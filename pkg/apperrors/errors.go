// Package apperrors defines sentinel errors shared across packages.
package apperrors

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

package cart

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the requested cart item could not be located.
	ErrNotFound = errors.New("cart item not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateName is returned when a student with the same name is already in the cart.
	ErrDuplicateName = errors.New("student already in cart")
	// ErrSnapshotNotFound is returned by a Store when no snapshot exists for a key.
	ErrSnapshotNotFound = errors.New("cart snapshot not found")
)

// ValidationError carries one human-readable message per violated constraint.
type ValidationError struct {
	Messages []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Messages) == 0 {
		return ErrInvalidInput.Error()
	}
	return strings.Join(e.Messages, "; ")
}

// Unwrap allows errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Package utils provides small shared helpers: contextual errors and
// overflow-checked size arithmetic.
package utils

import (
	"errors"
	"fmt"
)

// ErrResourceExhausted reports a size computation that overflowed or a
// buffer request above the configured limits.
var ErrResourceExhausted = errors.New("resource exhausted")

// H5Error represents a structured container error.
type H5Error struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *H5Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// WrapError creates a contextual error.
func WrapError(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &H5Error{
		Context: context,
		Cause:   cause,
	}
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *H5Error) Unwrap() error {
	return e.Cause
}

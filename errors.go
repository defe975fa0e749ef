package h5par

import (
	"errors"
	"fmt"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/utils"
)

// ErrInvariant matches every *InvariantError.
var ErrInvariant = errors.New("invariant violation")

// Runtime failures. Errors returned by this package wrap one of these when
// the container runtime rejected a call.
var (
	ErrNotFound          = h5api.ErrNotFound
	ErrExists            = h5api.ErrExists
	ErrPermission        = h5api.ErrPermission
	ErrTypeMismatch      = h5api.ErrTypeMismatch
	ErrInvalidHandle     = h5api.ErrInvalidHandle
	ErrInvalidArgument   = h5api.ErrInvalidArgument
	ErrUnsupported       = h5api.ErrUnsupported
	ErrNotHDF5           = h5api.ErrNotHDF5
	ErrResourceExhausted = utils.ErrResourceExhausted
)

// InvariantError reports a call whose arguments contradict the shape or
// type of its target: a buffer of the wrong length, a selection of the
// wrong rank, a matrix attribute that is not rank 2. No runtime call of
// the failing operation has been issued when it is returned, except where
// the shape had to be read from the file first.
type InvariantError struct {
	Op     string // operation, e.g. "write hyperslab"
	Object string // dataset, group or attribute name
	Msg    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Object, e.Msg)
}

// Is makes errors.Is(err, ErrInvariant) true.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

func invariantf(op, object, format string, args ...any) error {
	return &InvariantError{Op: op, Object: object, Msg: fmt.Sprintf(format, args...)}
}

package engine

import (
	"fmt"

	"github.com/scigolib/h5par/internal/core"
	"github.com/scigolib/h5par/internal/h5api"
)

// varPointerSize is the memory size of a variable-length element.
const varPointerSize = 8

// datatype is an open datatype ID.
type datatype struct {
	dt *core.Datatype
}

var predefined = map[h5api.ID]*core.Datatype{
	h5api.NativeFloat:      core.Float32(),
	h5api.NativeDouble:     core.Float64(),
	h5api.NativeLongDouble: core.LongDouble(),
	h5api.NativeInt:        core.Int32(),
	h5api.NativeUint:       core.Uint32(),
}

// datatype resolves a predefined or created datatype ID.
func (e *Engine) datatype(id h5api.ID) (*core.Datatype, error) {
	if dt, ok := predefined[id]; ok {
		return dt, nil
	}
	t, err := lookup[*datatype](e, id, "datatype")
	if err != nil {
		return nil, err
	}
	return t.dt, nil
}

// TypeCreateCompound creates an empty compound type of size bytes.
func (e *Engine) TypeCreateCompound(size uint64) (h5api.ID, error) {
	if size == 0 || size > 1<<32-1 {
		return h5api.Invalid, fmt.Errorf("%w: compound size %d", h5api.ErrInvalidArgument, size)
	}
	return e.register(&datatype{dt: core.Compound(uint32(size))}), nil
}

// TypeInsert adds a member to a compound type.
func (e *Engine) TypeInsert(dtype h5api.ID, name string, offset uint64, member h5api.ID) error {
	t, err := lookup[*datatype](e, dtype, "datatype")
	if err != nil {
		return err
	}
	if t.dt.Class != core.DatatypeCompound {
		return fmt.Errorf("%w: datatype %d is not compound", h5api.ErrInvalidArgument, dtype)
	}
	m, err := e.datatype(member)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty member name", h5api.ErrInvalidArgument)
	}
	for _, existing := range t.dt.Members {
		if existing.Name == name {
			return fmt.Errorf("%w: member %q", h5api.ErrExists, name)
		}
	}
	if offset+uint64(m.Size) > uint64(t.dt.Size) {
		return fmt.Errorf("%w: member %q at offset %d overruns compound of %d bytes",
			h5api.ErrInvalidArgument, name, offset, t.dt.Size)
	}

	t.dt.Members = append(t.dt.Members, core.Member{Name: name, Offset: uint32(offset), Type: m.Clone()}) //nolint:gosec // G115: bounded by compound size
	return nil
}

// TypeCreateVarString creates a variable-length UTF-8 string type.
func (e *Engine) TypeCreateVarString() (h5api.ID, error) {
	return e.register(&datatype{dt: core.VarString()}), nil
}

// TypeSize returns the in-memory element size in bytes.
func (e *Engine) TypeSize(dtype h5api.ID) (uint64, error) {
	dt, err := e.datatype(dtype)
	if err != nil {
		return 0, err
	}
	if dt.Class == core.DatatypeVarLen {
		return varPointerSize, nil
	}
	return uint64(dt.Size), nil
}

// TypeEqual reports whether two datatypes have the same layout.
func (e *Engine) TypeEqual(a, b h5api.ID) (bool, error) {
	da, err := e.datatype(a)
	if err != nil {
		return false, err
	}
	db, err := e.datatype(b)
	if err != nil {
		return false, err
	}
	return da.Equal(db), nil
}

// TypeClose closes a created datatype. Predefined types cannot be closed.
func (e *Engine) TypeClose(dtype h5api.ID) error {
	if h5api.IsPredefined(dtype) {
		return fmt.Errorf("%w: %d", h5api.ErrPredefined, dtype)
	}
	_, err := remove[*datatype](e, dtype, "datatype")
	return err
}

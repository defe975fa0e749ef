package h5par

import (
	"encoding/binary"
	"errors"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/handle"
	"github.com/scigolib/h5par/internal/utils"
)

// AttributeValue is a type storable as a scalar attribute. bool is stored
// as a 32-bit integer; string as a variable-length UTF-8 string.
type AttributeValue interface {
	Element | bool | string
}

// varPointerSize is the width of one variable-length element in a
// transfer buffer.
const varPointerSize = 8

// WriteAttribute attaches the scalar attribute name to n. Attributes are
// written once; an existing name fails with ErrExists. On a distributed
// file the call is collective and the value written is rank 0's.
//
// Example:
//
//	err := h5par.WriteAttribute(f, "step", int32(42))
//	err = h5par.WriteAttribute(f, "label", "température")
func WriteAttribute[T AttributeValue](n Node, name string, value T) error {
	const op = "write attribute"
	b := n.base()

	switch v := any(value).(type) {
	case bool:
		var x int32
		if v {
			x = 1
		}
		return b.writeAttribute(op, name, h5api.NativeInt, nil, encodeElements([]int32{x}))
	case string:
		return b.writeString(op, name, v)
	}

	tag, _ := tagOf(any(value))
	dtype, err := descriptor(b.rt, b.logger, tag)
	if err != nil {
		return utils.WrapError(op+" "+name, err)
	}
	err = b.writeAttribute(op, name, dtype.ID(), nil, encodeElements(any([]T{value})))
	return errors.Join(err, dtype.Release())
}

// ReadAttribute reads the scalar attribute name from n.
func ReadAttribute[T AttributeValue](n Node, name string) (T, error) {
	const op = "read attribute"
	var zero T
	b := n.base()

	switch any(zero).(type) {
	case bool:
		buf, _, err := b.readAttribute(op, name, h5api.NativeInt, scalarSize(4))
		if err != nil {
			return zero, err
		}
		v := binary.LittleEndian.Uint32(buf) != 0
		return any(v).(T), nil
	case string:
		s, err := b.readString(op, name)
		if err != nil {
			return zero, err
		}
		return any(s).(T), nil
	}

	tag, _ := tagOf(any(zero))
	dtype, err := descriptor(b.rt, b.logger, tag)
	if err != nil {
		return zero, utils.WrapError(op+" "+name, err)
	}
	buf, _, err := b.readAttribute(op, name, dtype.ID(), scalarSize(tag.Size()))
	if err = errors.Join(err, dtype.Release()); err != nil {
		return zero, err
	}
	out := make([]T, 1)
	decodeElements(buf, any(out))
	return out[0], nil
}

// WriteMatrixAttribute attaches a rank-2 float64 attribute holding m.
func WriteMatrixAttribute(n Node, name string, m mat.Matrix) error {
	const op = "write matrix attribute"
	b := n.base()

	r, c := m.Dims()
	if r == 0 || c == 0 {
		return invariantf(op, name, "empty %dx%d matrix", r, c)
	}
	if _, err := utils.CheckedAllocSize(uint64(r)*uint64(c), 8, utils.MaxAttributeBytes); err != nil {
		return utils.WrapError(op+" "+name, err)
	}
	vals := make([]float64, 0, r*c)
	for i := range r {
		for j := range c {
			vals = append(vals, m.At(i, j))
		}
	}
	return b.writeAttribute(op, name, h5api.NativeDouble, []uint64{uint64(r), uint64(c)}, encodeElements(vals))
}

// ReadMatrixAttribute reads a rank-2 float64 attribute. Any other rank is
// an invariant violation.
func ReadMatrixAttribute(n Node, name string) (*mat.Dense, error) {
	const op = "read matrix attribute"
	b := n.base()

	var count uint64
	buf, dims, err := b.readAttribute(op, name, h5api.NativeDouble, func(dims []uint64) (int, error) {
		if len(dims) != 2 || dims[0] == 0 || dims[1] == 0 {
			return 0, invariantf(op, name, "dataspace %v is not a non-empty rank-2 extent", dims)
		}
		var err error
		if count, err = utils.ElementCount(dims); err != nil {
			return 0, err
		}
		return utils.CheckedAllocSize(count, 8, utils.MaxAttributeBytes)
	})
	if err != nil {
		return nil, err
	}
	vals := make([]float64, count)
	decodeElements(buf, vals)
	return mat.NewDense(int(dims[0]), int(dims[1]), vals), nil
}

// HasAttribute reports whether n carries an attribute called name.
func HasAttribute(n Node, name string) (bool, error) {
	b := n.base()
	ok, err := b.rt.AttributeExists(b.h.ID(), name)
	if err != nil {
		return false, utils.WrapError("attribute exists "+name, err)
	}
	return ok, nil
}

// writeAttribute creates the attribute name with extent dims (nil for a
// scalar), writes buf and closes the attribute, then its dataspace.
func (b *node) writeAttribute(op, name string, dtype h5api.ID, dims []uint64, buf []byte) (err error) {
	defer func() { err = utils.WrapError(op+" "+name, err) }()
	rt := b.rt

	var sid h5api.ID
	if dims == nil {
		sid, err = rt.DataspaceCreateScalar()
	} else {
		sid, err = rt.DataspaceCreateSimple(dims)
	}
	if err != nil {
		return err
	}
	space, err := handle.New(sid, handle.KindDataspace, rt.DataspaceClose, handle.WithLogger(b.logger))
	if err != nil {
		return errors.Join(err, rt.DataspaceClose(sid))
	}
	defer func() { err = errors.Join(err, space.Release()) }()

	aid, err := rt.AttributeCreate(b.h.ID(), name, dtype, sid)
	if err != nil {
		return err
	}
	attr, err := b.child(aid, handle.KindAttribute, rt.AttributeClose)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, attr.Release()) }()

	return rt.AttributeWrite(aid, dtype, buf)
}

// scalarSize accepts only single-element extents.
func scalarSize(size int) func(dims []uint64) (int, error) {
	return func(dims []uint64) (int, error) {
		n, err := utils.ElementCount(dims)
		if err != nil {
			return 0, err
		}
		if n != 1 {
			return 0, invariantf("read attribute", "", "extent %v holds %d elements, want 1", dims, n)
		}
		return size, nil
	}
}

// readAttribute opens the attribute name, sizes the buffer from its
// extent and reads it with memType.
func (b *node) readAttribute(op, name string, memType h5api.ID, size func(dims []uint64) (int, error)) (buf []byte, dims []uint64, err error) {
	rt := b.rt
	aid, err := rt.AttributeOpen(b.h.ID(), name)
	if err != nil {
		return nil, nil, utils.WrapError(op+" "+name, err)
	}
	attr, err := b.child(aid, handle.KindAttribute, rt.AttributeClose)
	if err != nil {
		return nil, nil, utils.WrapError(op+" "+name, err)
	}
	defer func() { err = errors.Join(err, attr.Release()) }()

	sid, err := rt.AttributeSpace(aid)
	if err != nil {
		return nil, nil, utils.WrapError(op+" "+name, err)
	}
	dims, err = rt.DataspaceDims(sid)
	if err = errors.Join(err, rt.DataspaceClose(sid)); err != nil {
		return nil, nil, utils.WrapError(op+" "+name, err)
	}

	n, err := size(dims)
	if err != nil {
		var inv *InvariantError
		if errors.As(err, &inv) && inv.Object == "" {
			inv.Object = name
		}
		return nil, nil, err
	}
	buf = make([]byte, n)
	if err := rt.AttributeRead(aid, memType, buf); err != nil {
		return nil, nil, utils.WrapError(op+" "+name, err)
	}
	return buf, slices.Clone(dims), nil
}

// writeString stores s as a variable-length UTF-8 string.
func (b *node) writeString(op, name, s string) error {
	rt := b.rt
	vid, err := rt.TypeCreateVarString()
	if err != nil {
		return utils.WrapError(op+" "+name, err)
	}
	vs, err := handle.New(vid, handle.KindDatatype, rt.TypeClose, handle.WithLogger(b.logger))
	if err != nil {
		return errors.Join(utils.WrapError(op+" "+name, err), rt.TypeClose(vid))
	}

	p, err := rt.VarAlloc([]byte(s))
	if err != nil {
		return errors.Join(utils.WrapError(op+" "+name, err), vs.Release())
	}
	buf := make([]byte, varPointerSize)
	binary.NativeEndian.PutUint64(buf, uint64(p))

	err = b.writeAttribute(op, name, vid, nil, buf)
	return errors.Join(err, rt.VarReclaim(p), vs.Release())
}

// readString reads a variable-length string attribute. The runtime
// allocation is copied and reclaimed before returning.
func (b *node) readString(op, name string) (string, error) {
	rt := b.rt
	vid, err := rt.TypeCreateVarString()
	if err != nil {
		return "", utils.WrapError(op+" "+name, err)
	}
	vs, err := handle.New(vid, handle.KindDatatype, rt.TypeClose, handle.WithLogger(b.logger))
	if err != nil {
		return "", errors.Join(utils.WrapError(op+" "+name, err), rt.TypeClose(vid))
	}
	defer func() { _ = vs.Release() }()

	buf, _, err := b.readAttribute(op, name, vid, scalarSize(varPointerSize))
	if err != nil {
		return "", err
	}
	p := h5api.VarPointer(binary.NativeEndian.Uint64(buf))
	data, err := rt.VarBytes(p)
	s := string(data)
	if err = errors.Join(err, rt.VarReclaim(p)); err != nil {
		return "", utils.WrapError(op+" "+name, err)
	}
	return s, nil
}

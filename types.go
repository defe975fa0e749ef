package h5par

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/handle"
	"github.com/scigolib/h5par/internal/utils"
)

// TypeTag identifies one of the supported element kinds.
type TypeTag int

const (
	// TagFloat32 is an IEEE 754 single.
	TagFloat32 TypeTag = iota
	// TagFloat64 is an IEEE 754 double.
	TagFloat64
	// TagLongDouble is an x87 80-bit extended float.
	TagLongDouble
	// TagInt32 is a signed 32-bit integer.
	TagInt32
	// TagUint32 is an unsigned 32-bit integer.
	TagUint32
	// TagComplex64 is a pair of singles, real then imaginary.
	TagComplex64
	// TagComplex128 is a pair of doubles.
	TagComplex128
	// TagComplexLongDouble is a pair of extended floats.
	TagComplexLongDouble
)

var tagNames = [...]string{"float32", "float64", "longdouble", "int32", "uint32", "complex64", "complex128", "complexlongdouble"}

func (t TypeTag) String() string {
	if t < 0 || int(t) >= len(tagNames) {
		return fmt.Sprintf("TypeTag(%d)", int(t))
	}
	return tagNames[t]
}

// Size returns the in-memory width of one element in bytes.
func (t TypeTag) Size() int {
	switch t {
	case TagFloat32, TagInt32, TagUint32:
		return 4
	case TagFloat64, TagComplex64:
		return 8
	case TagLongDouble, TagComplex128:
		return 16
	case TagComplexLongDouble:
		return 2 * longDoubleSize
	}
	panic(fmt.Sprintf("h5par: unsupported type tag %d", int(t)))
}

// Element is the closed set of dataset element types.
type Element interface {
	float32 | float64 | LongDouble | int32 | uint32 | complex64 | complex128 | ComplexLongDouble
}

// tagOf returns the tag of a value or slice of one of the Element types.
func tagOf(v any) (TypeTag, bool) {
	switch v.(type) {
	case float32, []float32:
		return TagFloat32, true
	case float64, []float64:
		return TagFloat64, true
	case LongDouble, []LongDouble:
		return TagLongDouble, true
	case int32, []int32:
		return TagInt32, true
	case uint32, []uint32:
		return TagUint32, true
	case complex64, []complex64:
		return TagComplex64, true
	case complex128, []complex128:
		return TagComplex128, true
	case ComplexLongDouble, []ComplexLongDouble:
		return TagComplexLongDouble, true
	}
	return 0, false
}

// elementTag returns the tag of T.
func elementTag[T Element]() TypeTag {
	var zero T
	tag, _ := tagOf(zero)
	return tag
}

// typeHandler produces the runtime descriptor for one tag.
type typeHandler interface {
	descriptor(rt h5api.Runtime, logger *slog.Logger) (*handle.Handle, error)
}

// scalarHandler maps a tag to a predefined runtime type.
type scalarHandler struct {
	id h5api.ID
}

func (h scalarHandler) descriptor(h5api.Runtime, *slog.Logger) (*handle.Handle, error) {
	return handle.Static(h.id, handle.KindDatatype), nil
}

// complexHandler builds a compound {r, i} of two identical float members.
type complexHandler struct {
	part  h5api.ID
	width uint64
}

func (h complexHandler) descriptor(rt h5api.Runtime, logger *slog.Logger) (*handle.Handle, error) {
	id, err := rt.TypeCreateCompound(2 * h.width)
	if err != nil {
		return nil, utils.WrapError("create complex type", err)
	}

	err = rt.TypeInsert(id, "r", 0, h.part)
	if err == nil {
		err = rt.TypeInsert(id, "i", h.width, h.part)
	}
	var t *handle.Handle
	if err == nil {
		t, err = handle.New(id, handle.KindDatatype, rt.TypeClose, handle.WithLogger(logger))
	}
	if err != nil {
		return nil, errors.Join(utils.WrapError("build complex type", err), rt.TypeClose(id))
	}
	return t, nil
}

// typeRegistry maps every tag to its handler.
var typeRegistry = map[TypeTag]typeHandler{
	TagFloat32:           scalarHandler{id: h5api.NativeFloat},
	TagFloat64:           scalarHandler{id: h5api.NativeDouble},
	TagLongDouble:        scalarHandler{id: h5api.NativeLongDouble},
	TagInt32:             scalarHandler{id: h5api.NativeInt},
	TagUint32:            scalarHandler{id: h5api.NativeUint},
	TagComplex64:         complexHandler{part: h5api.NativeFloat, width: 4},
	TagComplex128:        complexHandler{part: h5api.NativeDouble, width: 8},
	TagComplexLongDouble: complexHandler{part: h5api.NativeLongDouble, width: longDoubleSize},
}

// descriptor returns the runtime type for tag. Releasing the handle closes
// created compound types; predefined types are never closed. An unknown
// tag is a programming error and panics.
func descriptor(rt h5api.Runtime, logger *slog.Logger, tag TypeTag) (*handle.Handle, error) {
	h, ok := typeRegistry[tag]
	if !ok {
		panic(fmt.Sprintf("h5par: unsupported type tag %d", int(tag)))
	}
	return h.descriptor(rt, logger)
}

// encodeElements serializes a slice of an Element type in the
// little-endian layout the runtime types describe.
func encodeElements(vals any) []byte {
	tag, ok := tagOf(vals)
	if !ok {
		panic(fmt.Sprintf("h5par: cannot encode %T", vals))
	}
	sz := tag.Size()
	le := binary.LittleEndian

	var buf []byte
	switch v := vals.(type) {
	case []float32:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			le.PutUint32(buf[i*sz:], math.Float32bits(x))
		}
	case []float64:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			le.PutUint64(buf[i*sz:], math.Float64bits(x))
		}
	case []LongDouble:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			putLongDouble(buf[i*sz:], float64(x))
		}
	case []int32:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			le.PutUint32(buf[i*sz:], uint32(x))
		}
	case []uint32:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			le.PutUint32(buf[i*sz:], x)
		}
	case []complex64:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			le.PutUint32(buf[i*sz:], math.Float32bits(real(x)))
			le.PutUint32(buf[i*sz+4:], math.Float32bits(imag(x)))
		}
	case []complex128:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			le.PutUint64(buf[i*sz:], math.Float64bits(real(x)))
			le.PutUint64(buf[i*sz+8:], math.Float64bits(imag(x)))
		}
	case []ComplexLongDouble:
		buf = make([]byte, len(v)*sz)
		for i, x := range v {
			putLongDouble(buf[i*sz:], real(complex128(x)))
			putLongDouble(buf[i*sz+longDoubleSize:], imag(complex128(x)))
		}
	}
	return buf
}

// decodeElements fills out, a slice of an Element type, from buf.
func decodeElements(buf []byte, out any) {
	tag, ok := tagOf(out)
	if !ok {
		panic(fmt.Sprintf("h5par: cannot decode into %T", out))
	}
	sz := tag.Size()
	le := binary.LittleEndian

	switch v := out.(type) {
	case []float32:
		for i := range v {
			v[i] = math.Float32frombits(le.Uint32(buf[i*sz:]))
		}
	case []float64:
		for i := range v {
			v[i] = math.Float64frombits(le.Uint64(buf[i*sz:]))
		}
	case []LongDouble:
		for i := range v {
			v[i] = LongDouble(longDouble(buf[i*sz:]))
		}
	case []int32:
		for i := range v {
			v[i] = int32(le.Uint32(buf[i*sz:]))
		}
	case []uint32:
		for i := range v {
			v[i] = le.Uint32(buf[i*sz:])
		}
	case []complex64:
		for i := range v {
			v[i] = complex(
				math.Float32frombits(le.Uint32(buf[i*sz:])),
				math.Float32frombits(le.Uint32(buf[i*sz+4:])))
		}
	case []complex128:
		for i := range v {
			v[i] = complex(
				math.Float64frombits(le.Uint64(buf[i*sz:])),
				math.Float64frombits(le.Uint64(buf[i*sz+8:])))
		}
	case []ComplexLongDouble:
		for i := range v {
			v[i] = ComplexLongDouble(complex(longDouble(buf[i*sz:]), longDouble(buf[i*sz+longDoubleSize:])))
		}
	}
}

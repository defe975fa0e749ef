package core

import (
	"encoding/binary"
	"fmt"
)

// Dataspace types (version 2 encoding).
const (
	dataspaceScalar = 0
	dataspaceSimple = 1
	dataspaceNull   = 2
)

// Dataspace is the extent of a dataset or attribute. A scalar dataspace
// has no dimensions and holds one element.
type Dataspace struct {
	Scalar bool
	Dims   []uint64
}

// ScalarSpace returns a scalar dataspace.
func ScalarSpace() Dataspace {
	return Dataspace{Scalar: true}
}

// SimpleSpace returns a simple dataspace with the given dimensions.
func SimpleSpace(dims ...uint64) Dataspace {
	return Dataspace{Dims: append([]uint64(nil), dims...)}
}

// Rank returns the number of dimensions.
func (ds Dataspace) Rank() int {
	return len(ds.Dims)
}

// EncodeDataspaceMessage encodes a version 2 Dataspace message. Maximum
// dimensions are not stored, so they equal the current dimensions.
//
// Format:
//   - Version (1) = 2
//   - Dimensionality (1)
//   - Flags (1): bit 0 = maximum dimensions present
//   - Type (1): 0 scalar, 1 simple, 2 null
//   - Dimension sizes (lengthSize each)
//
// C Reference: H5Osdspace.c - H5O__sdspace_encode()
func EncodeDataspaceMessage(ds Dataspace) ([]byte, error) {
	rank := len(ds.Dims)
	if rank > 32 {
		return nil, fmt.Errorf("dataspace rank %d exceeds maximum 32", rank)
	}
	if ds.Scalar && rank != 0 {
		return nil, fmt.Errorf("scalar dataspace cannot have dimensions")
	}

	kind := byte(dataspaceSimple)
	if ds.Scalar {
		kind = dataspaceScalar
	}

	buf := make([]byte, 0, 4+8*rank)
	buf = append(buf, 2, byte(rank), 0, kind)
	for _, d := range ds.Dims {
		buf = binary.LittleEndian.AppendUint64(buf, d)
	}
	return buf, nil
}

// ParseDataspaceMessage decodes a version 1 or 2 Dataspace message.
func ParseDataspaceMessage(data []byte) (Dataspace, error) {
	c := newCursor(data, "dataspace message")
	version := c.u8()
	rank := int(c.u8())
	c.skip(1) // flags; maximum dimensions and permutation are not needed

	var ds Dataspace
	switch version {
	case 1:
		c.skip(5) // reserved
		ds.Scalar = rank == 0
	case 2:
		switch c.u8() {
		case dataspaceScalar:
			ds.Scalar = true
		case dataspaceSimple:
		case dataspaceNull:
			return ds, fmt.Errorf("%w: null dataspace", ErrUnsupportedFeature)
		}
	default:
		return ds, fmt.Errorf("%w: dataspace version %d", ErrFormat, version)
	}

	if rank > 0 {
		ds.Dims = make([]uint64, rank)
		for i := range ds.Dims {
			ds.Dims[i] = c.u64()
		}
	}
	return ds, c.err
}

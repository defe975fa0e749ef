package core

import (
	"encoding/binary"
	"fmt"
)

// DatatypeClass represents HDF5 datatype class.
type DatatypeClass uint8

// Datatype classes handled by the codec.
const (
	DatatypeFixed    DatatypeClass = 0 // Fixed-point (integers).
	DatatypeFloat    DatatypeClass = 1 // Floating-point.
	DatatypeString   DatatypeClass = 3 // Fixed-length string.
	DatatypeCompound DatatypeClass = 6 // Compound.
	DatatypeVarLen   DatatypeClass = 9 // Variable-length.
)

// Float mantissa normalization (bits 4-5 of the float bit field).
const (
	NormNone    uint8 = 0
	NormMSBSet  uint8 = 1
	NormImplied uint8 = 2
)

// Member is one field of a compound datatype.
type Member struct {
	Name   string
	Offset uint32
	Type   *Datatype
}

// Datatype describes an element type as stored in a Datatype message.
// Only the properties of Class are meaningful.
type Datatype struct {
	Class DatatypeClass
	Size  uint32

	// Fixed-point and floating-point.
	Signed    bool
	BitOffset uint16
	Precision uint16

	// Floating-point.
	ExpLocation   uint8
	ExpSize       uint8
	MantLocation  uint8
	MantSize      uint8
	ExpBias       uint32
	SignLocation  uint8
	Normalization uint8

	// Compound.
	Members []Member

	// Variable-length. IsString is set for variable-length strings, whose
	// Base is an unsigned byte.
	IsString bool
	UTF8     bool
	Base     *Datatype
}

// VarLenElementSize is the in-file size of one variable-length element:
// sequence length (4) + global heap collection address (8) + object index (4).
const VarLenElementSize = 16

// Int32 returns the native little-endian signed 32-bit integer type.
func Int32() *Datatype {
	return &Datatype{Class: DatatypeFixed, Size: 4, Signed: true, Precision: 32}
}

// Uint32 returns the native little-endian unsigned 32-bit integer type.
func Uint32() *Datatype {
	return &Datatype{Class: DatatypeFixed, Size: 4, Precision: 32}
}

// Uint8 returns the unsigned byte type.
func Uint8() *Datatype {
	return &Datatype{Class: DatatypeFixed, Size: 1, Precision: 8}
}

// Float32 returns the IEEE 754 single precision type.
func Float32() *Datatype {
	return &Datatype{
		Class: DatatypeFloat, Size: 4, Precision: 32,
		ExpLocation: 23, ExpSize: 8, MantSize: 23, ExpBias: 127,
		SignLocation: 31, Normalization: NormImplied,
	}
}

// Float64 returns the IEEE 754 double precision type.
func Float64() *Datatype {
	return &Datatype{
		Class: DatatypeFloat, Size: 8, Precision: 64,
		ExpLocation: 52, ExpSize: 11, MantSize: 52, ExpBias: 1023,
		SignLocation: 63, Normalization: NormImplied,
	}
}

// LongDouble returns the x87 80-bit extended precision type in its
// 16-byte native storage. The integer bit is explicit, so the mantissa is
// not normalized.
func LongDouble() *Datatype {
	return &Datatype{
		Class: DatatypeFloat, Size: 16, Precision: 80,
		ExpLocation: 64, ExpSize: 15, MantSize: 64, ExpBias: 16383,
		SignLocation: 79, Normalization: NormNone,
	}
}

// VarString returns the variable-length UTF-8 string type.
func VarString() *Datatype {
	return &Datatype{Class: DatatypeVarLen, Size: VarLenElementSize, IsString: true, UTF8: true, Base: Uint8()}
}

// Compound returns a compound type of the given total size.
func Compound(size uint32, members ...Member) *Datatype {
	return &Datatype{Class: DatatypeCompound, Size: size, Members: members}
}

// Clone returns a deep copy of dt.
func (dt *Datatype) Clone() *Datatype {
	if dt == nil {
		return nil
	}
	out := *dt
	out.Base = dt.Base.Clone()
	if dt.Members != nil {
		out.Members = make([]Member, len(dt.Members))
		for i, m := range dt.Members {
			out.Members[i] = Member{Name: m.Name, Offset: m.Offset, Type: m.Type.Clone()}
		}
	}
	return &out
}

// Equal reports whether two datatypes describe the same element layout.
func (dt *Datatype) Equal(other *Datatype) bool {
	if dt == nil || other == nil {
		return dt == other
	}
	if dt.Class != other.Class || dt.Size != other.Size {
		return false
	}

	switch dt.Class {
	case DatatypeFixed:
		return dt.Signed == other.Signed && dt.Precision == other.Precision && dt.BitOffset == other.BitOffset
	case DatatypeFloat:
		return dt.Precision == other.Precision && dt.BitOffset == other.BitOffset &&
			dt.ExpLocation == other.ExpLocation && dt.ExpSize == other.ExpSize &&
			dt.MantLocation == other.MantLocation && dt.MantSize == other.MantSize &&
			dt.ExpBias == other.ExpBias && dt.SignLocation == other.SignLocation
	case DatatypeCompound:
		if len(dt.Members) != len(other.Members) {
			return false
		}
		for i := range dt.Members {
			a, b := dt.Members[i], other.Members[i]
			if a.Name != b.Name || a.Offset != b.Offset || !a.Type.Equal(b.Type) {
				return false
			}
		}
		return true
	case DatatypeVarLen:
		return dt.IsString == other.IsString && dt.UTF8 == other.UTF8 && dt.Base.Equal(other.Base)
	default:
		return true
	}
}

// String returns a short description for error messages.
func (dt *Datatype) String() string {
	switch dt.Class {
	case DatatypeFixed:
		if dt.Signed {
			return fmt.Sprintf("int%d", dt.Precision)
		}
		return fmt.Sprintf("uint%d", dt.Precision)
	case DatatypeFloat:
		return fmt.Sprintf("float%d", dt.Precision)
	case DatatypeCompound:
		return fmt.Sprintf("compound(%d members, %d bytes)", len(dt.Members), dt.Size)
	case DatatypeVarLen:
		if dt.IsString {
			return "vlen string"
		}
		return "vlen sequence"
	default:
		return fmt.Sprintf("class %d", dt.Class)
	}
}

// EncodeDatatypeMessage encodes a Datatype message.
//
// Format:
//   - Byte 0: Class (4 bits) | Version (4 bits)
//   - Bytes 1-3: Class bit field (24 bits)
//   - Bytes 4-7: Size
//   - Bytes 8+: Class properties
//
// Compound types are written as version 3 (packed member names, member
// offsets sized to the compound size); everything else as version 1.
//
// Reference: HDF5 spec IV.A.2.d (Datatype Message)
// C Reference: H5Odtype.c - H5O__dtype_encode()
func EncodeDatatypeMessage(dt *Datatype) ([]byte, error) {
	return dt.appendTo(nil)
}

func (dt *Datatype) appendTo(buf []byte) ([]byte, error) {
	if dt.Size == 0 {
		return nil, fmt.Errorf("datatype size cannot be 0")
	}

	version := uint8(1)
	var bitField uint32
	switch dt.Class {
	case DatatypeFixed:
		if dt.Signed {
			bitField |= 0x08
		}
	case DatatypeFloat:
		bitField |= uint32(dt.Normalization&0x03) << 4
		bitField |= uint32(dt.SignLocation) << 8
	case DatatypeCompound:
		version = 3
		if len(dt.Members) > 0xFFFF {
			return nil, fmt.Errorf("compound datatype has too many members: %d", len(dt.Members))
		}
		bitField = uint32(len(dt.Members)) //nolint:gosec // G115: bounded above
	case DatatypeVarLen:
		if !dt.IsString || dt.Base == nil {
			return nil, fmt.Errorf("only variable-length strings are supported for writing")
		}
		bitField = 0x01 // type: string, padding: null terminate
		if dt.UTF8 {
			bitField |= 0x01 << 8
		}
	default:
		return nil, fmt.Errorf("unsupported datatype class for writing: %d", dt.Class)
	}

	buf = append(buf, byte(dt.Class)|version<<4, byte(bitField), byte(bitField>>8), byte(bitField>>16))
	buf = binary.LittleEndian.AppendUint32(buf, dt.Size)

	switch dt.Class {
	case DatatypeFixed:
		buf = binary.LittleEndian.AppendUint16(buf, dt.BitOffset)
		buf = binary.LittleEndian.AppendUint16(buf, dt.Precision)
	case DatatypeFloat:
		buf = binary.LittleEndian.AppendUint16(buf, dt.BitOffset)
		buf = binary.LittleEndian.AppendUint16(buf, dt.Precision)
		buf = append(buf, dt.ExpLocation, dt.ExpSize, dt.MantLocation, dt.MantSize)
		buf = binary.LittleEndian.AppendUint32(buf, dt.ExpBias)
	case DatatypeCompound:
		width := widthFor(uint64(dt.Size))
		var err error
		for _, m := range dt.Members {
			if m.Type == nil {
				return nil, fmt.Errorf("compound member %q has no type", m.Name)
			}
			if uint64(m.Offset)+uint64(m.Type.Size) > uint64(dt.Size) {
				return nil, fmt.Errorf("compound member %q at offset %d overruns size %d", m.Name, m.Offset, dt.Size)
			}
			buf = append(buf, m.Name...)
			buf = append(buf, 0)
			buf = appendUintN(buf, uint64(m.Offset), width)
			if buf, err = m.Type.appendTo(buf); err != nil {
				return nil, fmt.Errorf("compound member %q: %w", m.Name, err)
			}
		}
	case DatatypeVarLen:
		var err error
		if buf, err = dt.Base.appendTo(buf); err != nil {
			return nil, fmt.Errorf("variable-length base type: %w", err)
		}
	}

	return buf, nil
}

// ParseDatatypeMessage decodes a Datatype message.
func ParseDatatypeMessage(data []byte) (*Datatype, error) {
	c := newCursor(data, "datatype message")
	dt, err := parseDatatype(c)
	if err != nil {
		return nil, err
	}
	return dt, c.err
}

func parseDatatype(c *cursor) (*Datatype, error) {
	head := c.u8()
	b0, b1, b2 := c.u8(), c.u8(), c.u8()
	size := c.u32()
	if c.err != nil {
		return nil, c.err
	}

	class := DatatypeClass(head & 0x0F)
	version := head >> 4
	bitField := uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
	dt := &Datatype{Class: class, Size: size}

	if bitField&0x01 != 0 && (class == DatatypeFixed || class == DatatypeFloat) {
		return nil, fmt.Errorf("%w: big-endian datatype of class %d", ErrUnsupportedFeature, class)
	}

	switch class {
	case DatatypeFixed:
		dt.Signed = bitField&0x08 != 0
		dt.BitOffset = c.u16()
		dt.Precision = c.u16()

	case DatatypeFloat:
		dt.Normalization = uint8(bitField>>4) & 0x03
		dt.SignLocation = uint8(bitField >> 8) //nolint:gosec // G115: 8-bit field
		dt.BitOffset = c.u16()
		dt.Precision = c.u16()
		dt.ExpLocation = c.u8()
		dt.ExpSize = c.u8()
		dt.MantLocation = c.u8()
		dt.MantSize = c.u8()
		dt.ExpBias = c.u32()

	case DatatypeString:
		dt.UTF8 = (bitField>>4)&0x0F == 1

	case DatatypeCompound:
		n := int(bitField & 0xFFFF)
		for range n {
			m, err := parseMember(c, version, size)
			if err != nil {
				return nil, err
			}
			dt.Members = append(dt.Members, m)
		}

	case DatatypeVarLen:
		dt.IsString = bitField&0x0F == 1
		dt.UTF8 = (bitField>>8)&0x0F == 1
		base, err := parseDatatype(c)
		if err != nil {
			return nil, fmt.Errorf("variable-length base type: %w", err)
		}
		dt.Base = base

	default:
		return nil, fmt.Errorf("%w: datatype class %d", ErrUnsupportedFeature, class)
	}

	return dt, c.err
}

func parseMember(c *cursor, version uint8, compoundSize uint32) (Member, error) {
	start := c.pos
	name := c.cstring()
	var m Member
	m.Name = name

	switch version {
	case 1, 2:
		// Names are padded to a multiple of 8 bytes including the terminator.
		if consumed := c.pos - start; consumed%8 != 0 {
			c.skip(8 - consumed%8)
		}
		m.Offset = c.u32()
		if version == 1 {
			// Dimensionality, reserved, permutation, reserved, dimension sizes.
			c.skip(1 + 3 + 4 + 4 + 16)
		}
	case 3:
		m.Offset = uint32(c.uintN(widthFor(uint64(compoundSize)))) //nolint:gosec // G115: width bounded by compound size
	default:
		return m, fmt.Errorf("%w: compound datatype version %d", ErrUnsupportedFeature, version)
	}
	if c.err != nil {
		return m, c.err
	}

	t, err := parseDatatype(c)
	if err != nil {
		return m, fmt.Errorf("compound member %q: %w", name, err)
	}
	m.Type = t
	return m, nil
}

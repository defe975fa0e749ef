package h5par

import (
	"encoding/binary"
	"math"
)

// LongDouble is a value stored as an x87 80-bit extended float (16 bytes
// on disk, 64-bit explicit mantissa). It is carried in memory as a
// float64, so every LongDouble round-trips exactly.
type LongDouble float64

// ComplexLongDouble is a complex value stored as two LongDouble fields.
type ComplexLongDouble complex128

const (
	longDoubleSize = 16
	x87Bias        = 16383
	f64Bias        = 1023
)

// putLongDouble encodes f into b[0:16] as a little-endian x87 extended
// float with 6 bytes of zero padding.
func putLongDouble(b []byte, f float64) {
	bits := math.Float64bits(f)
	sign := uint16(bits>>63) << 15
	exp := int((bits >> 52) & 0x7FF)
	frac := bits & (1<<52 - 1)

	var mant uint64
	var e16 uint16
	switch {
	case exp == 0 && frac == 0:
		// signed zero
	case exp == 0x7FF:
		e16 = 0x7FFF
		mant = 1<<63 | frac<<11
	case exp == 0:
		// Subnormal float64: normalize into the wider exponent range.
		e := 1 - f64Bias
		for frac&(1<<52) == 0 {
			frac <<= 1
			e--
		}
		e16 = uint16(e + x87Bias)
		mant = frac << 11
	default:
		e16 = uint16(exp - f64Bias + x87Bias)
		mant = 1<<63 | frac<<11
	}

	binary.LittleEndian.PutUint64(b[0:8], mant)
	binary.LittleEndian.PutUint16(b[8:10], sign|e16)
	clear(b[10:longDoubleSize])
}

// longDouble decodes an x87 extended float, rounding to the nearest
// float64.
func longDouble(b []byte) float64 {
	mant := binary.LittleEndian.Uint64(b[0:8])
	se := binary.LittleEndian.Uint16(b[8:10])
	neg := se&0x8000 != 0
	e16 := int(se & 0x7FFF)

	var f float64
	switch {
	case e16 == 0x7FFF && mant<<1 == 0:
		f = math.Inf(1)
	case e16 == 0x7FFF:
		return math.NaN()
	case mant == 0:
		f = 0
	default:
		if e16 == 0 {
			e16 = 1
		}
		f = math.Ldexp(float64(mant), e16-x87Bias-63)
	}
	if neg {
		f = math.Copysign(f, -1)
	}
	return f
}

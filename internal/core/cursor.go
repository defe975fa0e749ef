package core

import (
	"encoding/binary"
	"fmt"
)

// cursor decodes little-endian fields from a message body. The first
// out-of-bounds read latches an error; later reads return zero values.
type cursor struct {
	buf []byte
	pos int
	err error
	ctx string
}

func newCursor(buf []byte, ctx string) *cursor {
	return &cursor{buf: buf, ctx: ctx}
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.pos+n > len(c.buf) {
		c.err = fmt.Errorf("%w: %s truncated at byte %d (need %d of %d)", ErrFormat, c.ctx, c.pos, n, len(c.buf))
		return false
	}
	return true
}

func (c *cursor) u8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.buf[c.pos]
	c.pos++
	return v
}

func (c *cursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v
}

func (c *cursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) u64() uint64 {
	if !c.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v
}

// uintN reads an unsigned little-endian integer of width n (1..8).
func (c *cursor) uintN(n int) uint64 {
	if !c.need(n) {
		return 0
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(c.buf[c.pos+i])
	}
	c.pos += n
	return v
}

func (c *cursor) bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v
}

func (c *cursor) skip(n int) {
	if c.need(n) {
		c.pos += n
	}
}

// cstring reads a null-terminated string and consumes the terminator.
func (c *cursor) cstring() string {
	if c.err != nil {
		return ""
	}
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == 0 {
			s := string(c.buf[c.pos:i])
			c.pos = i + 1
			return s
		}
	}
	c.err = fmt.Errorf("%w: %s: unterminated string", ErrFormat, c.ctx)
	return ""
}

func (c *cursor) rest() []byte {
	if c.err != nil {
		return nil
	}
	v := c.buf[c.pos:]
	c.pos = len(c.buf)
	return v
}

// appendUintN appends v as an n-byte little-endian integer.
func appendUintN(buf []byte, v uint64, n int) []byte {
	for i := range n {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

// widthFor returns the smallest of 1, 2, 4 or 8 bytes that holds v.
func widthFor(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

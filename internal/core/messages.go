package core

import (
	"encoding/binary"
	"fmt"
)

// MessageType identifies an object header message.
type MessageType uint16

// Header message types used by the codec.
const (
	MsgNil          MessageType = 0x00
	MsgDataspace    MessageType = 0x01
	MsgLinkInfo     MessageType = 0x02
	MsgDatatype     MessageType = 0x03
	MsgFillValue    MessageType = 0x05
	MsgLink         MessageType = 0x06
	MsgDataLayout   MessageType = 0x08
	MsgGroupInfo    MessageType = 0x0A
	MsgAttribute    MessageType = 0x0C
	MsgContinuation MessageType = 0x10
	MsgSymbolTable  MessageType = 0x11
)

// DataLayoutClass is the storage layout of a dataset.
type DataLayoutClass uint8

// Layout classes.
const (
	LayoutCompact    DataLayoutClass = 0
	LayoutContiguous DataLayoutClass = 1
	LayoutChunked    DataLayoutClass = 2
)

// EncodeLinkInfoMessage encodes a version 0 Link Info message for a
// group whose links are all stored compactly in its object header.
//
// Format: Version (1), Flags (1), Fractal Heap Address, Name Index
// B-tree Address. Both addresses are undefined for compact storage.
func EncodeLinkInfoMessage() []byte {
	buf := make([]byte, 0, 18)
	buf = append(buf, 0, 0)
	buf = binary.LittleEndian.AppendUint64(buf, UndefinedAddress)
	buf = binary.LittleEndian.AppendUint64(buf, UndefinedAddress)
	return buf
}

// parseLinkInfoMessage reports whether the group stores its links in a
// fractal heap (dense storage).
func parseLinkInfoMessage(data []byte) (dense bool, err error) {
	c := newCursor(data, "link info message")
	if v := c.u8(); v != 0 && c.err == nil {
		return false, fmt.Errorf("%w: link info version %d", ErrFormat, v)
	}
	flags := c.u8()
	if flags&0x01 != 0 {
		c.skip(8) // maximum creation index
	}
	heap := c.u64()
	return heap != UndefinedAddress, c.err
}

// EncodeGroupInfoMessage encodes an empty version 0 Group Info message.
func EncodeGroupInfoMessage() []byte {
	return []byte{0, 0}
}

// EncodeLinkMessage encodes a version 1 hard Link message with a UTF-8
// name.
//
// Format:
//   - Version (1) = 1
//   - Flags (1): bits 0-1 size of name length field, bit 4 charset present
//   - Charset (1): 1 = UTF-8
//   - Name length (1, 2, 4 or 8), Name (no terminator)
//   - Object address (offsetSize)
//
// C Reference: H5Olink.c - H5O__link_encode()
func EncodeLinkMessage(name string, address uint64) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("link name cannot be empty")
	}
	width := widthFor(uint64(len(name)))
	sizeBits := map[int]byte{1: 0, 2: 1, 4: 2, 8: 3}[width]

	buf := make([]byte, 0, 3+width+len(name)+8)
	buf = append(buf, 1, sizeBits|0x10, 1)
	buf = appendUintN(buf, uint64(len(name)), width)
	buf = append(buf, name...)
	buf = binary.LittleEndian.AppendUint64(buf, address)
	return buf, nil
}

// LinkMessage is a decoded Link message. Only hard links carry Address.
type LinkMessage struct {
	Name    string
	Hard    bool
	Address uint64
}

// ParseLinkMessage decodes a Link message.
func ParseLinkMessage(data []byte) (LinkMessage, error) {
	var lm LinkMessage
	c := newCursor(data, "link message")
	if v := c.u8(); v != 1 && c.err == nil {
		return lm, fmt.Errorf("%w: link message version %d", ErrFormat, v)
	}
	flags := c.u8()

	linkType := uint8(0)
	if flags&0x08 != 0 {
		linkType = c.u8()
	}
	if flags&0x04 != 0 {
		c.skip(8) // creation order
	}
	if flags&0x10 != 0 {
		c.skip(1) // charset
	}
	nameLen := c.uintN(1 << (flags & 0x03))
	if nameLen > uint64(len(data)) {
		return lm, fmt.Errorf("%w: link name length %d", ErrFormat, nameLen)
	}
	lm.Name = string(c.bytes(int(nameLen)))

	if linkType == 0 {
		lm.Hard = true
		lm.Address = c.u64()
	}
	return lm, c.err
}

// EncodeFillValueMessage encodes a version 3 Fill Value message with no
// fill value defined: late space allocation, fill written only if set.
func EncodeFillValueMessage() []byte {
	return []byte{3, 0x0A}
}

// EncodeLayoutMessage encodes a version 3 contiguous Data Layout message.
//
// Format: Version (1) = 3, Class (1) = 1, Address (offsetSize),
// Size (lengthSize). Address is undefined while no storage is allocated.
//
// C Reference: H5Olayout.c - H5O__layout_encode()
func EncodeLayoutMessage(dataAddress, dataSize uint64) []byte {
	buf := make([]byte, 0, 18)
	buf = append(buf, 3, byte(LayoutContiguous))
	buf = binary.LittleEndian.AppendUint64(buf, dataAddress)
	buf = binary.LittleEndian.AppendUint64(buf, dataSize)
	return buf
}

// Layout is a decoded Data Layout message.
type Layout struct {
	Class   DataLayoutClass
	Address uint64 // contiguous
	Size    uint64 // contiguous
	Compact []byte // compact
}

// ParseLayoutMessage decodes a version 3 Data Layout message.
func ParseLayoutMessage(data []byte) (Layout, error) {
	var l Layout
	c := newCursor(data, "layout message")
	version := c.u8()
	if c.err == nil && (version < 3 || version > 4) {
		return l, fmt.Errorf("%w: layout version %d", ErrUnsupportedFeature, version)
	}
	l.Class = DataLayoutClass(c.u8())

	switch l.Class {
	case LayoutCompact:
		n := int(c.u16())
		l.Compact = c.bytes(n)
	case LayoutContiguous:
		l.Address = c.u64()
		l.Size = c.u64()
	default:
		return l, fmt.Errorf("%w: layout class %d", ErrUnsupportedFeature, l.Class)
	}
	return l, c.err
}

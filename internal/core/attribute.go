package core

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AttributeMessage is an attribute stored in an object header.
type AttributeMessage struct {
	Name  string
	Type  *Datatype
	Space Dataspace
	Data  []byte
}

// EncodeAttributeMessage encodes a version 3 Attribute message with a
// UTF-8 name.
//
// Format:
//   - Version (1) = 3, Flags (1) = 0
//   - Name Size (2, including terminator), Datatype Size (2), Dataspace Size (2)
//   - Name Character Set Encoding (1) = 1 (UTF-8)
//   - Name, Datatype, Dataspace, Data (no padding)
//
// C Reference: H5Oattr.c - H5O__attr_encode()
func EncodeAttributeMessage(attr *AttributeMessage) ([]byte, error) {
	if attr.Name == "" {
		return nil, fmt.Errorf("attribute name cannot be empty")
	}
	dt, err := EncodeDatatypeMessage(attr.Type)
	if err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", attr.Name, err)
	}
	ds, err := EncodeDataspaceMessage(attr.Space)
	if err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", attr.Name, err)
	}
	if len(attr.Name)+1 > math.MaxUint16 || len(dt) > math.MaxUint16 || len(ds) > math.MaxUint16 {
		return nil, fmt.Errorf("attribute %q header fields exceed 64KB", attr.Name)
	}

	buf := make([]byte, 0, 9+len(attr.Name)+1+len(dt)+len(ds)+len(attr.Data))
	buf = append(buf, 3, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(attr.Name)+1)) //nolint:gosec // G115: checked above
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(dt)))          //nolint:gosec // G115: checked above
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ds)))          //nolint:gosec // G115: checked above
	buf = append(buf, 1)
	buf = append(buf, attr.Name...)
	buf = append(buf, 0)
	buf = append(buf, dt...)
	buf = append(buf, ds...)
	buf = append(buf, attr.Data...)
	return buf, nil
}

// ParseAttributeMessage decodes a version 1, 2 or 3 Attribute message.
// Version 1 pads the name, datatype and dataspace to 8-byte multiples.
func ParseAttributeMessage(data []byte) (*AttributeMessage, error) {
	c := newCursor(data, "attribute message")
	version := c.u8()
	flags := c.u8()
	nameSize := int(c.u16())
	dtSize := int(c.u16())
	dsSize := int(c.u16())
	if version == 3 {
		c.skip(1) // name encoding
	}
	if c.err != nil {
		return nil, c.err
	}
	if version < 1 || version > 3 {
		return nil, fmt.Errorf("%w: attribute message version %d", ErrFormat, version)
	}
	if flags&0x03 != 0 {
		return nil, fmt.Errorf("%w: shared attribute datatype or dataspace", ErrUnsupportedFeature)
	}

	pad := func(n int) int {
		if version == 1 {
			return (n + 7) &^ 7
		}
		return n
	}

	nameBytes := c.bytes(pad(nameSize))
	dtBytes := c.bytes(pad(dtSize))
	dsBytes := c.bytes(pad(dsSize))
	if c.err != nil {
		return nil, c.err
	}

	name := string(nameBytes[:nameSize])
	if n := len(name); n > 0 && name[n-1] == 0 {
		name = name[:n-1]
	}

	dt, err := ParseDatatypeMessage(dtBytes[:dtSize])
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", name, err)
	}
	ds, err := ParseDataspaceMessage(dsBytes[:dsSize])
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", name, err)
	}

	return &AttributeMessage{
		Name:  name,
		Type:  dt,
		Space: ds,
		Data:  c.rest(),
	}, nil
}

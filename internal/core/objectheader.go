package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5par/internal/utils"
)

// Object header v2 flags.
const (
	ohdrChunkSizeMask    = 0x03
	ohdrAttrCreationIdx  = 0x04
	ohdrAttrPhaseChange  = 0x10
	ohdrStoreTimes       = 0x20
	ohdrMaxHeaderMessage = 0xFFFF
)

// HeaderMessage is one message of an object header.
type HeaderMessage struct {
	Type  MessageType
	Flags uint8
	Data  []byte
}

// ObjectHeaderWriter builds a version 2 object header with a single chunk.
type ObjectHeaderWriter struct {
	Messages []HeaderMessage
}

// Add appends a message.
func (ohw *ObjectHeaderWriter) Add(t MessageType, data []byte) {
	ohw.Messages = append(ohw.Messages, HeaderMessage{Type: t, Data: data})
}

// Encode returns the encoded header.
//
// Format:
//   - Signature "OHDR" (4), Version (1) = 2, Flags (1)
//   - Size of Chunk 0 (1, 2, 4 or 8 bytes, selected by flags bits 0-1)
//   - Messages: Type (1), Size (2), Flags (1), Data
//   - Checksum (4), lookup3 over every preceding byte
//
// C Reference: H5Ocache.c - H5O__cache_serialize()
func (ohw *ObjectHeaderWriter) Encode() ([]byte, error) {
	var chunkSize uint64
	for _, msg := range ohw.Messages {
		if len(msg.Data) > ohdrMaxHeaderMessage {
			return nil, fmt.Errorf("header message type %d is %d bytes, exceeds 64KB", msg.Type, len(msg.Data))
		}
		chunkSize += 4 + uint64(len(msg.Data))
	}

	width := widthFor(chunkSize)
	flags := map[int]byte{1: 0, 2: 1, 4: 2, 8: 3}[width]

	buf := make([]byte, 0, 6+width+int(chunkSize)+4)
	buf = append(buf, 'O', 'H', 'D', 'R', 2, flags)
	buf = appendUintN(buf, chunkSize, width)
	for _, msg := range ohw.Messages {
		buf = append(buf, byte(msg.Type))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(msg.Data))) //nolint:gosec // G115: checked above
		buf = append(buf, msg.Flags)
		buf = append(buf, msg.Data...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, Lookup3(buf))
	return buf, nil
}

// WriteTo encodes the header and writes it at address. It returns the
// number of bytes written.
func (ohw *ObjectHeaderWriter) WriteTo(w io.WriterAt, address uint64) (uint64, error) {
	buf, err := ohw.Encode()
	if err != nil {
		return 0, err
	}
	if _, err := w.WriteAt(buf, int64(address)); err != nil { //nolint:gosec // G115: file address
		return 0, fmt.Errorf("failed to write object header v2 at address %d: %w", address, err)
	}
	return uint64(len(buf)), nil
}

// ReadObjectHeader reads the version 2 object header at address, following
// continuation blocks, and returns its messages in order.
func ReadObjectHeader(r io.ReaderAt, address uint64) ([]HeaderMessage, error) {
	prefix := make([]byte, 6)
	if _, err := r.ReadAt(prefix, int64(address)); err != nil { //nolint:gosec // G115: file address
		return nil, utils.WrapError(fmt.Sprintf("object header read at %d", address), err)
	}
	if string(prefix[:4]) != "OHDR" {
		return nil, fmt.Errorf("%w: version 1 object header at %d", ErrUnsupportedFeature, address)
	}
	if prefix[4] != 2 {
		return nil, fmt.Errorf("%w: object header version %d at %d", ErrFormat, prefix[4], address)
	}
	flags := prefix[5]

	headLen := 6
	if flags&ohdrStoreTimes != 0 {
		headLen += 16
	}
	if flags&ohdrAttrPhaseChange != 0 {
		headLen += 4
	}
	width := 1 << (flags & ohdrChunkSizeMask)

	head := make([]byte, headLen+width)
	if _, err := r.ReadAt(head, int64(address)); err != nil { //nolint:gosec // G115: file address
		return nil, utils.WrapError(fmt.Sprintf("object header read at %d", address), err)
	}
	chunkSize := newCursor(head[headLen:], "object header").uintN(width)

	total, err := utils.CheckedAllocSize(uint64(len(head))+chunkSize+4, 1, utils.MaxAttributeBytes)
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	block := make([]byte, total)
	if _, err := r.ReadAt(block, int64(address)); err != nil && !errors.Is(err, io.EOF) { //nolint:gosec // G115: file address
		return nil, utils.WrapError(fmt.Sprintf("object header read at %d", address), err)
	}
	if err := verifyChecksum(block, address); err != nil {
		return nil, err
	}

	creationOrder := flags&ohdrAttrCreationIdx != 0
	messages, conts, err := parseMessages(block[len(head):total-4], creationOrder)
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}

	for len(conts) > 0 {
		cont := conts[0]
		conts = conts[1:]
		more, next, err := readContinuation(r, cont, creationOrder)
		if err != nil {
			return nil, err
		}
		messages = append(messages, more...)
		conts = append(conts, next...)
	}
	return messages, nil
}

type continuation struct {
	address uint64
	length  uint64
}

func readContinuation(r io.ReaderAt, cont continuation, creationOrder bool) ([]HeaderMessage, []continuation, error) {
	n, err := utils.CheckedAllocSize(cont.length, 1, utils.MaxAttributeBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("continuation block at %d: %w", cont.address, err)
	}
	if n < 8 {
		return nil, nil, fmt.Errorf("%w: continuation block at %d too small", ErrFormat, cont.address)
	}
	block := make([]byte, n)
	if _, err := r.ReadAt(block, int64(cont.address)); err != nil && !errors.Is(err, io.EOF) { //nolint:gosec // G115: file address
		return nil, nil, utils.WrapError(fmt.Sprintf("continuation block read at %d", cont.address), err)
	}
	if string(block[:4]) != "OCHK" {
		return nil, nil, fmt.Errorf("%w: bad continuation signature at %d", ErrFormat, cont.address)
	}
	if err := verifyChecksum(block, cont.address); err != nil {
		return nil, nil, err
	}
	return parseMessages(block[4:n-4], creationOrder)
}

func verifyChecksum(block []byte, address uint64) error {
	body := block[:len(block)-4]
	stored := binary.LittleEndian.Uint32(block[len(block)-4:])
	if computed := Lookup3(body); computed != stored {
		return fmt.Errorf("%w: checksum mismatch at %d (stored %#x, computed %#x)", ErrFormat, address, stored, computed)
	}
	return nil
}

func parseMessages(chunk []byte, creationOrder bool) ([]HeaderMessage, []continuation, error) {
	var messages []HeaderMessage
	var conts []continuation

	c := newCursor(chunk, "header messages")
	prefix := 4
	if creationOrder {
		prefix += 2
	}
	// Trailing gaps smaller than a message prefix are padding.
	for c.err == nil && len(chunk)-c.pos >= prefix {
		t := MessageType(c.u8())
		size := int(c.u16())
		flags := c.u8()
		if creationOrder {
			c.skip(2)
		}
		data := c.bytes(size)
		if c.err != nil {
			break
		}

		switch t {
		case MsgNil:
		case MsgContinuation:
			cc := newCursor(data, "continuation message")
			conts = append(conts, continuation{address: cc.u64(), length: cc.u64()})
			if cc.err != nil {
				return nil, nil, cc.err
			}
		default:
			messages = append(messages, HeaderMessage{Type: t, Flags: flags, Data: data})
		}
	}
	return messages, conts, c.err
}

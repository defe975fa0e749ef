package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5par/internal/utils"
)

// Global heap layout constants.
const (
	globalHeapHeaderSize = 16   // "GCOL" + version + reserved + collection size
	globalHeapObjectHead = 16   // index + refcount + reserved + object size
	globalHeapMinSize    = 4096 // H5HG_MINSIZE
)

// HeapID references one object of a global heap collection.
type HeapID struct {
	Collection uint64
	Index      uint32
}

func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// EncodeGlobalHeap encodes objects into one global heap collection. Object
// i gets index i+1. Collections are at least 4096 bytes; the unused tail is
// described by the free-space object (index 0).
//
// Format:
//   - Signature "GCOL" (4), Version (1) = 1, Reserved (3), Collection Size (8)
//   - Objects: Index (2), Reference Count (2), Reserved (4), Size (8),
//     Data padded to 8 bytes
//
// C Reference: H5HG.c - H5HG__create(), H5HG_insert()
func EncodeGlobalHeap(objects [][]byte) ([]byte, error) {
	if len(objects) >= 0xFFFF {
		return nil, fmt.Errorf("too many global heap objects: %d", len(objects))
	}

	used := uint64(globalHeapHeaderSize)
	for _, obj := range objects {
		used += globalHeapObjectHead + align8(uint64(len(obj)))
	}
	total := max(used, globalHeapMinSize)

	buf := make([]byte, 0, total)
	buf = append(buf, 'G', 'C', 'O', 'L', 1, 0, 0, 0)
	buf = binary.LittleEndian.AppendUint64(buf, total)

	for i, obj := range objects {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i+1)) //nolint:gosec // G115: bounded above
		buf = binary.LittleEndian.AppendUint16(buf, 1)
		buf = append(buf, 0, 0, 0, 0)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(obj)))
		buf = append(buf, obj...)
		buf = append(buf, make([]byte, align8(uint64(len(obj)))-uint64(len(obj)))...)
	}

	if free := total - used; free >= globalHeapObjectHead {
		buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0)
		buf = binary.LittleEndian.AppendUint64(buf, free)
	}
	buf = buf[:total]
	return buf, nil
}

// ReadGlobalHeap reads the collection at addr and returns its objects by
// index.
func ReadGlobalHeap(r io.ReaderAt, addr uint64) (map[uint32][]byte, error) {
	head := make([]byte, globalHeapHeaderSize)
	if _, err := r.ReadAt(head, int64(addr)); err != nil { //nolint:gosec // G115: file address
		return nil, utils.WrapError(fmt.Sprintf("global heap read at %d", addr), err)
	}
	if string(head[:4]) != "GCOL" {
		return nil, fmt.Errorf("%w: bad global heap signature at %d", ErrFormat, addr)
	}
	if head[4] != 1 {
		return nil, fmt.Errorf("%w: global heap version %d", ErrFormat, head[4])
	}

	size := binary.LittleEndian.Uint64(head[8:16])
	n, err := utils.CheckedAllocSize(size, 1, utils.MaxAttributeBytes)
	if err != nil {
		return nil, fmt.Errorf("global heap at %d: %w", addr, err)
	}
	if n < globalHeapHeaderSize {
		return nil, fmt.Errorf("%w: global heap size %d", ErrFormat, size)
	}

	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, int64(addr)); err != nil && !errors.Is(err, io.EOF) { //nolint:gosec // G115: file address
		return nil, utils.WrapError(fmt.Sprintf("global heap read at %d", addr), err)
	}

	objects := make(map[uint32][]byte)
	c := newCursor(buf, "global heap")
	c.skip(globalHeapHeaderSize)
	for c.err == nil && len(buf)-c.pos >= globalHeapObjectHead {
		index := c.u16()
		c.skip(2 + 4)
		objSize := c.u64()
		if index == 0 {
			break
		}
		if objSize > uint64(len(buf)) {
			return nil, fmt.Errorf("%w: global heap object %d size %d", ErrFormat, index, objSize)
		}
		data := c.bytes(int(objSize))
		c.skip(int(align8(objSize) - objSize))
		objects[uint32(index)] = data
	}
	return objects, c.err
}

package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5par/internal/utils"
)

// HDF5 file signature and superblock constants.
const (
	Signature = "\x89HDF\r\n\x1a\n"
	Version0  = 0
	Version2  = 2
	Version3  = 3

	// SuperblockV2Size is the encoded size of a version 2 superblock with
	// 8-byte offsets and lengths. File space allocation starts here.
	SuperblockV2Size = 48
)

// Superblock holds the file-level metadata of a version 2 or 3 superblock.
type Superblock struct {
	Version        uint8
	OffsetSize     uint8
	LengthSize     uint8
	Flags          uint8
	BaseAddress    uint64
	SuperExtension uint64
	EndOfFile      uint64
	RootGroup      uint64
}

// ReadSuperblock reads and validates the superblock at offset 0.
//
// Format (version 2/3):
//   - Signature (8), Version (1), Size of Offsets (1), Size of Lengths (1)
//   - File Consistency Flags (1)
//   - Base Address, Superblock Extension Address, End of File Address,
//     Root Group Object Header Address (offsetSize each)
//   - Checksum (4), lookup3 over every preceding byte
//
// Reference: HDF5 spec II.A (Superblock Version 2)
func ReadSuperblock(r io.ReaderAt) (*Superblock, error) {
	buf := make([]byte, SuperblockV2Size)
	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("superblock read failed", err)
	}
	if n < 9 || string(buf[:8]) != Signature {
		return nil, fmt.Errorf("%w: missing HDF5 signature", ErrFormat)
	}

	version := buf[8]
	if version != Version2 && version != Version3 {
		return nil, fmt.Errorf("%w: superblock version %d", ErrUnsupportedFeature, version)
	}
	if n < SuperblockV2Size {
		return nil, fmt.Errorf("%w: truncated superblock", ErrFormat)
	}
	if buf[9] != 8 || buf[10] != 8 {
		return nil, fmt.Errorf("%w: offset size %d, length size %d", ErrUnsupportedFeature, buf[9], buf[10])
	}

	stored := binary.LittleEndian.Uint32(buf[44:48])
	if computed := Lookup3(buf[:44]); computed != stored {
		return nil, fmt.Errorf("%w: superblock checksum mismatch (stored %#x, computed %#x)", ErrFormat, stored, computed)
	}

	return &Superblock{
		Version:        version,
		OffsetSize:     buf[9],
		LengthSize:     buf[10],
		Flags:          buf[11],
		BaseAddress:    binary.LittleEndian.Uint64(buf[12:20]),
		SuperExtension: binary.LittleEndian.Uint64(buf[20:28]),
		EndOfFile:      binary.LittleEndian.Uint64(buf[28:36]),
		RootGroup:      binary.LittleEndian.Uint64(buf[36:44]),
	}, nil
}

// WriteTo writes a version 2 superblock at offset 0.
func (sb *Superblock) WriteTo(w io.WriterAt, eofAddress uint64) error {
	if sb.Version != Version2 {
		return fmt.Errorf("only superblock version 2 is supported for writing, got version %d", sb.Version)
	}

	buf := make([]byte, SuperblockV2Size)
	copy(buf[0:8], Signature)
	buf[8] = Version2
	buf[9] = 8
	buf[10] = 8
	buf[11] = sb.Flags
	binary.LittleEndian.PutUint64(buf[12:20], sb.BaseAddress)

	superExt := sb.SuperExtension
	if superExt == 0 {
		superExt = UndefinedAddress
	}
	binary.LittleEndian.PutUint64(buf[20:28], superExt)
	binary.LittleEndian.PutUint64(buf[28:36], eofAddress)
	binary.LittleEndian.PutUint64(buf[36:44], sb.RootGroup)
	binary.LittleEndian.PutUint32(buf[44:48], Lookup3(buf[:44]))

	if _, err := w.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}
	return nil
}

// Package writer provides the sinks a container image is encoded into:
// an os.File backed writer and an in-memory buffer, both paired with an
// end-of-file space allocator.
package writer

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrClosed is returned by operations on a closed writer.
var ErrClosed = errors.New("writer is closed")

// CreateMode specifies how to create a new file.
type CreateMode int

const (
	// ModeTruncate creates a new file, truncating it if it exists.
	ModeTruncate CreateMode = iota

	// ModeExclusive creates a new file, failing if it exists.
	ModeExclusive
)

// FileWriter writes a container image to an os.File.
//
// FileWriter is not safe for concurrent use.
type FileWriter struct {
	file      *os.File
	allocator *Allocator
}

// NewFileWriter creates the file named filename. The allocator starts at
// initialOffset so the caller can reserve the superblock.
func NewFileWriter(filename string, mode CreateMode, initialOffset uint64) (*FileWriter, error) {
	var osFile *os.File
	var err error

	switch mode {
	case ModeTruncate:
		osFile, err = os.Create(filename)
	case ModeExclusive:
		osFile, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	default:
		return nil, fmt.Errorf("invalid create mode: %d", mode)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &FileWriter{
		file:      osFile,
		allocator: NewAllocator(initialOffset),
	}, nil
}

// Allocate reserves size bytes at the end of the file.
func (w *FileWriter) Allocate(size uint64) (uint64, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	return w.allocator.Allocate(size)
}

// WriteAt writes data at offset.
func (w *FileWriter) WriteAt(data []byte, offset int64) (int, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := w.file.WriteAt(data, offset)
	if err != nil {
		return n, fmt.Errorf("write at address %d failed: %w", offset, err)
	}
	if n != len(data) {
		return n, fmt.Errorf("incomplete write at address %d: wrote %d of %d bytes", offset, n, len(data))
	}
	return n, nil
}

// ReadAt reads back previously written bytes.
func (w *FileWriter) ReadAt(buf []byte, addr int64) (int, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	return w.file.ReadAt(buf, addr)
}

// EndOfFile returns the end-of-file address.
func (w *FileWriter) EndOfFile() uint64 {
	return w.allocator.EndOfFile()
}

// Validate checks that no two allocated blocks overlap.
func (w *FileWriter) Validate() error {
	return w.allocator.ValidateNoOverlaps()
}

// Flush commits the file contents to stable storage.
func (w *FileWriter) Flush() error {
	if w.file == nil {
		return ErrClosed
	}
	return w.file.Sync()
}

// Close closes the underlying file. It is safe to call more than once.
func (w *FileWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Buffer is an in-memory image sink.
type Buffer struct {
	data      []byte
	allocator *Allocator
}

// NewBuffer creates an empty buffer whose allocator starts at initialOffset.
func NewBuffer(initialOffset uint64) *Buffer {
	return &Buffer{allocator: NewAllocator(initialOffset)}
}

// Allocate reserves size bytes at the end of the buffer.
func (b *Buffer) Allocate(size uint64) (uint64, error) {
	return b.allocator.Allocate(size)
}

// WriteAt writes data at offset, growing the buffer as needed.
func (b *Buffer) WriteAt(data []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d", offset)
	}
	end := int(offset) + len(data)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	return copy(b.data[offset:], data), nil
}

// ReadAt implements io.ReaderAt.
func (b *Buffer) ReadAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d", offset)
	}
	if offset >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[offset:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// EndOfFile returns the end-of-file address.
func (b *Buffer) EndOfFile() uint64 {
	return b.allocator.EndOfFile()
}

// Validate checks that no two allocated blocks overlap and that every
// block lies inside the written bytes.
func (b *Buffer) Validate() error {
	if err := b.allocator.ValidateNoOverlaps(); err != nil {
		return err
	}
	blocks := b.allocator.Blocks()
	if n := len(blocks); n > 0 {
		last := blocks[n-1]
		if last.Offset+last.Size > uint64(len(b.data)) {
			return fmt.Errorf("block at %d (size %d) extends past the %d written bytes",
				last.Offset, last.Size, len(b.data))
		}
	}
	return nil
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Compile-time interface checks.
var (
	_ io.ReaderAt = (*FileWriter)(nil)
	_ io.WriterAt = (*FileWriter)(nil)
	_ io.ReaderAt = (*Buffer)(nil)
	_ io.WriterAt = (*Buffer)(nil)
)

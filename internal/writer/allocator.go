package writer

import (
	"fmt"
	"sort"
)

// AllocatedBlock represents a region of file space handed out by an Allocator.
type AllocatedBlock struct {
	Offset uint64 // Starting address in file
	Size   uint64 // Size of allocated block in bytes
}

// Allocator hands out file space at the end of the file, packing blocks
// back to back. Space is never reused: a container image is always written
// in one pass.
type Allocator struct {
	blocks     []AllocatedBlock
	nextOffset uint64
}

// NewAllocator creates an allocator whose first block starts at
// initialOffset (typically the size of the superblock).
func NewAllocator(initialOffset uint64) *Allocator {
	return &Allocator{
		blocks:     make([]AllocatedBlock, 0, 16),
		nextOffset: initialOffset,
	}
}

// Allocate reserves size bytes and returns their address.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("cannot allocate zero bytes")
	}

	addr := a.nextOffset
	if addr+size < addr {
		return 0, fmt.Errorf("allocation of %d bytes at %d overflows the address space", size, a.nextOffset)
	}

	a.blocks = append(a.blocks, AllocatedBlock{Offset: addr, Size: size})
	a.nextOffset = addr + size
	return addr, nil
}

// EndOfFile returns the first address past every allocated block.
func (a *Allocator) EndOfFile() uint64 {
	return a.nextOffset
}

// Blocks returns a copy of the allocated blocks sorted by offset.
func (a *Allocator) Blocks() []AllocatedBlock {
	blocks := make([]AllocatedBlock, len(a.blocks))
	copy(blocks, a.blocks)

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Offset < blocks[j].Offset
	})

	return blocks
}

// ValidateNoOverlaps checks that no two allocated blocks overlap.
func (a *Allocator) ValidateNoOverlaps() error {
	blocks := a.Blocks()

	for i := 0; i < len(blocks)-1; i++ {
		current := blocks[i]
		next := blocks[i+1]

		if current.Offset+current.Size > next.Offset {
			return fmt.Errorf("overlap detected: block at %d (size %d) overlaps block at %d",
				current.Offset, current.Size, next.Offset)
		}
	}

	return nil
}

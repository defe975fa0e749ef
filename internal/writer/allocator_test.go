package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_Sequential(t *testing.T) {
	alloc := NewAllocator(48)

	addr1, err := alloc.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(48), addr1)

	addr2, err := alloc.Allocate(200)
	require.NoError(t, err)
	assert.Equal(t, uint64(148), addr2)
	assert.Equal(t, uint64(348), alloc.EndOfFile())

	require.NoError(t, alloc.ValidateNoOverlaps())
}

func TestAllocate_ZeroSize(t *testing.T) {
	alloc := NewAllocator(0)
	_, err := alloc.Allocate(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot allocate zero bytes")
}

func TestValidateNoOverlaps(t *testing.T) {
	alloc := NewAllocator(0)
	_, err := alloc.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, alloc.ValidateNoOverlaps())

	// Blocks recorded out of order are still checked pairwise by offset.
	alloc.blocks = append(alloc.blocks, AllocatedBlock{Offset: 8, Size: 4})
	err = alloc.ValidateNoOverlaps()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap detected")
}

func TestBlocks_Sorted(t *testing.T) {
	alloc := NewAllocator(0)
	for _, size := range []uint64{10, 20, 30} {
		_, err := alloc.Allocate(size)
		require.NoError(t, err)
	}

	blocks := alloc.Blocks()
	require.Len(t, blocks, 3)
	for i := 1; i < len(blocks); i++ {
		assert.Less(t, blocks[i-1].Offset, blocks[i].Offset)
	}
}

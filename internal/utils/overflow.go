package utils

import (
	"fmt"
	"math"
)

// Buffer limits applied before any allocation sized from file metadata or
// caller-supplied dimensions.
const (
	// MaxTransferBytes limits a single read or write buffer to 4GB.
	MaxTransferBytes = 4 * 1024 * 1024 * 1024

	// MaxAttributeBytes limits attribute payloads to 64MB.
	MaxAttributeBytes = 64 * 1024 * 1024

	// MaxStringBytes limits variable-length strings to 16MB.
	MaxStringBytes = 16 * 1024 * 1024
)

// CheckMultiplyOverflow checks if multiplying two uint64 values would overflow.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}

	if a > math.MaxUint64/b {
		return fmt.Errorf("%w: multiplication overflow: %d * %d exceeds uint64 max", ErrResourceExhausted, a, b)
	}

	return nil
}

// SafeMultiply multiplies two uint64 values and returns the result if no overflow occurs.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// ElementCount returns the product of dims. A rank-0 shape (scalar) holds
// exactly one element.
func ElementCount(dims []uint64) (uint64, error) {
	total := uint64(1)
	for i, d := range dims {
		next, err := SafeMultiply(total, d)
		if err != nil {
			return 0, fmt.Errorf("element count overflow at dimension %d: %w", i, err)
		}
		total = next
	}
	return total, nil
}

// CheckedAllocSize returns count*elemSize as an int, failing with
// ErrResourceExhausted when the product overflows or exceeds limit.
func CheckedAllocSize(count, elemSize, limit uint64) (int, error) {
	size, err := SafeMultiply(count, elemSize)
	if err != nil {
		return 0, err
	}
	if size > limit || size > math.MaxInt {
		return 0, fmt.Errorf("%w: buffer of %d bytes exceeds limit %d", ErrResourceExhausted, size, limit)
	}
	return int(size), nil
}

// ValidateHyperslabBounds validates a hyperslab selection against dims.
// The last selected index along each axis is
// start + (count-1)*stride + block - 1 and must stay inside the extent.
// Zero counts select nothing and are always in bounds.
func ValidateHyperslabBounds(start, count, stride, block, dims []uint64) error {
	n := len(dims)
	if len(start) != n || len(count) != n || len(stride) != n || len(block) != n {
		return fmt.Errorf("hyperslab dimension mismatch: start=%d, count=%d, stride=%d, block=%d, dims=%d",
			len(start), len(count), len(stride), len(block), n)
	}

	for i := range start {
		if count[i] == 0 {
			continue
		}
		if block[i] == 0 {
			return fmt.Errorf("hyperslab block must be > 0 at dimension %d", i)
		}
		if count[i] > 1 && stride[i] < block[i] {
			return fmt.Errorf("hyperslab blocks overlap at dimension %d: stride=%d, block=%d", i, stride[i], block[i])
		}

		span, err := SafeMultiply(count[i]-1, stride[i])
		if err != nil {
			return fmt.Errorf("hyperslab stride overflow at dimension %d: %w", i, err)
		}
		end := start[i] + span + block[i] - 1
		if end < start[i] || end >= dims[i] {
			return fmt.Errorf("hyperslab selection exceeds dataset bounds at dimension %d: start=%d, count=%d, stride=%d, block=%d, dim_size=%d",
				i, start[i], count[i], stride[i], block[i], dims[i])
		}
	}

	return nil
}

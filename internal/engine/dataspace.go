package engine

import (
	"fmt"
	"slices"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/utils"
)

type selectionKind int

const (
	selectAll selectionKind = iota
	selectNone
	selectHyperslab
	selectPoints
)

// dataspace is an open dataspace ID: an extent plus a selection.
type dataspace struct {
	scalar bool
	dims   []uint64

	kind   selectionKind
	start  []uint64
	stride []uint64
	count  []uint64
	block  []uint64
	points []uint64 // numPoints*rank flat coordinates
}

func (s *dataspace) rank() int {
	return len(s.dims)
}

// extent returns the number of elements in the extent.
func (s *dataspace) extent() (uint64, error) {
	return utils.ElementCount(s.dims)
}

// selected returns the number of selected elements.
func (s *dataspace) selected() (uint64, error) {
	switch s.kind {
	case selectNone:
		return 0, nil
	case selectPoints:
		if s.rank() == 0 {
			return 0, nil
		}
		return uint64(len(s.points) / s.rank()), nil
	case selectHyperslab:
		total := uint64(1)
		for i := range s.count {
			per, err := utils.SafeMultiply(s.count[i], s.block[i])
			if err != nil {
				return 0, err
			}
			if total, err = utils.SafeMultiply(total, per); err != nil {
				return 0, err
			}
		}
		return total, nil
	default:
		return s.extent()
	}
}

// offsets returns the row-major linear index of every selected element in
// selection order: ascending for hyperslabs and the full extent, as given
// for point selections.
func (s *dataspace) offsets() ([]uint64, error) {
	n, err := s.selected()
	if err != nil {
		return nil, err
	}
	if _, err := utils.CheckedAllocSize(n, 8, utils.MaxTransferBytes); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, n)

	switch s.kind {
	case selectNone:
		return out, nil

	case selectAll:
		for i := range n {
			out = append(out, i)
		}
		return out, nil

	case selectPoints:
		rank := s.rank()
		for p := 0; p < len(s.points); p += rank {
			out = append(out, s.linear(s.points[p:p+rank]))
		}
		return out, nil
	}

	if n == 0 {
		return out, nil
	}

	// Hyperslab: odometer over (count, block) along every axis, last axis
	// fastest.
	rank := s.rank()
	blockIdx := make([]uint64, rank)
	within := make([]uint64, rank)
	coord := make([]uint64, rank)
	for {
		for d := range rank {
			coord[d] = s.start[d] + blockIdx[d]*s.stride[d] + within[d]
		}
		out = append(out, s.linear(coord))

		d := rank - 1
		for ; d >= 0; d-- {
			within[d]++
			if within[d] < s.block[d] {
				break
			}
			within[d] = 0
			blockIdx[d]++
			if blockIdx[d] < s.count[d] {
				break
			}
			blockIdx[d] = 0
		}
		if d < 0 {
			return out, nil
		}
	}
}

func (s *dataspace) linear(coord []uint64) uint64 {
	var idx uint64
	for d, c := range coord {
		idx = idx*s.dims[d] + c
	}
	return idx
}

// DataspaceCreateScalar creates a scalar dataspace.
func (e *Engine) DataspaceCreateScalar() (h5api.ID, error) {
	return e.register(&dataspace{scalar: true}), nil
}

// DataspaceCreateSimple creates a simple dataspace with everything
// selected.
func (e *Engine) DataspaceCreateSimple(dims []uint64) (h5api.ID, error) {
	if len(dims) == 0 || len(dims) > 32 {
		return h5api.Invalid, fmt.Errorf("%w: dataspace rank %d", h5api.ErrInvalidArgument, len(dims))
	}
	if _, err := utils.ElementCount(dims); err != nil {
		return h5api.Invalid, err
	}
	return e.register(&dataspace{dims: slices.Clone(dims)}), nil
}

// DataspaceDims returns the extent.
func (e *Engine) DataspaceDims(space h5api.ID) ([]uint64, error) {
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.dims), nil
}

// DataspaceSelectAll selects the whole extent.
func (e *Engine) DataspaceSelectAll(space h5api.ID) error {
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return err
	}
	s.kind = selectAll
	return nil
}

// DataspaceSelectNone clears the selection.
func (e *Engine) DataspaceSelectNone(space h5api.ID) error {
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return err
	}
	s.kind = selectNone
	return nil
}

// DataspaceSelectHyperslab replaces the selection with a hyperslab.
func (e *Engine) DataspaceSelectHyperslab(space h5api.ID, start, stride, count, block []uint64) error {
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return err
	}
	rank := s.rank()
	stride = orOnes(stride, rank)
	block = orOnes(block, rank)

	if err := utils.ValidateHyperslabBounds(start, count, stride, block, s.dims); err != nil {
		return fmt.Errorf("%w: %w", h5api.ErrInvalidArgument, err)
	}

	s.kind = selectHyperslab
	s.start = slices.Clone(start)
	s.stride = slices.Clone(stride)
	s.count = slices.Clone(count)
	s.block = slices.Clone(block)
	return nil
}

func orOnes(v []uint64, rank int) []uint64 {
	if v != nil {
		return v
	}
	ones := make([]uint64, rank)
	for i := range ones {
		ones[i] = 1
	}
	return ones
}

// DataspaceSelectElements replaces the selection with a list of points.
func (e *Engine) DataspaceSelectElements(space h5api.ID, numPoints int, coords []uint64) error {
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return err
	}
	rank := s.rank()
	if rank == 0 || numPoints < 0 || len(coords) != numPoints*rank {
		return fmt.Errorf("%w: %d coordinates for %d points of rank %d",
			h5api.ErrInvalidArgument, len(coords), numPoints, rank)
	}
	for i, c := range coords {
		if d := i % rank; c >= s.dims[d] {
			return fmt.Errorf("%w: point %d coordinate %d out of bounds (%d >= %d)",
				h5api.ErrInvalidArgument, i/rank, d, c, s.dims[d])
		}
	}

	s.kind = selectPoints
	s.points = slices.Clone(coords)
	return nil
}

// DataspaceSelectedCount returns the number of selected elements.
func (e *Engine) DataspaceSelectedCount(space h5api.ID) (uint64, error) {
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return 0, err
	}
	return s.selected()
}

// DataspaceClose closes a dataspace ID.
func (e *Engine) DataspaceClose(space h5api.ID) error {
	_, err := remove[*dataspace](e, space, "dataspace")
	return err
}

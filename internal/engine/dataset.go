package engine

import (
	"fmt"
	"slices"

	"github.com/scigolib/h5par/internal/core"
	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/metrics"
	"github.com/scigolib/h5par/internal/utils"
)

// DatasetCreate creates a zero-filled contiguous dataset.
func (e *Engine) DatasetCreate(loc h5api.ID, name string, dtype, space h5api.ID) (h5api.ID, error) {
	dt, err := e.datatype(dtype)
	if err != nil {
		return h5api.Invalid, err
	}
	if dt.Class == core.DatatypeVarLen {
		return h5api.Invalid, fmt.Errorf("%w: variable-length datasets", h5api.ErrUnsupported)
	}
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return h5api.Invalid, err
	}
	extent := core.Dataspace{Scalar: s.scalar, Dims: slices.Clone(s.dims)}

	ref, err := e.link(loc, name, "dataset_create", func() (*core.Object, error) {
		return core.NewDataset(dt.Clone(), extent)
	})
	if err != nil {
		return h5api.Invalid, err
	}
	return e.register(ref), nil
}

// DatasetOpen opens an existing dataset.
func (e *Engine) DatasetOpen(loc h5api.ID, name string) (h5api.ID, error) {
	return e.openCollective(loc, name, "dataset_open", core.KindDataset)
}

func (e *Engine) dataset(id h5api.ID) (*objectRef, error) {
	ref, err := lookup[*objectRef](e, id, "dataset")
	if err != nil {
		return nil, err
	}
	if ref.obj.Kind != core.KindDataset {
		return nil, fmt.Errorf("%w: %d is a group, not a dataset", h5api.ErrInvalidHandle, id)
	}
	return ref, nil
}

// DatasetSpace returns a copy of the dataset extent with everything
// selected.
func (e *Engine) DatasetSpace(dataset h5api.ID) (h5api.ID, error) {
	ref, err := e.dataset(dataset)
	if err != nil {
		return h5api.Invalid, err
	}
	return e.register(&dataspace{scalar: ref.obj.Space.Scalar, dims: slices.Clone(ref.obj.Space.Dims)}), nil
}

// DatasetType returns a copy of the dataset datatype.
func (e *Engine) DatasetType(dataset h5api.ID) (h5api.ID, error) {
	ref, err := e.dataset(dataset)
	if err != nil {
		return h5api.Invalid, err
	}
	return e.register(&datatype{dt: ref.obj.Type.Clone()}), nil
}

// transfer describes one resolved data transfer.
type transfer struct {
	ref        *objectRef
	elemSize   int
	fileOffset []uint64
	memOffset  []uint64
	collective bool
}

// prepareTransfer resolves the selections of a read or write. Memory and
// file selections must pick the same number of elements; the memory
// datatype must match the dataset's, no conversion is performed.
func (e *Engine) prepareTransfer(dataset, memType, memSpace, fileSpace, dxpl h5api.ID, bufLen int) (*transfer, error) {
	ref, err := e.dataset(dataset)
	if err != nil {
		return nil, err
	}
	t := &transfer{ref: ref, elemSize: int(ref.obj.Type.Size)}

	if dxpl != h5api.Default {
		p, err := lookup[*plist](e, dxpl, "property list")
		if err != nil {
			return t, err
		}
		if p.class != h5api.DatasetXfer {
			return t, fmt.Errorf("%w: property list %d is not a transfer list", h5api.ErrInvalidArgument, dxpl)
		}
		t.collective = p.collective && ref.comm != nil
	}

	mt, err := e.datatype(memType)
	if err != nil {
		return t, err
	}
	if !mt.Equal(ref.obj.Type) {
		return t, fmt.Errorf("%w: memory type %s, dataset %s has %s",
			h5api.ErrTypeMismatch, mt, ref.path, ref.obj.Type)
	}

	fspace := &dataspace{scalar: ref.obj.Space.Scalar, dims: ref.obj.Space.Dims}
	if fileSpace != h5api.All {
		if fspace, err = lookup[*dataspace](e, fileSpace, "dataspace"); err != nil {
			return t, err
		}
		if !slices.Equal(fspace.dims, ref.obj.Space.Dims) {
			return t, fmt.Errorf("%w: file dataspace %v does not match dataset extent %v",
				h5api.ErrInvalidArgument, fspace.dims, ref.obj.Space.Dims)
		}
	}
	if t.fileOffset, err = fspace.offsets(); err != nil {
		return t, err
	}

	if memSpace == h5api.All {
		// Memory holds exactly the selected elements, densely packed.
		t.memOffset = make([]uint64, len(t.fileOffset))
		for i := range t.memOffset {
			t.memOffset[i] = uint64(i)
		}
	} else {
		mspace, err := lookup[*dataspace](e, memSpace, "dataspace")
		if err != nil {
			return t, err
		}
		if t.memOffset, err = mspace.offsets(); err != nil {
			return t, err
		}
	}

	if len(t.memOffset) != len(t.fileOffset) {
		return t, fmt.Errorf("%w: memory selects %d elements, file selects %d",
			h5api.ErrInvalidArgument, len(t.memOffset), len(t.fileOffset))
	}
	if len(t.memOffset) > 0 {
		need, err := utils.SafeMultiply(slices.Max(t.memOffset)+1, uint64(t.elemSize))
		if err != nil {
			return t, err
		}
		if uint64(bufLen) < need {
			return t, fmt.Errorf("%w: buffer holds %d bytes, selection needs %d",
				h5api.ErrInvalidArgument, bufLen, need)
		}
	}
	return t, nil
}

// finish completes a transfer. A collective transfer waits for every
// process of the group, including after a local failure.
func (t *transfer) finish(op string, err error) error {
	if t != nil && t.collective {
		metrics.CollectiveOps.WithLabelValues(op).Inc()
		t.ref.comm.Barrier()
	}
	return err
}

// DatasetWrite writes the memory selection of buf to the file selection.
func (e *Engine) DatasetWrite(dataset, memType, memSpace, fileSpace, dxpl h5api.ID, buf []byte) error {
	t, err := e.prepareTransfer(dataset, memType, memSpace, fileSpace, dxpl, len(buf))
	if err != nil {
		return t.finish("dataset_write", err)
	}

	err = t.ref.img.update(func(*core.Object) error {
		data := t.ref.obj.Data
		sz := uint64(t.elemSize)
		for i, fo := range t.fileOffset {
			mo := t.memOffset[i]
			copy(data[fo*sz:(fo+1)*sz], buf[mo*sz:(mo+1)*sz])
		}
		return nil
	})
	metrics.BytesTransferred.WithLabelValues("write").Add(float64(len(t.fileOffset) * t.elemSize))
	return t.finish("dataset_write", err)
}

// DatasetRead reads the file selection into the memory selection of buf.
func (e *Engine) DatasetRead(dataset, memType, memSpace, fileSpace, dxpl h5api.ID, buf []byte) error {
	t, err := e.prepareTransfer(dataset, memType, memSpace, fileSpace, dxpl, len(buf))
	if err != nil {
		return t.finish("dataset_read", err)
	}

	err = t.ref.img.update(func(*core.Object) error {
		data := t.ref.obj.Data
		sz := uint64(t.elemSize)
		for i, fo := range t.fileOffset {
			mo := t.memOffset[i]
			copy(buf[mo*sz:(mo+1)*sz], data[fo*sz:(fo+1)*sz])
		}
		return nil
	})
	metrics.BytesTransferred.WithLabelValues("read").Add(float64(len(t.fileOffset) * t.elemSize))
	return t.finish("dataset_read", err)
}

// DatasetClose closes a dataset ID.
func (e *Engine) DatasetClose(dataset h5api.ID) error {
	return e.closeObject(dataset, core.KindDataset)
}

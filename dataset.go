package h5par

import (
	"errors"
	"fmt"
	"slices"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/handle"
	"github.com/scigolib/h5par/internal/utils"
)

// Dataset is a typed, fixed-shape array below a group.
//
// On a distributed file every write and read is collective. A process
// without data for a round must call WriteNone so that all processes
// issue the same transfers; selection writes with zero elements do this
// on their own.
type Dataset[T Element] struct {
	node
	dtype *handle.Handle
	space *handle.Handle
	dims  []uint64
	total uint64
}

// Hyperslab is a regular selection: along axis i it picks Count[i] blocks
// of Block[i] elements, starting at Offset[i], Stride[i] elements apart.
type Hyperslab struct {
	Offset []uint64
	Count  []uint64
	Stride []uint64 // nil: 1 along every axis
	Block  []uint64 // nil: 1 along every axis
}

// CreateDataset creates the dataset name below g with the given shape.
// The contents start zero-filled.
func CreateDataset[T Element](g *Group, name string, dims []uint64) (*Dataset[T], error) {
	const op = "create dataset"
	if len(dims) == 0 {
		return nil, invariantf(op, name, "rank must be at least 1")
	}
	total, err := utils.ElementCount(dims)
	if err != nil {
		return nil, utils.WrapError(op+" "+name, err)
	}

	dtype, err := descriptor(g.rt, g.logger, elementTag[T]())
	if err != nil {
		return nil, utils.WrapError(op+" "+name, err)
	}
	d := &Dataset[T]{dtype: dtype, dims: slices.Clone(dims), total: total}

	sid, err := g.rt.DataspaceCreateSimple(dims)
	if err != nil {
		return nil, errors.Join(utils.WrapError(op+" "+name, err), d.release())
	}
	did, err := g.rt.DatasetCreate(g.h.ID(), name, dtype.ID(), sid)
	if err != nil {
		return nil, errors.Join(utils.WrapError(op+" "+name, err), g.rt.DataspaceClose(sid), d.release())
	}
	if err := d.attach(g, name, did, sid); err != nil {
		return nil, utils.WrapError(op+" "+name, err)
	}
	g.logger.Debug("dataset created",
		"dataset", d.name,
		"type", elementTag[T]().String(),
		"dims", d.dims)
	return d, nil
}

// OpenDataset opens the existing dataset name below g. The stored element
// type must match T and the stored shape must equal dims; nil dims accept
// the stored shape.
func OpenDataset[T Element](g *Group, name string, dims []uint64) (*Dataset[T], error) {
	const op = "open dataset"
	dtype, err := descriptor(g.rt, g.logger, elementTag[T]())
	if err != nil {
		return nil, utils.WrapError(op+" "+name, err)
	}
	d := &Dataset[T]{dtype: dtype}

	did, err := g.rt.DatasetOpen(g.h.ID(), name)
	if err != nil {
		return nil, errors.Join(utils.WrapError(op+" "+name, err), d.release())
	}
	sid, err := g.rt.DatasetSpace(did)
	if err != nil {
		return nil, errors.Join(utils.WrapError(op+" "+name, err), g.rt.DatasetClose(did), d.release())
	}
	if err := d.attach(g, name, did, sid); err != nil {
		return nil, utils.WrapError(op+" "+name, err)
	}

	if err := d.checkStored(op, dims); err != nil {
		return nil, errors.Join(err, d.release())
	}
	return d, nil
}

// attach takes ownership of the dataset and dataspace IDs. The dataspace
// handle holds the dataset handle, so the dataspace is always closed
// first. On failure everything is released.
func (d *Dataset[T]) attach(g *Group, name string, did, sid h5api.ID) error {
	h, err := g.child(did, handle.KindDataset, g.rt.DatasetClose)
	if err != nil {
		return errors.Join(err, g.rt.DataspaceClose(sid), d.release())
	}
	d.node = g.derive(g.childName(name), h)

	d.space, err = handle.New(sid, handle.KindDataspace, g.rt.DataspaceClose,
		handle.WithParent(h), handle.WithLogger(g.logger))
	if err != nil {
		return errors.Join(err, g.rt.DataspaceClose(sid), d.release())
	}
	return nil
}

// checkStored compares the stored type and shape with T and dims.
func (d *Dataset[T]) checkStored(op string, dims []uint64) error {
	tid, err := d.rt.DatasetType(d.h.ID())
	if err != nil {
		return utils.WrapError(op+" "+d.name, err)
	}
	same, err := d.rt.TypeEqual(tid, d.dtype.ID())
	if err = errors.Join(err, d.rt.TypeClose(tid)); err != nil {
		return utils.WrapError(op+" "+d.name, err)
	}
	if !same {
		return utils.WrapError(op+" "+d.name,
			fmt.Errorf("%w: stored element type is not %s", ErrTypeMismatch, elementTag[T]()))
	}

	stored, err := d.rt.DataspaceDims(d.space.ID())
	if err != nil {
		return utils.WrapError(op+" "+d.name, err)
	}
	if dims != nil && !slices.Equal(dims, stored) {
		return invariantf(op, d.name, "shape %v does not match stored shape %v", dims, stored)
	}
	if d.total, err = utils.ElementCount(stored); err != nil {
		return utils.WrapError(op+" "+d.name, err)
	}
	d.dims = stored
	return nil
}

// Dims returns the dataset shape.
func (d *Dataset[T]) Dims() []uint64 {
	return slices.Clone(d.dims)
}

// Len returns the total number of elements.
func (d *Dataset[T]) Len() uint64 {
	return d.total
}

// Close releases the dataspace, then the dataset, then the element type.
func (d *Dataset[T]) Close() error {
	return d.release()
}

func (d *Dataset[T]) release() error {
	var err error
	if d.space != nil {
		err = d.space.Release()
	}
	if d.h != nil {
		err = errors.Join(err, d.h.Release())
	}
	if d.dtype != nil {
		err = errors.Join(err, d.dtype.Release())
	}
	return err
}

func closeAfter[T Element](d *Dataset[T], err error) error {
	return errors.Join(err, d.Close())
}

// transferPlan describes both sides of one transfer.
type transferPlan struct {
	op      string
	memDims []uint64 // nil: memory is exactly the selected elements
	none    bool     // select nothing on either side
	file    func(space h5api.ID) error
}

// transfer moves buf between memory and the file selection. Temporary
// dataspace and transfer list handles are released before returning.
func (d *Dataset[T]) transfer(s transferPlan, buf []byte, write bool) (err error) {
	defer func() { err = utils.WrapError(s.op+" "+d.name, err) }()
	rt := d.rt

	mem := h5api.All
	if s.memDims != nil {
		id, cerr := rt.DataspaceCreateSimple(s.memDims)
		if cerr != nil {
			return cerr
		}
		ms, herr := handle.New(id, handle.KindDataspace, rt.DataspaceClose, handle.WithLogger(d.logger))
		if herr != nil {
			return errors.Join(herr, rt.DataspaceClose(id))
		}
		defer func() { err = errors.Join(err, ms.Release()) }()
		if s.none {
			if err = rt.DataspaceSelectNone(id); err != nil {
				return err
			}
		}
		mem = id
	}

	file := h5api.All
	if s.none || s.file != nil {
		// The dataset dataspace outlives this call; leave it selecting
		// the whole extent again.
		file = d.space.ID()
		defer func() { err = errors.Join(err, rt.DataspaceSelectAll(file)) }()
	}
	switch {
	case s.none:
		err = rt.DataspaceSelectNone(file)
	case s.file != nil:
		err = s.file(file)
	}
	if err != nil {
		return err
	}

	dxpl, releaseDxpl, err := d.transferList()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, releaseDxpl()) }()

	if write {
		return rt.DatasetWrite(d.h.ID(), d.dtype.ID(), mem, file, dxpl, buf)
	}
	return rt.DatasetRead(d.h.ID(), d.dtype.ID(), mem, file, dxpl, buf)
}

// encode serializes data after checking the transfer size limit.
func (d *Dataset[T]) encode(op string, data []T) ([]byte, error) {
	if _, err := utils.CheckedAllocSize(uint64(len(data)), uint64(elementTag[T]().Size()), utils.MaxTransferBytes); err != nil {
		return nil, utils.WrapError(op+" "+d.name, err)
	}
	return encodeElements(data), nil
}

// Write replaces the whole dataset. data must hold exactly Len elements in
// row-major order.
func (d *Dataset[T]) Write(data []T) error {
	const op = "write"
	if uint64(len(data)) != d.total {
		return invariantf(op, d.name, "buffer holds %d elements, dataset holds %d", len(data), d.total)
	}
	buf, err := d.encode(op, data)
	if err != nil {
		return err
	}
	return d.transfer(transferPlan{op: op}, buf, true)
}

// WriteMatrix replaces the whole dataset with the row-major contents of
// m. rows*cols must equal Len.
func (d *Dataset[T]) WriteMatrix(m Matrix[T]) error {
	const op = "write matrix"
	r, c := m.Dims()
	data := m.RowMajor()
	if uint64(r)*uint64(c) != d.total || len(data) != r*c {
		return invariantf(op, d.name, "%dx%d matrix for a dataset of %d elements", r, c, d.total)
	}
	buf, err := d.encode(op, data)
	if err != nil {
		return err
	}
	return d.transfer(transferPlan{op: op}, buf, true)
}

// WriteSelection writes data[i] to the element at coords[i*rank :
// (i+1)*rank]. An empty data slice takes part in the transfer without
// writing.
func (d *Dataset[T]) WriteSelection(data []T, coords []uint64) error {
	const op = "write selection"
	rank := len(d.dims)
	if len(coords) != rank*len(data) {
		return invariantf(op, d.name, "%d coordinates for %d elements of rank %d", len(coords), len(data), rank)
	}
	for i, c := range coords {
		if axis := i % rank; c >= d.dims[axis] {
			return invariantf(op, d.name, "point %d coordinate %d out of bounds (%d >= %d)", i/rank, axis, c, d.dims[axis])
		}
	}
	if len(data) == 0 {
		return d.WriteNone()
	}
	buf, err := d.encode(op, data)
	if err != nil {
		return err
	}

	n := len(data)
	return d.transfer(transferPlan{
		op:      op,
		memDims: []uint64{uint64(n)},
		file: func(space h5api.ID) error {
			return d.rt.DataspaceSelectElements(space, n, coords)
		},
	}, buf, true)
}

// WriteHyperslab writes data to the block of count elements starting at
// offset. The product of count must equal len(data); zero takes part in
// the transfer without writing.
//
// Example, on a rank-1 dataset of length 10:
//
//	err := d.WriteHyperslab([]float64{1, 2, 3}, []uint64{2}, []uint64{3}) // elements 2, 3, 4
func (d *Dataset[T]) WriteHyperslab(data []T, offset, count []uint64) error {
	return d.writeSlab("write hyperslab", data, nil, Hyperslab{Offset: offset, Count: count})
}

// WriteStridedHyperslab writes data, in row-major selection order, to a
// strided or blocked hyperslab.
func (d *Dataset[T]) WriteStridedHyperslab(data []T, h Hyperslab) error {
	return d.writeSlab("write strided hyperslab", data, nil, h)
}

// WriteMatrixHyperslab writes m to the block of count elements starting
// at offset, using a rows x cols memory layout.
func (d *Dataset[T]) WriteMatrixHyperslab(m Matrix[T], offset, count []uint64) error {
	r, c := m.Dims()
	data := m.RowMajor()
	if len(data) != r*c {
		return invariantf("write matrix hyperslab", d.name, "%dx%d matrix holds %d elements", r, c, len(data))
	}
	return d.writeSlab("write matrix hyperslab", data, []uint64{uint64(r), uint64(c)}, Hyperslab{Offset: offset, Count: count})
}

func (d *Dataset[T]) writeSlab(op string, data []T, memDims []uint64, h Hyperslab) error {
	n, err := d.checkSlab(op, h)
	if err != nil {
		return err
	}
	if n != uint64(len(data)) {
		return invariantf(op, d.name, "selection holds %d elements, buffer holds %d", n, len(data))
	}
	if n == 0 {
		return d.WriteNone()
	}
	buf, err := d.encode(op, data)
	if err != nil {
		return err
	}
	if memDims == nil {
		memDims = []uint64{n}
	}
	return d.transfer(transferPlan{op: op, memDims: memDims, file: d.selectSlab(h)}, buf, true)
}

// checkSlab validates the ranks and bounds of h and returns its element
// count. Every rank rejects a bad slab before any collective call.
func (d *Dataset[T]) checkSlab(op string, h Hyperslab) (uint64, error) {
	rank := len(d.dims)
	if len(h.Offset) != rank || len(h.Count) != rank {
		return 0, invariantf(op, d.name, "offset rank %d and count rank %d, dataset rank %d", len(h.Offset), len(h.Count), rank)
	}
	if (h.Stride != nil && len(h.Stride) != rank) || (h.Block != nil && len(h.Block) != rank) {
		return 0, invariantf(op, d.name, "stride and block must have rank %d", rank)
	}

	n := uint64(1)
	for i, c := range h.Count {
		per := c
		var err error
		if h.Block != nil {
			per, err = utils.SafeMultiply(c, h.Block[i])
		}
		if err == nil {
			n, err = utils.SafeMultiply(n, per)
		}
		if err != nil {
			return 0, utils.WrapError(op+" "+d.name, err)
		}
	}
	if err := utils.ValidateHyperslabBounds(h.Offset, h.Count, orOnes(h.Stride, rank), orOnes(h.Block, rank), d.dims); err != nil {
		return 0, invariantf(op, d.name, "%v", err)
	}
	return n, nil
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

func (d *Dataset[T]) selectSlab(h Hyperslab) func(space h5api.ID) error {
	return func(space h5api.ID) error {
		return d.rt.DataspaceSelectHyperslab(space, h.Offset, h.Stride, h.Count, h.Block)
	}
}

// WriteNone takes part in a transfer without writing anything. On a
// distributed file every process must issue each transfer; a process
// with no data for a round calls WriteNone.
func (d *Dataset[T]) WriteNone() error {
	return d.transfer(transferPlan{op: "write none", memDims: []uint64{1}, none: true}, nil, true)
}

// Read returns the whole dataset in row-major order.
func (d *Dataset[T]) Read() ([]T, error) {
	const op = "read"
	size, err := utils.CheckedAllocSize(d.total, uint64(elementTag[T]().Size()), utils.MaxTransferBytes)
	if err != nil {
		return nil, utils.WrapError(op+" "+d.name, err)
	}
	buf := make([]byte, size)
	if err := d.transfer(transferPlan{op: op}, buf, false); err != nil {
		return nil, err
	}
	out := make([]T, d.total)
	decodeElements(buf, out)
	return out, nil
}

// ReadHyperslab returns the block of count elements starting at offset.
// An empty block takes part in the transfer without reading.
func (d *Dataset[T]) ReadHyperslab(offset, count []uint64) ([]T, error) {
	const op = "read hyperslab"
	h := Hyperslab{Offset: offset, Count: count}
	n, err := d.checkSlab(op, h)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := d.transfer(transferPlan{op: op, memDims: []uint64{1}, none: true}, nil, false); err != nil {
			return nil, err
		}
		return []T{}, nil
	}

	size, err := utils.CheckedAllocSize(n, uint64(elementTag[T]().Size()), utils.MaxTransferBytes)
	if err != nil {
		return nil, utils.WrapError(op+" "+d.name, err)
	}
	buf := make([]byte, size)
	if err := d.transfer(transferPlan{op: op, memDims: []uint64{n}, file: d.selectSlab(h)}, buf, false); err != nil {
		return nil, err
	}
	out := make([]T, n)
	decodeElements(buf, out)
	return out, nil
}

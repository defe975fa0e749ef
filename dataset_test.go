package h5par

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/scigolib/h5par/comm"
	"github.com/scigolib/h5par/internal/engine"
	"github.com/scigolib/h5par/internal/h5api"
	h5test "github.com/scigolib/h5par/internal/testing"
)

func newTestFile(t *testing.T, opts ...Option) *File {
	t.Helper()
	f, err := Create(filepath.Join(t.TempDir(), "test.h5"), CreateTruncate, opts...)
	require.NoError(t, err)
	return f
}

func TestDataset_WriteRejectsWrongLength(t *testing.T) {
	f := newTestFile(t)
	d, err := CreateDataset[float64](&f.Group, "x", []uint64{2, 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), d.Len())

	tests := []struct {
		name string
		n    int
	}{
		{"N-1", 9},
		{"N+1", 11},
		{"empty", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Write(make([]float64, tt.n))
			require.ErrorIs(t, err, ErrInvariant)
			var inv *InvariantError
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, "/x", inv.Object)
		})
	}

	require.NoError(t, d.Write(make([]float64, 10)))
	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestDataset_InvariantsIssueNoRuntimeCalls(t *testing.T) {
	rec := h5test.NewRecorder(engine.New())
	f := newTestFile(t, withRuntime(rec))
	d, err := CreateDataset[int32](&f.Group, "x", []uint64{4})
	require.NoError(t, err)

	before := len(rec.Calls())
	require.ErrorIs(t, d.Write([]int32{1, 2, 3}), ErrInvariant)
	require.ErrorIs(t, d.WriteSelection([]int32{1, 2}, []uint64{0}), ErrInvariant)
	require.ErrorIs(t, d.WriteHyperslab([]int32{1}, []uint64{0, 0}, []uint64{1, 1}), ErrInvariant)
	require.ErrorIs(t, d.WriteHyperslab([]int32{1, 2}, []uint64{0}, []uint64{3}), ErrInvariant)
	assert.Len(t, rec.Calls(), before)

	// Out-of-bounds selections fail on the calling rank alone, before any
	// collective transfer starts.
	require.ErrorIs(t, d.WriteHyperslab([]int32{1, 2}, []uint64{3}, []uint64{2}), ErrInvariant)
	require.ErrorIs(t, d.WriteSelection([]int32{1}, []uint64{4}), ErrInvariant)
	require.ErrorIs(t, d.WriteStridedHyperslab([]int32{1, 2}, Hyperslab{
		Offset: []uint64{0}, Count: []uint64{2}, Stride: []uint64{4},
	}), ErrInvariant)
	require.ErrorIs(t, d.WriteStridedHyperslab([]int32{1, 2, 3, 4}, Hyperslab{
		Offset: []uint64{0}, Count: []uint64{2}, Stride: []uint64{1}, Block: []uint64{2},
	}), ErrInvariant)
	_, err = d.ReadHyperslab([]uint64{math.MaxUint64}, []uint64{2})
	require.ErrorIs(t, err, ErrInvariant)
	assert.Len(t, rec.Calls(), before)

	// An empty slab just past the end is still a valid WriteNone.
	require.NoError(t, d.WriteHyperslab(nil, []uint64{4}, []uint64{0}))

	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestDataset_WriteHyperslab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slab.h5")
	f, err := Create(path, CreateTruncate)
	require.NoError(t, err)

	prior := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, WriteDataset(&f.Group, "x", prior))

	d, err := OpenDataset[float64](&f.Group, "x", []uint64{10})
	require.NoError(t, err)
	require.NoError(t, d.WriteHyperslab([]float64{-2, -3, -4}, []uint64{2}, []uint64{3}))
	require.NoError(t, d.Close())
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	d, err = OpenDataset[float64](&f.Group, "x", nil)
	require.NoError(t, err)
	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, -2, -3, -4, 5, 6, 7, 8, 9}, got)

	part, err := d.ReadHyperslab([]uint64{1}, []uint64{3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2, -3}, part)

	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestDataset_WriteSelection(t *testing.T) {
	f := newTestFile(t)
	d, err := CreateDataset[int32](&f.Group, "grid", []uint64{3, 3})
	require.NoError(t, err)

	require.NoError(t, d.WriteSelection([]int32{7, 8, 9}, []uint64{0, 0, 1, 1, 2, 2}))
	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 0, 0, 0, 8, 0, 0, 0, 9}, got)

	err = d.WriteSelection([]int32{1}, []uint64{3, 0})
	require.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestDataset_StridedHyperslab(t *testing.T) {
	f := newTestFile(t)
	d, err := CreateDataset[uint32](&f.Group, "s", []uint64{8})
	require.NoError(t, err)

	err = d.WriteStridedHyperslab([]uint32{1, 2, 3, 4}, Hyperslab{
		Offset: []uint64{0},
		Count:  []uint64{2},
		Stride: []uint64{4},
		Block:  []uint64{2},
	})
	require.NoError(t, err)
	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 0, 0, 3, 4, 0, 0}, got)

	err = d.WriteStridedHyperslab([]uint32{1, 2, 3}, Hyperslab{Offset: []uint64{0}, Count: []uint64{2}, Block: []uint64{2}})
	require.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestDataset_Matrices(t *testing.T) {
	f := newTestFile(t)

	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, WriteMatrixDataset(&f.Group, "m", FromDense(m)))

	d, err := OpenDataset[float64](&f.Group, "m", []uint64{2, 3})
	require.NoError(t, err)
	dense, err := ReadDense(d)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, dense))

	// 2x2 block into the top-right corner of a 3x4 grid.
	g, err := CreateDataset[float64](&f.Group, "grid", []uint64{3, 4})
	require.NoError(t, err)
	block, err := NewMatrix(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, g.WriteMatrixHyperslab(block, []uint64{0, 2}, []uint64{2, 2}))
	got, err := g.Read()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 2, 0, 0, 3, 4, 0, 0, 0, 0}, got)

	require.ErrorIs(t, g.WriteMatrix(block), ErrInvariant)

	sub := m.Slice(0, 2, 1, 3).(*mat.Dense)
	require.NoError(t, g.WriteMatrixHyperslab(FromDense(sub), []uint64{1, 0}, []uint64{2, 2}))
	got, err = g.ReadHyperslab([]uint64{1, 0}, []uint64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 5, 6}, got)

	c := mat.NewCDense(1, 2, []complex128{1 + 1i, 2 - 2i})
	require.NoError(t, WriteMatrixDataset(&f.Group, "c", FromCDense(c)))
	cd, err := OpenDataset[complex128](&f.Group, "c", []uint64{1, 2})
	require.NoError(t, err)
	cv, err := cd.Read()
	require.NoError(t, err)
	assert.Equal(t, []complex128{1 + 1i, 2 - 2i}, cv)

	_, err = NewMatrix(2, 2, []float64{1})
	require.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, cd.Close())
	require.NoError(t, g.Close())
	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestDataset_EveryElementType(t *testing.T) {
	f := newTestFile(t)
	g := &f.Group

	require.NoError(t, WriteDataset(g, "f32", []float32{1.5, -2}))
	require.NoError(t, WriteDataset(g, "f80", []LongDouble{1e-300, 3}))
	require.NoError(t, WriteDataset(g, "c64", []complex64{1 + 2i}))
	require.NoError(t, WriteDataset(g, "c160", []ComplexLongDouble{ComplexLongDouble(complex(-1, 0.5))}))

	checkDataset(t, g, "f32", []float32{1.5, -2})
	checkDataset(t, g, "f80", []LongDouble{1e-300, 3})
	checkDataset(t, g, "c64", []complex64{1 + 2i})
	checkDataset(t, g, "c160", []ComplexLongDouble{ComplexLongDouble(complex(-1, 0.5))})

	names, err := g.Children()
	require.NoError(t, err)
	assert.Equal(t, []string{"f32", "f80", "c64", "c160"}, names)
	require.NoError(t, f.Close())
}

func checkDataset[T Element](t *testing.T, g *Group, name string, want []T) {
	t.Helper()
	d, err := OpenDataset[T](g, name, []uint64{uint64(len(want))})
	require.NoError(t, err)
	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, d.Close())
}

func TestOpenDataset_Mismatch(t *testing.T) {
	f := newTestFile(t)
	require.NoError(t, WriteDataset(&f.Group, "x", []int32{1, 2, 3}))

	_, err := OpenDataset[int32](&f.Group, "x", []uint64{4})
	require.ErrorIs(t, err, ErrInvariant)
	_, err = OpenDataset[float32](&f.Group, "x", []uint64{3})
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = OpenDataset[int32](&f.Group, "nope", []uint64{3})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = CreateDataset[int32](&f.Group, "x", []uint64{3})
	require.ErrorIs(t, err, ErrExists)
	_, err = CreateDataset[int32](&f.Group, "scalar", nil)
	require.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, f.Close())
}

func TestDataset_CloseReleasesDataspaceFirst(t *testing.T) {
	rec := h5test.NewRecorder(engine.New())
	f := newTestFile(t, withRuntime(rec))

	d, err := CreateDataset[complex128](&f.Group, "z", []uint64{2})
	require.NoError(t, err)
	before := len(rec.Closed())
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	var ops []string
	for _, c := range rec.Closed()[before:] {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"DataspaceClose", "DatasetClose", "TypeClose"}, ops)

	// The file outlives its children and closes last.
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d2, err := CreateDataset[float64](g, "v", []uint64{1})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, g.Close())
	before = len(rec.Closed())
	require.NoError(t, d2.Close())

	ops = nil
	for _, c := range rec.Closed()[before:] {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"DataspaceClose", "DatasetClose", "GroupClose", "FileClose"}, ops)
}

func TestDataset_TransferListPerDistributedWrite(t *testing.T) {
	rec := h5test.NewRecorder(engine.New())
	f := newTestFile(t, withRuntime(rec), WithCommunicator(comm.Self()))
	require.True(t, f.Distributed())
	// The file access list is released as soon as the file is created.
	assert.Equal(t, 1, rec.Count("PropertyCreate"))
	assert.Equal(t, 1, rec.Count("PropertyClose"))

	d, err := CreateDataset[float64](&f.Group, "x", []uint64{4})
	require.NoError(t, err)
	require.NoError(t, d.Write([]float64{1, 2, 3, 4}))
	require.NoError(t, d.WriteHyperslab([]float64{9}, []uint64{0}, []uint64{1}))
	require.NoError(t, d.WriteNone())

	assert.Equal(t, 4, rec.Count("PropertyCreate"))
	assert.Equal(t, 3, rec.Count("PropertySetCollective"))
	assert.Equal(t, 4, rec.Count("PropertyClose"))

	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestDataset_LocalWriteUsesDefaultTransfer(t *testing.T) {
	rec := h5test.NewRecorder(engine.New())
	f := newTestFile(t, withRuntime(rec))
	assert.False(t, f.Distributed())

	require.NoError(t, WriteDataset(&f.Group, "x", []float64{1, 2}))
	assert.Zero(t, rec.Count("PropertyCreate"))
	require.NoError(t, f.Close())
}

func TestDataset_EmptySelectionWritesNone(t *testing.T) {
	rec := h5test.NewRecorder(engine.New())
	f := newTestFile(t, withRuntime(rec))
	d, err := CreateDataset[float64](&f.Group, "x", []uint64{4})
	require.NoError(t, err)

	require.NoError(t, d.WriteHyperslab(nil, []uint64{1}, []uint64{0}))
	require.NoError(t, d.WriteSelection(nil, nil))
	assert.Equal(t, 2, rec.Count("DatasetWrite"))
	assert.Equal(t, 4, rec.Count("DataspaceSelectNone"))
	assert.Zero(t, rec.Count("DataspaceSelectHyperslab"))

	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

func TestGroup_Stat(t *testing.T) {
	f := newTestFile(t)
	g, err := f.CreateGroup("fields")
	require.NoError(t, err)
	require.NoError(t, WriteDataset(g, "rho", []float64{1, 2, 3}))
	require.NoError(t, WriteDataset(g, "psi", []ComplexLongDouble{1}))
	nested, err := g.CreateGroup("nested")
	require.NoError(t, err)
	require.NoError(t, nested.Close())

	info, err := g.Stat("rho")
	require.NoError(t, err)
	assert.Equal(t, ChildInfo{Name: "rho", Dims: []uint64{3}, Type: TagFloat64, Known: true}, info)

	info, err = g.Stat("psi")
	require.NoError(t, err)
	assert.Equal(t, TagComplexLongDouble, info.Type)
	assert.True(t, info.Known)

	info, err = g.Stat("nested")
	require.NoError(t, err)
	assert.True(t, info.Group)

	_, err = g.Stat("missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, g.Close())
	require.NoError(t, f.Close())
}

func TestGroup_StatReportsCloseFailures(t *testing.T) {
	e := engine.New()
	rec := h5test.NewRecorder(e)
	f := newTestFile(t, withRuntime(rec))
	require.NoError(t, WriteDataset(&f.Group, "rho", []float64{1, 2}))

	lastClosed := func(op string) h5api.ID {
		calls := rec.Calls()
		for i := len(calls) - 1; i >= 0; i-- {
			if calls[i].Op == op {
				return calls[i].ID
			}
		}
		t.Fatalf("no %s call recorded", op)
		return h5api.Invalid
	}

	closeErr := errors.New("close failed")
	for _, op := range []string{"DatasetClose", "TypeClose"} {
		t.Run(op, func(t *testing.T) {
			rec.FailNext(op, closeErr)
			info, err := f.Stat("rho")
			require.ErrorIs(t, err, closeErr)
			assert.Equal(t, TagFloat64, info.Type)

			// The injected failure skipped the real close.
			id := lastClosed(op)
			if op == "DatasetClose" {
				require.NoError(t, e.DatasetClose(id))
			} else {
				require.NoError(t, e.TypeClose(id))
			}
		})
	}

	require.NoError(t, f.Close())
	assert.Zero(t, e.OpenHandles())
}

func TestDataset_OversizedReadReleasesEverything(t *testing.T) {
	e := engine.New()
	rt := &forgedExtent{Runtime: e}
	f := newTestFile(t, withRuntime(rt))
	require.NoError(t, WriteDataset(&f.Group, "x", []float64{1, 2, 3, 4}))
	before := e.OpenHandles()

	rt.dims = []uint64{1 << 40}
	d, err := OpenDataset[float64](&f.Group, "x", nil)
	rt.dims = nil
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), d.Len())
	held := e.OpenHandles()

	_, err = d.Read()
	require.ErrorIs(t, err, ErrResourceExhausted)
	_, err = d.ReadHyperslab([]uint64{0}, []uint64{1 << 36})
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, held, e.OpenHandles())

	require.NoError(t, d.Close())
	assert.Equal(t, before, e.OpenHandles())
	require.NoError(t, f.Close())
	assert.Zero(t, e.OpenHandles())
}

func TestDataset_SelectionDoesNotOutliveTransfer(t *testing.T) {
	f := newTestFile(t)
	d, err := CreateDataset[int32](&f.Group, "x", []uint64{6})
	require.NoError(t, err)

	selected := func() uint64 {
		n, err := d.rt.DataspaceSelectedCount(d.space.ID())
		require.NoError(t, err)
		return n
	}
	require.NoError(t, d.WriteHyperslab([]int32{1, 2}, []uint64{1}, []uint64{2}))
	assert.Equal(t, uint64(6), selected())
	require.NoError(t, d.WriteNone())
	assert.Equal(t, uint64(6), selected())
	require.NoError(t, d.WriteSelection([]int32{9}, []uint64{5}))
	assert.Equal(t, uint64(6), selected())

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 0, 0, 9}, got)

	require.NoError(t, d.Close())
	require.NoError(t, f.Close())
}

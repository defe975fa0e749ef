package h5par

import (
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/scigolib/h5par/internal/engine"
	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/utils"
)

func attributeRoundTrip[T AttributeValue](t *testing.T, n Node, name string, v T) {
	t.Helper()
	require.NoError(t, WriteAttribute(n, name, v))
	got, err := ReadAttribute[T](n, name)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func readBack[T AttributeValue](t *testing.T, n Node, name string, want T) {
	t.Helper()
	got, err := ReadAttribute[T](n, name)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAttribute_RoundTripEveryType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attrs.h5")
	f, err := Create(path, CreateTruncate)
	require.NoError(t, err)

	attributeRoundTrip(t, f, "f32", float32(1.5))
	attributeRoundTrip(t, f, "f64", math.Pi)
	attributeRoundTrip(t, f, "f80", LongDouble(-2.5e-300))
	attributeRoundTrip(t, f, "i32", int32(-7))
	attributeRoundTrip(t, f, "u32", uint32(4_000_000_000))
	attributeRoundTrip(t, f, "c64", complex64(1+2i))
	attributeRoundTrip(t, f, "c128", complex(math.E, -math.Pi))
	attributeRoundTrip(t, f, "c160", ComplexLongDouble(complex(1e300, -1e-300)))
	attributeRoundTrip(t, f, "yes", true)
	attributeRoundTrip(t, f, "no", false)
	require.NoError(t, f.Close())

	// Values survive the encoded file.
	f, err = Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	readBack(t, f, "f32", float32(1.5))
	readBack(t, f, "f64", math.Pi)
	readBack(t, f, "f80", LongDouble(-2.5e-300))
	readBack(t, f, "i32", int32(-7))
	readBack(t, f, "u32", uint32(4_000_000_000))
	readBack(t, f, "c64", complex64(1+2i))
	readBack(t, f, "c128", complex(math.E, -math.Pi))
	readBack(t, f, "c160", ComplexLongDouble(complex(1e300, -1e-300)))
	readBack(t, f, "yes", true)
	readBack(t, f, "no", false)
}

func TestAttribute_OnGroupsAndDatasets(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "nodes.h5"), CreateTruncate)
	require.NoError(t, err)
	g, err := f.CreateGroup("fields")
	require.NoError(t, err)
	d, err := CreateDataset[float64](g, "rho", []uint64{4})
	require.NoError(t, err)

	attributeRoundTrip(t, g, "units", "kg/m^3")
	attributeRoundTrip(t, d, "scale", 0.5)

	ok, err := HasAttribute(d, "scale")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = HasAttribute(g, "scale")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Close())
	require.NoError(t, g.Close())
	require.NoError(t, f.Close())
}

func TestAttribute_UTF8StringNoLeak(t *testing.T) {
	e := engine.New()
	path := filepath.Join(t.TempDir(), "utf8.h5")
	f, err := Create(path, CreateTruncate, withRuntime(e))
	require.NoError(t, err)

	const label = "température ✓ 温度 Ωμέγα"
	require.NoError(t, WriteAttribute(f, "label", label))
	require.NoError(t, WriteAttribute(f, "empty", ""))
	assert.Zero(t, e.Outstanding())

	readBack(t, f, "label", label)
	readBack(t, f, "empty", "")
	assert.Zero(t, e.Outstanding())
	require.NoError(t, f.Close())

	f, err = Open(path, withRuntime(e))
	require.NoError(t, err)
	readBack(t, f, "label", label)
	require.NoError(t, f.Close())

	assert.Zero(t, e.Outstanding())
	assert.Zero(t, e.OpenHandles())
}

func TestAttribute_Matrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.h5")
	f, err := Create(path, CreateTruncate)
	require.NoError(t, err)

	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, WriteMatrixAttribute(f, "transform", m))
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	got, err := ReadMatrixAttribute(f, "transform")
	require.NoError(t, err)
	r, c := got.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.True(t, mat.Equal(m, got))

	// A transposed view is written in its logical layout.
	require.NoError(t, WriteMatrixAttribute(f, "transposed", m.T()))
	got, err = ReadMatrixAttribute(f, "transposed")
	require.NoError(t, err)
	assert.True(t, mat.Equal(m.T(), got))
}

func TestAttribute_MatrixRankMismatch(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "rank.h5"), CreateTruncate)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	vec := encodeElements([]float64{1, 2, 3})
	require.NoError(t, f.base().writeAttribute("write", "vec", h5api.NativeDouble, []uint64{3}, vec))
	require.NoError(t, WriteAttribute(f, "scalar", 1.0))

	_, err = ReadMatrixAttribute(f, "vec")
	require.ErrorIs(t, err, ErrInvariant)
	_, err = ReadMatrixAttribute(f, "scalar")
	require.ErrorIs(t, err, ErrInvariant)

	// A vector is not a scalar either.
	_, err = ReadAttribute[float64](f, "vec")
	require.ErrorIs(t, err, ErrInvariant)

	err = WriteMatrixAttribute(f, "empty", &mat.Dense{})
	require.ErrorIs(t, err, ErrInvariant)
}

func TestAttribute_Errors(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "errs.h5"), CreateTruncate)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	require.NoError(t, WriteAttribute(f, "step", int32(3)))
	require.ErrorIs(t, WriteAttribute(f, "step", int32(4)), ErrExists)

	_, err = ReadAttribute[float64](f, "step")
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = ReadAttribute[int32](f, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = ReadAttribute[string](f, "step")
	require.ErrorIs(t, err, ErrTypeMismatch)

	readBack(t, f, "step", int32(3))
}

// forgedExtent reports dims for every dataspace while dims is set, the way
// a file with a corrupt extent would.
type forgedExtent struct {
	h5api.Runtime
	dims []uint64
}

func (r *forgedExtent) DataspaceDims(id h5api.ID) ([]uint64, error) {
	if r.dims != nil {
		return slices.Clone(r.dims), nil
	}
	return r.Runtime.DataspaceDims(id)
}

func TestAttribute_OversizedStringReleasesEverything(t *testing.T) {
	e := engine.New()
	f, err := Create(filepath.Join(t.TempDir(), "big.h5"), CreateTruncate, withRuntime(e))
	require.NoError(t, err)
	handles, outstanding := e.OpenHandles(), e.Outstanding()

	err = WriteAttribute(f, "blob", strings.Repeat("x", utils.MaxStringBytes+1))
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, handles, e.OpenHandles())
	assert.Equal(t, outstanding, e.Outstanding())

	ok, err := HasAttribute(f, "blob")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Close())
	assert.Zero(t, e.OpenHandles())
	assert.Zero(t, e.Outstanding())
}

func TestAttribute_ForgedMatrixExtent(t *testing.T) {
	e := engine.New()
	rt := &forgedExtent{Runtime: e}
	f, err := Create(filepath.Join(t.TempDir(), "forged.h5"), CreateTruncate, withRuntime(rt))
	require.NoError(t, err)
	require.NoError(t, WriteMatrixAttribute(f, "m", mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	handles := e.OpenHandles()

	tests := []struct {
		name string
		dims []uint64
	}{
		{"product wraps", []uint64{1 << 33, 1 << 33}},
		{"over attribute limit", []uint64{1 << 20, 1 << 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt.dims = tt.dims
			defer func() { rt.dims = nil }()
			_, err := ReadMatrixAttribute(f, "m")
			require.ErrorIs(t, err, ErrResourceExhausted)
			assert.Equal(t, handles, e.OpenHandles())
		})
	}

	got, err := ReadMatrixAttribute(f, "m")
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.At(1, 1))
	require.NoError(t, f.Close())
	assert.Zero(t, e.OpenHandles())
}

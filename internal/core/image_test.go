package core

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5par/internal/writer"
)

func buildSampleImage(t *testing.T) *Object {
	t.Helper()

	root := NewGroup()
	results := NewGroup()
	require.NoError(t, root.AddLink("results", results))

	ds, err := NewDataset(Float64(), SimpleSpace(2, 3))
	require.NoError(t, err)
	for i := range 6 {
		binary.LittleEndian.PutUint64(ds.Data[i*8:], math.Float64bits(float64(i)+0.5))
	}
	require.NoError(t, results.AddLink("pressure", ds))

	ds.Attributes = append(ds.Attributes,
		&Attribute{Name: "units", Type: VarString(), Space: ScalarSpace(), Strings: [][]byte{[]byte("Pa·s")}},
		&Attribute{Name: "empty", Type: VarString(), Space: ScalarSpace(), Strings: [][]byte{{}}},
	)
	root.Attributes = append(root.Attributes,
		&Attribute{Name: "step", Type: Uint32(), Space: ScalarSpace(), Data: []byte{42, 0, 0, 0}},
	)
	return root
}

func encodeImage(t *testing.T, root *Object) []byte {
	t.Helper()
	buf := writer.NewBuffer(SuperblockV2Size)
	require.NoError(t, WriteImage(buf, root))
	return buf.Bytes()
}

func TestImage_RoundTrip(t *testing.T) {
	data := encodeImage(t, buildSampleImage(t))
	assert.Equal(t, Signature, string(data[:8]))

	root, err := ReadImage(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, KindGroup, root.Kind)
	step := root.Attribute("step")
	require.NotNil(t, step)
	assert.Equal(t, []byte{42, 0, 0, 0}, step.Data)

	results := root.Child("results")
	require.NotNil(t, results)
	ds := results.Child("pressure")
	require.NotNil(t, ds)
	require.Equal(t, KindDataset, ds.Kind)
	assert.Equal(t, []uint64{2, 3}, ds.Space.Dims)
	assert.True(t, ds.Type.Equal(Float64()))
	require.Len(t, ds.Data, 48)
	assert.Equal(t, 5.5, math.Float64frombits(binary.LittleEndian.Uint64(ds.Data[40:])))

	units := ds.Attribute("units")
	require.NotNil(t, units)
	assert.True(t, units.Type.Equal(VarString()))
	assert.Equal(t, [][]byte{[]byte("Pa·s")}, units.Strings)
	assert.Equal(t, [][]byte{{}}, ds.Attribute("empty").Strings)
}

func TestImage_EmptyRoot(t *testing.T) {
	root, err := ReadImage(bytes.NewReader(encodeImage(t, NewGroup())))
	require.NoError(t, err)
	assert.Empty(t, root.Links)
	assert.Empty(t, root.Attributes)
}

func TestImage_ZeroSizedDataset(t *testing.T) {
	root := NewGroup()
	ds, err := NewDataset(Int32(), SimpleSpace(0))
	require.NoError(t, err)
	require.NoError(t, root.AddLink("empty", ds))

	decoded, err := ReadImage(bytes.NewReader(encodeImage(t, root)))
	require.NoError(t, err)
	got := decoded.Child("empty")
	require.NotNil(t, got)
	assert.Empty(t, got.Data)
	assert.Equal(t, []uint64{0}, got.Space.Dims)
}

func TestReadImage_Corrupted(t *testing.T) {
	data := encodeImage(t, buildSampleImage(t))

	t.Run("not hdf5", func(t *testing.T) {
		_, err := ReadImage(bytes.NewReader([]byte("plain text file, not a container")))
		require.ErrorIs(t, err, ErrFormat)
	})

	t.Run("superblock checksum", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[12] ^= 0xFF
		_, err := ReadImage(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrFormat)
	})

	t.Run("object header checksum", func(t *testing.T) {
		sb, err := ReadSuperblock(bytes.NewReader(data))
		require.NoError(t, err)
		bad := append([]byte(nil), data...)
		bad[sb.RootGroup+8] ^= 0xFF
		_, err = ReadImage(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrFormat)
	})
}

func TestObject_Links(t *testing.T) {
	root := NewGroup()
	require.NoError(t, root.AddLink("a", NewGroup()))
	require.Error(t, root.AddLink("a", NewGroup()))

	ds, err := NewDataset(Int32(), SimpleSpace(1))
	require.NoError(t, err)
	require.Error(t, ds.AddLink("child", NewGroup()))
	assert.Nil(t, root.Child("missing"))
}

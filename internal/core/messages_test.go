package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataspace_RoundTrip(t *testing.T) {
	for _, ds := range []Dataspace{ScalarSpace(), SimpleSpace(10), SimpleSpace(3, 4, 5), SimpleSpace(0)} {
		buf, err := EncodeDataspaceMessage(ds)
		require.NoError(t, err)
		got, err := ParseDataspaceMessage(buf)
		require.NoError(t, err)
		assert.Equal(t, ds.Scalar, got.Scalar)
		assert.Equal(t, ds.Dims, got.Dims)
	}

	_, err := EncodeDataspaceMessage(Dataspace{Scalar: true, Dims: []uint64{1}})
	require.Error(t, err)
}

func TestLinkMessage_RoundTrip(t *testing.T) {
	for _, name := range []string{"data", "température", strings.Repeat("n", 300)} {
		buf, err := EncodeLinkMessage(name, 0x1234)
		require.NoError(t, err)
		lm, err := ParseLinkMessage(buf)
		require.NoError(t, err)
		assert.Equal(t, name, lm.Name)
		assert.True(t, lm.Hard)
		assert.Equal(t, uint64(0x1234), lm.Address)
	}
}

func TestLayoutMessage_RoundTrip(t *testing.T) {
	l, err := ParseLayoutMessage(EncodeLayoutMessage(4096, 80))
	require.NoError(t, err)
	assert.Equal(t, LayoutContiguous, l.Class)
	assert.Equal(t, uint64(4096), l.Address)
	assert.Equal(t, uint64(80), l.Size)

	_, err = ParseLayoutMessage([]byte{3, byte(LayoutChunked)})
	require.ErrorIs(t, err, ErrUnsupportedFeature)
}

func TestAttributeMessage_RoundTrip(t *testing.T) {
	in := &AttributeMessage{Name: "step", Type: Int32(), Space: ScalarSpace(), Data: []byte{7, 0, 0, 0}}
	buf, err := EncodeAttributeMessage(in)
	require.NoError(t, err)

	out, err := ParseAttributeMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, "step", out.Name)
	assert.True(t, out.Type.Equal(Int32()))
	assert.True(t, out.Space.Scalar)
	assert.Equal(t, in.Data, out.Data)
}

func TestGlobalHeap_RoundTrip(t *testing.T) {
	heap, err := EncodeGlobalHeap([][]byte{[]byte("héllo"), []byte("x")})
	require.NoError(t, err)
	assert.Len(t, heap, globalHeapMinSize)

	r := bytes.NewReader(append(make([]byte, 64), heap...))
	objects, err := ReadGlobalHeap(r, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("héllo"), objects[1])
	assert.Equal(t, []byte("x"), objects[2])
	assert.Len(t, objects, 2)
}

func TestGlobalHeap_LargerThanMinimum(t *testing.T) {
	big := make([]byte, 5000)
	heap, err := EncodeGlobalHeap([][]byte{big})
	require.NoError(t, err)
	assert.Equal(t, globalHeapHeaderSize+globalHeapObjectHead+5000, len(heap))
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5par"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.h5")
	f, err := h5par.Create(path, h5par.CreateTruncate)
	require.NoError(t, err)
	require.NoError(t, h5par.WriteAttribute(f, "step", int32(9)))
	g, err := f.CreateGroup("mesh")
	require.NoError(t, err)
	require.NoError(t, h5par.WriteDataset(g, "x", []float32{1, 2}))
	require.NoError(t, g.Close())
	require.NoError(t, h5par.WriteDataset(&f.Group, "psi", []complex64{1, 2, 3}))
	require.NoError(t, f.Close())

	var buf bytes.Buffer
	require.NoError(t, List(&buf, path, discard()))
	assert.Equal(t, "/\n  @step = 9\n  mesh/\n    x float32 [2]\n  psi complex64 [3]\n", buf.String())
}

func TestList_NotAContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, writeFile(path, "not a container at all, just some text padding it out"))

	err := List(&bytes.Buffer{}, path, discard())
	require.ErrorIs(t, err, h5par.ErrNotHDF5)
}

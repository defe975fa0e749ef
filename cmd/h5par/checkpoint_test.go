package main

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5par"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCheckpoint(t *testing.T) {
	job := &Job{
		Output: filepath.Join(t.TempDir(), "ckpt.h5"),
		Ranks:  4,
		Group:  "fields",
		Step:   3,
		Time:   1.5,
		Fields: []Field{
			{Name: "rho", Length: 10, Type: "float64", Scale: 2},
			{Name: "n", Length: 3, Type: "int32", Scale: 1},
			{Name: "psi", Length: 2, Type: "complex128", Scale: 1},
		},
	}
	runID, err := RunCheckpoint(job, discard())
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	require.NoError(t, err)

	f, err := h5par.Open(job.Output)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gotID, err := h5par.ReadAttribute[string](f, "run_id")
	require.NoError(t, err)
	assert.Equal(t, runID, gotID)
	step, err := h5par.ReadAttribute[int32](f, "step")
	require.NoError(t, err)
	assert.Equal(t, int32(3), step)
	ranks, err := h5par.ReadAttribute[int32](f, "ranks")
	require.NoError(t, err)
	assert.Equal(t, int32(4), ranks)

	g, err := f.OpenGroup("fields")
	require.NoError(t, err)
	defer func() { require.NoError(t, g.Close()) }()

	rho, err := h5par.OpenDataset[float64](g, "rho", nil)
	require.NoError(t, err)
	data, err := rho.Read()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}, data)
	scale, err := h5par.ReadAttribute[float64](rho, "scale")
	require.NoError(t, err)
	assert.Equal(t, 2.0, scale)
	require.NoError(t, rho.Close())

	// Only three of four ranks own an element of n.
	n, err := h5par.OpenDataset[int32](g, "n", []uint64{3})
	require.NoError(t, err)
	ints, err := n.Read()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, ints)
	require.NoError(t, n.Close())

	psi, err := h5par.OpenDataset[complex128](g, "psi", nil)
	require.NoError(t, err)
	cs, err := psi.Read()
	require.NoError(t, err)
	assert.Equal(t, []complex128{0, complex(1, -1)}, cs)
	require.NoError(t, psi.Close())
}

func TestCheckpointCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "job.yaml")
	out := filepath.Join(dir, "out.h5")
	require.NoError(t, writeFile(cfg, "output: "+out+"\nranks: 2\nfields:\n  - name: rho\n    length: 5\n"))

	var stdout bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetArgs([]string{"checkpoint", "--config", cfg, "--metrics"})
	defer RootCmd.SetArgs(nil)
	require.NoError(t, RootCmd.Execute())

	assert.Contains(t, stdout.String(), "wrote "+out)
	assert.Contains(t, stdout.String(), "2 ranks, 1 fields")
	assert.Contains(t, stdout.String(), "h5par_")
}

func TestCheckpoint_MissingConfig(t *testing.T) {
	RootCmd.SetArgs([]string{"checkpoint", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	RootCmd.SetErr(io.Discard)
	defer RootCmd.SetArgs(nil)
	err := RootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read job")
}

func TestPrintMetrics_FiltersPrefix(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "h5par_test_total", Help: "test"}).Add(3)
	promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "other_gauge", Help: "test"}).Set(1)

	var buf bytes.Buffer
	require.NoError(t, printMetrics(&buf, reg))
	assert.Equal(t, "h5par_test_total{} 3\n", buf.String())
}

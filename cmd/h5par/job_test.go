package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJob_Defaults(t *testing.T) {
	job, err := ParseJob([]byte(`
output: run.h5
group: fields
step: 7
time: 0.25
info:
  romio_cb_write: enable
fields:
  - name: rho
    length: 10
  - name: psi
    length: 4
    type: complex128
    scale: 0.5
`))
	require.NoError(t, err)

	assert.Equal(t, "run.h5", job.Output)
	assert.Equal(t, 1, job.Ranks)
	assert.Equal(t, int32(7), job.Step)
	assert.Equal(t, "enable", job.Info["romio_cb_write"])
	require.Len(t, job.Fields, 2)
	assert.Equal(t, Field{Name: "rho", Length: 10, Type: "float64", Scale: 1}, job.Fields[0])
	assert.Equal(t, Field{Name: "psi", Length: 4, Type: "complex128", Scale: 0.5}, job.Fields[1])
}

func TestParseJob_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no output", "fields: [{name: a, length: 1}]", "output is required"},
		{"negative ranks", "output: x\nranks: -2\nfields: [{name: a, length: 1}]", "ranks must be positive"},
		{"no fields", "output: x", "at least one field"},
		{"unnamed", "output: x\nfields: [{length: 1}]", "without a name"},
		{"duplicate", "output: x\nfields: [{name: a, length: 1}, {name: a, length: 2}]", "duplicate field"},
		{"zero length", "output: x\nfields: [{name: a}]", "zero length"},
		{"bad type", "output: x\nfields: [{name: a, length: 1, type: string}]", "unsupported type"},
		{"not yaml", "output: [", "parse job"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJob([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestShare(t *testing.T) {
	tests := []struct {
		length uint64
		ranks  int
		want   [][2]uint64
	}{
		{10, 1, [][2]uint64{{0, 10}}},
		{10, 3, [][2]uint64{{0, 4}, {4, 3}, {7, 3}}},
		{8, 4, [][2]uint64{{0, 2}, {2, 2}, {4, 2}, {6, 2}}},
		{2, 4, [][2]uint64{{0, 1}, {1, 1}, {2, 0}, {2, 0}}},
	}
	for _, tt := range tests {
		var total uint64
		for rank, want := range tt.want {
			offset, count := share(tt.length, tt.ranks, rank)
			assert.Equal(t, want, [2]uint64{offset, count}, "length %d rank %d/%d", tt.length, rank, tt.ranks)
			total += count
		}
		assert.Equal(t, tt.length, total)
	}
}

package h5par

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense two-dimensional payload with row-major storage.
type Matrix[T Element] interface {
	Dims() (r, c int)
	RowMajor() []T
}

type rowMajor[T Element] struct {
	r, c int
	data []T
}

func (m rowMajor[T]) Dims() (int, int) { return m.r, m.c }
func (m rowMajor[T]) RowMajor() []T    { return m.data }

// NewMatrix wraps data as an r x c matrix without copying.
func NewMatrix[T Element](r, c int, data []T) (Matrix[T], error) {
	if r < 0 || c < 0 || len(data) != r*c {
		return nil, invariantf("new matrix", fmt.Sprintf("%dx%d", r, c), "%d elements", len(data))
	}
	return rowMajor[T]{r: r, c: c, data: data}, nil
}

// FromDense adapts a gonum matrix. The backing slice is shared when the
// matrix is contiguous and copied otherwise.
func FromDense(m *mat.Dense) Matrix[float64] {
	raw := m.RawMatrix()
	if raw.Stride == raw.Cols || raw.Rows <= 1 {
		return rowMajor[float64]{r: raw.Rows, c: raw.Cols, data: raw.Data[:raw.Rows*raw.Cols]}
	}
	data := make([]float64, 0, raw.Rows*raw.Cols)
	for i := range raw.Rows {
		data = append(data, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return rowMajor[float64]{r: raw.Rows, c: raw.Cols, data: data}
}

// FromCDense adapts a gonum complex matrix.
func FromCDense(m *mat.CDense) Matrix[complex128] {
	raw := m.RawCMatrix()
	if raw.Stride == raw.Cols || raw.Rows <= 1 {
		return rowMajor[complex128]{r: raw.Rows, c: raw.Cols, data: raw.Data[:raw.Rows*raw.Cols]}
	}
	data := make([]complex128, 0, raw.Rows*raw.Cols)
	for i := range raw.Rows {
		data = append(data, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return rowMajor[complex128]{r: raw.Rows, c: raw.Cols, data: data}
}

// ReadDense reads a rank-2 float64 dataset into a gonum matrix.
func ReadDense(d *Dataset[float64]) (*mat.Dense, error) {
	if len(d.dims) != 2 || d.dims[0] == 0 || d.dims[1] == 0 {
		return nil, invariantf("read dense", d.name, "shape %v is not a non-empty matrix", d.dims)
	}
	data, err := d.Read()
	if err != nil {
		return nil, err
	}
	return mat.NewDense(int(d.dims[0]), int(d.dims[1]), data), nil
}

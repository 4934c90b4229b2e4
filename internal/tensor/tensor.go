package tensor

import (
	"fmt"
)

// Tensor represents a dense, row-major multi-dimensional array of float64
type Tensor struct {
	data   []float64 // Underlying storage
	shape  []int     // Dimensions [batch, seq_len, hidden_dim, ...]
	stride []int     // Memory layout strides for indexing
}

// NewTensor creates a zero-filled tensor with the given shape
func NewTensor(shape []int) *Tensor {
	size := 1
	for _, dim := range shape {
		if dim < 0 {
			panic(fmt.Sprintf("negative dimension in shape %v", shape))
		}
		size *= dim
	}

	return &Tensor{
		data:   make([]float64, size),
		shape:  append([]int(nil), shape...),
		stride: computeStrides(shape),
	}
}

// NewTensorFromData creates a tensor that takes ownership of data
func NewTensorFromData(data []float64, shape []int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	if size != len(data) {
		panic(fmt.Sprintf("data length %d does not match shape %v (size %d)", len(data), shape, size))
	}

	return &Tensor{
		data:   data,
		shape:  append([]int(nil), shape...),
		stride: computeStrides(shape),
	}
}

// FromRows builds a 2D tensor from a slice of equal-length rows
func FromRows(rows [][]float64) *Tensor {
	if len(rows) == 0 {
		return NewTensor([]int{0, 0})
	}
	cols := len(rows[0])
	t := NewTensor([]int{len(rows), cols})
	for i, row := range rows {
		if len(row) != cols {
			panic(fmt.Sprintf("row %d has length %d, expected %d", i, len(row), cols))
		}
		copy(t.data[i*cols:(i+1)*cols], row)
	}
	return t
}

// Ones creates a tensor filled with ones
func Ones(shape []int) *Tensor {
	t := NewTensor(shape)
	for i := range t.data {
		t.data[i] = 1
	}
	return t
}

// Clone returns a deep copy of the tensor
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return NewTensorFromData(data, t.shape)
}

func computeStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	strides[len(shape)-1] = 1
	for i := len(shape) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}
	return strides
}

// Shape returns a copy of the tensor dimensions
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Size returns the total number of elements
func (t *Tensor) Size() int {
	return len(t.data)
}

// NumDims returns the number of dimensions
func (t *Tensor) NumDims() int {
	return len(t.shape)
}

// Dim returns the size of dimension i; negative i counts from the end
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

func (t *Tensor) index(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}

	idx := 0
	for i, v := range indices {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", v, i, t.shape[i]))
		}
		idx += v * t.stride[i]
	}
	return idx
}

// At returns the element at the given indices
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.index(indices)]
}

// Set sets the element at the given indices
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.index(indices)] = value
}

// Data returns the underlying storage. Callers must treat it as read-only
// unless they own the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Row returns a view of the innermost vector addressed by the leading
// indices, e.g. Row(b, s) on a [batch, seq, dim] tensor.
func (t *Tensor) Row(indices ...int) []float64 {
	if len(indices) != len(t.shape)-1 {
		panic(fmt.Sprintf("Row expects %d indices, got %d", len(t.shape)-1, len(indices)))
	}
	off := 0
	for i, v := range indices {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", v, i, t.shape[i]))
		}
		off += v * t.stride[i]
	}
	n := t.shape[len(t.shape)-1]
	return t.data[off : off+n]
}

// Matrix returns the 2D slice addressed by the leading indices as a
// freshly allocated [][]float64, e.g. Matrix(b, h) on [batch, heads, q, k].
func (t *Tensor) Matrix(indices ...int) [][]float64 {
	if len(indices) != len(t.shape)-2 {
		panic(fmt.Sprintf("Matrix expects %d indices, got %d", len(t.shape)-2, len(indices)))
	}
	off := 0
	for i, v := range indices {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", v, i, t.shape[i]))
		}
		off += v * t.stride[i]
	}
	rows, cols := t.shape[len(t.shape)-2], t.shape[len(t.shape)-1]
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = append([]float64(nil), t.data[off+r*cols:off+(r+1)*cols]...)
	}
	return out
}

// String returns a short description of the tensor
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor{shape=%v, size=%d}", t.shape, len(t.data))
}

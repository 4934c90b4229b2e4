package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Element-wise Operations

// Add performs element-wise addition: C = A + B
func Add(a, b *Tensor) *Tensor {
	if !shapesMatch(a.shape, b.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", a.shape, b.shape))
	}

	result := NewTensor(a.shape)
	floats.AddTo(result.data, a.data, b.data)
	return result
}

// Row Operations

// AddRowVector adds a vector of length shape[-1] to every innermost row
func AddRowVector(a *Tensor, v []float64) *Tensor {
	n := a.shape[len(a.shape)-1]
	if len(v) != n {
		panic(fmt.Sprintf("row vector length %d does not match last dimension %d", len(v), n))
	}

	result := a.Clone()
	for off := 0; off < len(result.data); off += n {
		floats.Add(result.data[off:off+n], v)
	}
	return result
}

// Reduction Operations

// Sum returns the sum of all elements
func Sum(a *Tensor) float64 {
	return floats.Sum(a.data)
}

// Mean computes the average of all elements
func Mean(a *Tensor) float64 {
	if len(a.data) == 0 {
		return 0
	}
	return Sum(a) / float64(len(a.data))
}

// Max finds the maximum value
func Max(a *Tensor) float64 {
	if len(a.data) == 0 {
		return 0
	}
	return floats.Max(a.data)
}

// Min finds the minimum value
func Min(a *Tensor) float64 {
	if len(a.data) == 0 {
		return 0
	}
	return floats.Min(a.data)
}

// Activation Functions

// GELU applies the exact Gaussian Error Linear Unit:
// 0.5 * x * (1 + erf(x / sqrt(2)))
func GELU(a *Tensor) *Tensor {
	result := NewTensor(a.shape)
	for i, x := range a.data {
		result.data[i] = GELUScalar(x)
	}
	return result
}

// GELUScalar is the exact GELU of a single value
func GELUScalar(x float64) float64 {
	return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
}

// GELUTanh applies the tanh approximation of GELU:
// 0.5 * x * (1 + tanh(sqrt(2/π) * (x + 0.044715 * x^3)))
func GELUTanh(a *Tensor) *Tensor {
	result := NewTensor(a.shape)
	for i, x := range a.data {
		result.data[i] = GELUTanhScalar(x)
	}
	return result
}

// GELUTanhScalar is the tanh-approximated GELU of a single value
func GELUTanhScalar(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

// Softmax applies softmax along the last dimension
func Softmax(a *Tensor) *Tensor {
	result := a.Clone()
	n := a.shape[len(a.shape)-1]
	if n == 0 {
		return result
	}
	for off := 0; off < len(result.data); off += n {
		SoftmaxInPlace(result.data[off : off+n])
	}
	return result
}

// SoftmaxInPlace normalizes row into a probability distribution
func SoftmaxInPlace(row []float64) {
	if len(row) == 0 {
		return
	}

	// Subtract max for numerical stability
	maxVal := floats.Max(row)
	var sumExp float64
	for i, val := range row {
		row[i] = math.Exp(val - maxVal)
		sumExp += row[i]
	}
	floats.Scale(1/sumExp, row)
}

// Shape Manipulation

// Reshape changes the tensor shape without copying data
func Reshape(a *Tensor, newShape []int) *Tensor {
	newSize := 1
	for _, dim := range newShape {
		newSize *= dim
	}
	if newSize != a.Size() {
		panic(fmt.Sprintf("cannot reshape tensor of size %d to shape %v (size %d)", a.Size(), newShape, newSize))
	}

	return &Tensor{
		data:   a.data,
		shape:  append([]int(nil), newShape...),
		stride: computeStrides(newShape),
	}
}

// Helper functions

func shapesMatch(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package transformer

import (
	"fmt"
	"math/rand/v2"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// Linear is an affine map y = x·W + b applied over the last dimension
type Linear struct {
	weight *tensor.Tensor // [in, out]
	bias   []float64      // [out], nil when the layer has no bias
	in     int
	out    int
}

// newLinear creates a Xavier-uniform initialized layer with a zero bias
func newLinear(src rand.Source, in, out int, withBias bool) *Linear {
	l := &Linear{
		weight: xavierUniform(src, in, out),
		in:     in,
		out:    out,
	}
	if withBias {
		l.bias = make([]float64, out)
	}
	return l
}

// Forward applies the layer to x of shape [..., in] and returns [..., out]
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.NumDims() < 1 || x.Dim(-1) != l.in {
		return nil, fmt.Errorf("%w: linear expects last dimension %d, got shape %v", ErrShapeMismatch, l.in, x.Shape())
	}

	shape := x.Shape()
	rows := x.Size() / l.in

	y := tensor.MatMul(tensor.Reshape(x, []int{rows, l.in}), l.weight)
	if l.bias != nil {
		y = tensor.AddRowVector(y, l.bias)
	}

	shape[len(shape)-1] = l.out
	return tensor.Reshape(y, shape), nil
}

// Weight returns the [in, out] weight matrix
func (l *Linear) Weight() *tensor.Tensor {
	return l.weight
}

// NumParams returns the number of weights plus biases
func (l *Linear) NumParams() int {
	return l.in*l.out + len(l.bias)
}

package transformer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// LayerNorm implements layer normalization over the last dimension
// Formula: y = (x - mean(x)) / sqrt(var(x) + eps) * gain + bias
type LayerNorm struct {
	gain []float64 // [d_model], initialized to 1
	bias []float64 // [d_model], initialized to 0
	eps  float64
}

// NewLayerNorm creates a LayerNorm with unit gain and zero bias
func NewLayerNorm(dModel int, eps float64) (*LayerNorm, error) {
	if dModel <= 0 {
		return nil, fmt.Errorf("%w: layer norm dimension must be positive, got %d", ErrConfiguration, dModel)
	}
	if eps <= 0 {
		return nil, fmt.Errorf("%w: layer norm epsilon must be positive, got %e", ErrConfiguration, eps)
	}

	gain := make([]float64, dModel)
	for i := range gain {
		gain[i] = 1
	}
	return &LayerNorm{
		gain: gain,
		bias: make([]float64, dModel),
		eps:  eps,
	}, nil
}

// NumParams returns the number of gain and bias parameters
func (n *LayerNorm) NumParams() int {
	return len(n.gain) + len(n.bias)
}

// Normalize returns x with every row scaled to zero mean and unit
// variance, before the learned gain and bias
func (n *LayerNorm) Normalize(x *tensor.Tensor) (*tensor.Tensor, error) {
	dim := len(n.gain)
	if x.NumDims() < 1 || x.Dim(-1) != dim {
		return nil, fmt.Errorf("%w: layer norm expects last dimension %d, got shape %v", ErrShapeMismatch, dim, x.Shape())
	}

	out := x.Clone()
	data := out.Data()
	for off := 0; off < len(data); off += dim {
		row := data[off : off+dim]
		mean, variance := stat.PopMeanVariance(row, nil)
		inv := 1 / math.Sqrt(variance+n.eps)
		for i := range row {
			row[i] = (row[i] - mean) * inv
		}
	}
	return out, nil
}

// Forward applies LayerNorm to input of shape [..., d_model]
func (n *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := n.Normalize(x)
	if err != nil {
		return nil, err
	}

	dim := len(n.gain)
	data := out.Data()
	for off := 0; off < len(data); off += dim {
		row := data[off : off+dim]
		for i := range row {
			row[i] = row[i]*n.gain[i] + n.bias[i]
		}
	}
	return out, nil
}

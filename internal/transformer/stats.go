package transformer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// ActivationStats summarizes the values of one pipeline stage
type ActivationStats struct {
	Mean          float64
	Std           float64 // population standard deviation
	Min           float64
	Max           float64
	PositiveRatio float64 // fraction of values > 0
	ZeroRatio     float64 // fraction of values with |v| < 1e-6
	Magnitude     float64 // L2 norm over all values
}

// ComputeStats summarizes values. An empty slice yields zero stats.
func ComputeStats(values []float64) ActivationStats {
	if len(values) == 0 {
		return ActivationStats{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)

	var positive, zero int
	for _, v := range values {
		if v > 0 {
			positive++
		}
		if math.Abs(v) < 1e-6 {
			zero++
		}
	}

	n := float64(len(values))
	return ActivationStats{
		Mean:          mean,
		Std:           std,
		Min:           floats.Min(values),
		Max:           floats.Max(values),
		PositiveRatio: float64(positive) / n,
		ZeroRatio:     float64(zero) / n,
		Magnitude:     floats.Norm(values, 2),
	}
}

// TensorStats summarizes every element of t
func TensorStats(t *tensor.Tensor) ActivationStats {
	return ComputeStats(t.Data())
}

// firstItem returns a view of batch item 0 of a [batch, ...] tensor
func firstItem(t *tensor.Tensor) *tensor.Tensor {
	shape := t.Shape()
	n := t.Size() / shape[0]
	return tensor.NewTensorFromData(t.Data()[:n], shape[1:])
}

// rowNorms returns the L2 norm of every innermost row
func rowNorms(t *tensor.Tensor) []float64 {
	n := t.Dim(-1)
	data := t.Data()
	out := make([]float64, 0, len(data)/max(n, 1))
	for off := 0; off+n <= len(data) && n > 0; off += n {
		out = append(out, floats.Norm(data[off:off+n], 2))
	}
	return out
}

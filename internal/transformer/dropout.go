package transformer

import (
	"math/rand/v2"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// dropout zeroes elements with probability rate and rescales the survivors
// by 1/(1-rate). It returns x unchanged when rng is nil or rate is zero, so
// plain forward passes are deterministic.
func dropout(x *tensor.Tensor, rate float64, rng *rand.Rand) *tensor.Tensor {
	if rng == nil || rate <= 0 {
		return x
	}

	out := x.Clone()
	data := out.Data()
	scale := 1 / (1 - rate)
	for i := range data {
		if rng.Float64() < rate {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}
	return out
}

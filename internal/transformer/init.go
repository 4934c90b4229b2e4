package transformer

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// NewSource returns the deterministic random source used for parameter
// initialization. The same seed always yields the same parameters.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// xavierUniform samples a [fanIn, fanOut] matrix from
// U(-limit, limit) with limit = sqrt(6 / (fanIn + fanOut))
func xavierUniform(src rand.Source, fanIn, fanOut int) *tensor.Tensor {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}

	t := tensor.NewTensor([]int{fanIn, fanOut})
	data := t.Data()
	for i := range data {
		data[i] = dist.Rand()
	}
	return t
}

// normal samples a tensor from N(0, std²)
func normal(src rand.Source, shape []int, std float64) *tensor.Tensor {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}

	t := tensor.NewTensor(shape)
	data := t.Data()
	for i := range data {
		data[i] = dist.Rand()
	}
	return t
}

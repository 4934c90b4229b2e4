package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// FeedForward implements the position-wise network
// FFN(x) = linear2(dropout(act(linear1(x))))
type FeedForward struct {
	linear1 *Linear // [d_model, d_ff]
	linear2 *Linear // [d_ff, d_model]

	act        func(*tensor.Tensor) *tensor.Tensor
	activation Activation

	dModel  int
	dFF     int
	dropout float64
}

func activationFunc(a Activation) (func(*tensor.Tensor) *tensor.Tensor, error) {
	switch a {
	case ActivationGELU, "":
		return tensor.GELU, nil
	case ActivationGELUTanh:
		return tensor.GELUTanh, nil
	default:
		return nil, fmt.Errorf("%w: unknown activation %q", ErrConfiguration, a)
	}
}

// NewFeedForward creates a feed-forward layer with Xavier-uniform weights
// and zero biases. An empty activation selects exact GELU.
func NewFeedForward(dModel, dFF int, activation Activation, dropoutRate float64, src rand.Source) (*FeedForward, error) {
	if dModel <= 0 || dFF <= 0 {
		return nil, fmt.Errorf("%w: d_model and d_ff must be positive, got %d and %d", ErrConfiguration, dModel, dFF)
	}
	if activation == "" {
		activation = ActivationGELU
	}
	act, err := activationFunc(activation)
	if err != nil {
		return nil, err
	}

	return &FeedForward{
		linear1:    newLinear(src, dModel, dFF, true),
		linear2:    newLinear(src, dFF, dModel, true),
		act:        act,
		activation: activation,
		dModel:     dModel,
		dFF:        dFF,
		dropout:    dropoutRate,
	}, nil
}

// Activation returns the configured non-linearity
func (f *FeedForward) Activation() Activation {
	return f.activation
}

// Forward applies the network to x of shape [..., d_model]
func (f *FeedForward) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return f.forward(x, nil)
}

func (f *FeedForward) forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	if x.NumDims() < 1 || x.Dim(-1) != f.dModel {
		return nil, fmt.Errorf("%w: feed-forward expects last dimension %d, got shape %v", ErrShapeMismatch, f.dModel, x.Shape())
	}

	h, err := f.linear1.Forward(x)
	if err != nil {
		return nil, err
	}
	h = dropout(f.act(h), f.dropout, rng)
	return f.linear2.Forward(h)
}

// FeedForwardSnapshot holds every stage of the network for one input
type FeedForwardSnapshot struct {
	Input          *tensor.Tensor
	PreActivation  *tensor.Tensor // linear1 output
	PostActivation *tensor.Tensor // activation output
	Output         *tensor.Tensor

	InputStats   ActivationStats
	Hidden1Stats ActivationStats
	Hidden2Stats ActivationStats
	OutputStats  ActivationStats

	ExpansionRatio float64
}

// Trace runs the network without dropout and records every stage.
// Statistics cover the first batch item.
func (f *FeedForward) Trace(x *tensor.Tensor) (FeedForwardSnapshot, error) {
	if x.NumDims() != 3 || x.Dim(2) != f.dModel {
		return FeedForwardSnapshot{}, fmt.Errorf("%w: feed-forward trace expects [batch, seq, %d], got %v", ErrShapeMismatch, f.dModel, x.Shape())
	}

	h1, err := f.linear1.Forward(x)
	if err != nil {
		return FeedForwardSnapshot{}, err
	}
	h2 := f.act(h1)
	out, err := f.linear2.Forward(h2)
	if err != nil {
		return FeedForwardSnapshot{}, err
	}

	return FeedForwardSnapshot{
		Input:          x,
		PreActivation:  h1,
		PostActivation: h2,
		Output:         out,
		InputStats:     TensorStats(firstItem(x)),
		Hidden1Stats:   TensorStats(firstItem(h1)),
		Hidden2Stats:   TensorStats(firstItem(h2)),
		OutputStats:    TensorStats(firstItem(out)),
		ExpansionRatio: float64(f.dFF) / float64(f.dModel),
	}, nil
}

// FeedForwardInfo describes the network dimensions and parameters
type FeedForwardInfo struct {
	InputDim       int
	HiddenDim      int
	OutputDim      int
	ExpansionRatio float64
	Linear1Params  int
	Linear2Params  int
	TotalParams    int
}

// Info returns the network dimensions and parameter counts
func (f *FeedForward) Info() FeedForwardInfo {
	return FeedForwardInfo{
		InputDim:       f.dModel,
		HiddenDim:      f.dFF,
		OutputDim:      f.dModel,
		ExpansionRatio: float64(f.dFF) / float64(f.dModel),
		Linear1Params:  f.linear1.NumParams(),
		Linear2Params:  f.linear2.NumParams(),
		TotalParams:    f.NumParams(),
	}
}

// NumParams returns the total parameter count
func (f *FeedForward) NumParams() int {
	return f.linear1.NumParams() + f.linear2.NumParams()
}

// FeedForwardAnalysis describes how the network transforms each token
type FeedForwardAnalysis struct {
	MagnitudeChanges       []float64 // |output| / |input| per token
	AverageMagnitudeChange float64
	SparsityPerToken       []float64 // fraction of exact zeros after activation
	AverageSparsity        float64
	InputVariance          float64
	HiddenVariance         float64
	OutputVariance         float64
}

// Analyze traces x and summarizes per-token behavior of the first batch item
func (f *FeedForward) Analyze(x *tensor.Tensor) (FeedForwardAnalysis, error) {
	snap, err := f.Trace(x)
	if err != nil {
		return FeedForwardAnalysis{}, err
	}

	in := firstItem(snap.Input)
	hidden := firstItem(snap.PostActivation)
	out := firstItem(snap.Output)

	inNorms := rowNorms(in)
	outNorms := rowNorms(out)
	changes := make([]float64, len(inNorms))
	for i := range changes {
		changes[i] = outNorms[i] / inNorms[i]
	}

	seqLen := hidden.Dim(0)
	sparsity := make([]float64, seqLen)
	for s := 0; s < seqLen; s++ {
		row := hidden.Row(s)
		zeros := 0
		for _, v := range row {
			if v == 0 {
				zeros++
			}
		}
		sparsity[s] = float64(zeros) / float64(len(row))
	}

	return FeedForwardAnalysis{
		MagnitudeChanges:       changes,
		AverageMagnitudeChange: stat.Mean(changes, nil),
		SparsityPerToken:       sparsity,
		AverageSparsity:        stat.Mean(sparsity, nil),
		InputVariance:          stat.PopVariance(in.Data(), nil),
		HiddenVariance:         stat.PopVariance(hidden.Data(), nil),
		OutputVariance:         stat.PopVariance(out.Data(), nil),
	}, nil
}

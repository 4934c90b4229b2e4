package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// maskedScore replaces attention scores at masked positions before softmax
const maskedScore = -1e9

// MultiHeadAttention implements scaled dot-product attention over
// num_heads independent projections of width d_model / num_heads
type MultiHeadAttention struct {
	// Projections, each [d_model, d_model] with zero-initialized bias
	wq *Linear
	wk *Linear
	wv *Linear
	wo *Linear

	// Configuration
	numHeads int
	headDim  int
	dModel   int
	dropout  float64
}

// NewMultiHeadAttention creates an attention layer with Xavier-uniform
// projections. It fails with ErrConfiguration when dModel is not divisible
// by numHeads.
func NewMultiHeadAttention(dModel, numHeads int, dropoutRate float64, src rand.Source) (*MultiHeadAttention, error) {
	if dModel <= 0 || numHeads <= 0 {
		return nil, fmt.Errorf("%w: d_model and num_heads must be positive, got %d and %d", ErrConfiguration, dModel, numHeads)
	}
	if dModel%numHeads != 0 {
		return nil, fmt.Errorf("%w: d_model (%d) must be divisible by num_heads (%d)", ErrConfiguration, dModel, numHeads)
	}

	return &MultiHeadAttention{
		wq:       newLinear(src, dModel, dModel, true),
		wk:       newLinear(src, dModel, dModel, true),
		wv:       newLinear(src, dModel, dModel, true),
		wo:       newLinear(src, dModel, dModel, true),
		numHeads: numHeads,
		headDim:  dModel / numHeads,
		dModel:   dModel,
		dropout:  dropoutRate,
	}, nil
}

// NumHeads returns the number of heads
func (a *MultiHeadAttention) NumHeads() int { return a.numHeads }

// HeadDim returns the per-head dimension d_k
func (a *MultiHeadAttention) HeadDim() int { return a.headDim }

// NumParams returns the number of weights and biases
func (a *MultiHeadAttention) NumParams() int {
	return a.wq.NumParams() + a.wk.NumParams() + a.wv.NumParams() + a.wo.NumParams()
}

// Forward computes multi-head attention
// query: [batch, q_len, d_model]
// key, value: [batch, k_len, d_model]
// mask: nil, [q_len, k_len] or [batch, q_len, k_len]; zero entries are masked
// Returns the output [batch, q_len, d_model] and the attention weights
// [batch, heads, q_len, k_len]
func (a *MultiHeadAttention) Forward(query, key, value, mask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	return a.forward(query, key, value, mask, nil)
}

func (a *MultiHeadAttention) forward(query, key, value, mask *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, error) {
	if err := a.checkInputs(query, key, value, mask); err != nil {
		return nil, nil, err
	}

	batchSize := query.Dim(0)
	qLen, kLen := query.Dim(1), key.Dim(1)

	// Project to Q, K, V
	q, err := a.wq.Forward(query)
	if err != nil {
		return nil, nil, fmt.Errorf("query projection: %w", err)
	}
	k, err := a.wk.Forward(key)
	if err != nil {
		return nil, nil, fmt.Errorf("key projection: %w", err)
	}
	v, err := a.wv.Forward(value)
	if err != nil {
		return nil, nil, fmt.Errorf("value projection: %w", err)
	}

	// Split into heads: [batch * heads, len, head_dim]
	qh := splitHeads(q, a.numHeads)
	kh := splitHeads(k, a.numHeads)
	vh := splitHeads(v, a.numHeads)

	// scores = Q @ K^T / sqrt(head_dim), one matrix per (batch, head)
	scores := tensor.BatchMatMulTransB(qh, kh)
	floats.Scale(1/math.Sqrt(float64(a.headDim)), scores.Data())

	if mask != nil {
		applyMask(scores, mask, batchSize, a.numHeads)
	}

	weights := tensor.Softmax(scores)

	// Weighted sum of values
	ctx := tensor.BatchMatMul(dropout(weights, a.dropout, rng), vh)

	// Concatenate heads: [batch, q_len, d_model]
	merged := mergeHeads(ctx, batchSize, a.numHeads)

	out, err := a.wo.Forward(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("output projection: %w", err)
	}

	return out, tensor.Reshape(weights, []int{batchSize, a.numHeads, qLen, kLen}), nil
}

func (a *MultiHeadAttention) checkInputs(query, key, value, mask *tensor.Tensor) error {
	names := []string{"query", "key", "value"}
	for i, t := range []*tensor.Tensor{query, key, value} {
		if t == nil {
			return fmt.Errorf("%w: %s is nil", ErrShapeMismatch, names[i])
		}
		if t.NumDims() != 3 || t.Dim(2) != a.dModel {
			return fmt.Errorf("%w: %s must be [batch, seq, %d], got %v", ErrShapeMismatch, names[i], a.dModel, t.Shape())
		}
	}
	if key.Dim(0) != query.Dim(0) || value.Dim(0) != query.Dim(0) {
		return fmt.Errorf("%w: batch sizes differ: query %d, key %d, value %d", ErrShapeMismatch, query.Dim(0), key.Dim(0), value.Dim(0))
	}
	if key.Dim(1) != value.Dim(1) {
		return fmt.Errorf("%w: key length %d != value length %d", ErrShapeMismatch, key.Dim(1), value.Dim(1))
	}

	if mask == nil {
		return nil
	}
	qLen, kLen := query.Dim(1), key.Dim(1)
	switch {
	case mask.NumDims() == 2 && mask.Dim(0) == qLen && mask.Dim(1) == kLen:
	case mask.NumDims() == 3 && mask.Dim(0) == query.Dim(0) && mask.Dim(1) == qLen && mask.Dim(2) == kLen:
	default:
		return fmt.Errorf("%w: mask must be [%d, %d] or [%d, %d, %d], got %v",
			ErrShapeMismatch, qLen, kLen, query.Dim(0), qLen, kLen, mask.Shape())
	}
	return nil
}

// splitHeads reshapes [batch, len, heads*head_dim] into [batch*heads, len, head_dim]
func splitHeads(x *tensor.Tensor, numHeads int) *tensor.Tensor {
	batch, seqLen, dModel := x.Dim(0), x.Dim(1), x.Dim(2)
	headDim := dModel / numHeads

	out := tensor.NewTensor([]int{batch * numHeads, seqLen, headDim})
	for b := 0; b < batch; b++ {
		for s := 0; s < seqLen; s++ {
			row := x.Row(b, s)
			for h := 0; h < numHeads; h++ {
				copy(out.Row(b*numHeads+h, s), row[h*headDim:(h+1)*headDim])
			}
		}
	}
	return out
}

// mergeHeads reshapes [batch*heads, len, head_dim] into [batch, len, heads*head_dim]
func mergeHeads(x *tensor.Tensor, batch, numHeads int) *tensor.Tensor {
	seqLen, headDim := x.Dim(1), x.Dim(2)

	out := tensor.NewTensor([]int{batch, seqLen, numHeads * headDim})
	for b := 0; b < batch; b++ {
		for s := 0; s < seqLen; s++ {
			row := out.Row(b, s)
			for h := 0; h < numHeads; h++ {
				copy(row[h*headDim:(h+1)*headDim], x.Row(b*numHeads+h, s))
			}
		}
	}
	return out
}

// applyMask sets scores to maskedScore wherever mask is zero.
// scores: [batch*heads, q_len, k_len]
func applyMask(scores, mask *tensor.Tensor, batch, numHeads int) {
	qLen, kLen := scores.Dim(1), scores.Dim(2)
	keep := func(b, i, j int) bool {
		if mask.NumDims() == 2 {
			return mask.At(i, j) != 0
		}
		return mask.At(b, i, j) != 0
	}

	for b := 0; b < batch; b++ {
		for i := 0; i < qLen; i++ {
			for j := 0; j < kLen; j++ {
				if keep(b, i, j) {
					continue
				}
				for h := 0; h < numHeads; h++ {
					scores.Set(maskedScore, b*numHeads+h, i, j)
				}
			}
		}
	}
}

// CausalMask returns a [seqLen, seqLen] mask that lets position i attend
// only to positions j <= i
func CausalMask(seqLen int) *tensor.Tensor {
	mask := tensor.NewTensor([]int{seqLen, seqLen})
	for i := 0; i < seqLen; i++ {
		for j := 0; j <= i; j++ {
			mask.Set(1, i, j)
		}
	}
	return mask
}

// HeadView is one head's attention over a single sequence
type HeadView struct {
	HeadID              int
	Weights             [][]float64 // [q_len][k_len]
	MaxAttentionIndices []int       // argmax key for every query position
	Description         string
}

// AttentionSnapshot holds per-head attention for a single sequence
type AttentionSnapshot struct {
	Tokens   []string
	NumHeads int
	Heads    []HeadView
	Shape    []int // [heads, q_len, k_len]
}

// Visualize runs self-attention over x ([1, seq, d_model] or [seq, d_model])
// and describes every head of the first batch item
func (a *MultiHeadAttention) Visualize(x *tensor.Tensor, tokens []string) (AttentionSnapshot, error) {
	if x.NumDims() == 2 {
		x = tensor.Reshape(x, append([]int{1}, x.Shape()...))
	}

	_, weights, err := a.Forward(x, x, x, nil)
	if err != nil {
		return AttentionSnapshot{}, err
	}

	heads := make([]HeadView, a.numHeads)
	for h := range heads {
		m := weights.Matrix(0, h)
		heads[h] = HeadView{
			HeadID:              h,
			Weights:             m,
			MaxAttentionIndices: rowArgmax(m),
			Description:         DescribeHead(m, tokens),
		}
	}

	return AttentionSnapshot{
		Tokens:   tokens,
		NumHeads: a.numHeads,
		Heads:    heads,
		Shape:    []int{a.numHeads, weights.Dim(2), weights.Dim(3)},
	}, nil
}

func rowArgmax(m [][]float64) []int {
	out := make([]int, len(m))
	for i, row := range m {
		if len(row) > 0 {
			out[i] = floats.MaxIdx(row)
		}
	}
	return out
}

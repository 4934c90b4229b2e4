package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// Block represents a single post-norm transformer block
// Architecture: h = norm1(x + attn(x, x, x)); out = norm2(h + ffn(h))
type Block struct {
	// Layer index
	layerIdx int

	// Sub-layers
	attn *MultiHeadAttention
	ffn  *FeedForward

	// Layer normalization
	norm1 *LayerNorm // after the attention residual
	norm2 *LayerNorm // after the feed-forward residual

	dropout float64
}

// NewBlock creates a transformer block from cfg. Parameters are drawn from
// src in a fixed order: attention, then feed-forward.
func NewBlock(cfg Config, layerIdx int, src rand.Source) (*Block, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	attn, err := NewMultiHeadAttention(cfg.DModel, cfg.NumHeads, cfg.Dropout, src)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention: %w", err)
	}

	ffn, err := NewFeedForward(cfg.DModel, cfg.DFF, cfg.activation(), cfg.Dropout, src)
	if err != nil {
		return nil, fmt.Errorf("failed to create FFN: %w", err)
	}

	norm1, err := NewLayerNorm(cfg.DModel, cfg.LayerNormEps)
	if err != nil {
		return nil, fmt.Errorf("failed to create norm1: %w", err)
	}
	norm2, err := NewLayerNorm(cfg.DModel, cfg.LayerNormEps)
	if err != nil {
		return nil, fmt.Errorf("failed to create norm2: %w", err)
	}

	return &Block{
		layerIdx: layerIdx,
		attn:     attn,
		ffn:      ffn,
		norm1:    norm1,
		norm2:    norm2,
		dropout:  cfg.Dropout,
	}, nil
}

// Attention returns the block's attention layer
func (l *Block) Attention() *MultiHeadAttention { return l.attn }

// FeedForward returns the block's feed-forward layer
func (l *Block) FeedForward() *FeedForward { return l.ffn }

// NumParams returns the number of parameters in the block
func (l *Block) NumParams() int {
	return l.attn.NumParams() + l.ffn.NumParams() + l.norm1.NumParams() + l.norm2.NumParams()
}

// Forward computes one transformer block
// Input: [batch_size, seq_len, d_model]
// mask: optional attention mask, see MultiHeadAttention.Forward
// Output: [batch_size, seq_len, d_model] and attention weights
// [batch_size, num_heads, seq_len, seq_len]
func (l *Block) Forward(x, mask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	return l.forward(x, mask, nil)
}

func (l *Block) forward(x, mask *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, error) {
	attnOut, weights, err := l.attn.forward(x, x, x, mask, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("layer %d attention: %w", l.layerIdx, err)
	}

	h, err := l.norm1.Forward(tensor.Add(x, dropout(attnOut, l.dropout, rng)))
	if err != nil {
		return nil, nil, fmt.Errorf("layer %d norm1: %w", l.layerIdx, err)
	}

	ffOut, err := l.ffn.forward(h, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("layer %d feed-forward: %w", l.layerIdx, err)
	}

	out, err := l.norm2.Forward(tensor.Add(h, dropout(ffOut, l.dropout, rng)))
	if err != nil {
		return nil, nil, fmt.Errorf("layer %d norm2: %w", l.layerIdx, err)
	}

	return out, weights, nil
}

// BlockSnapshot records every stage of a block for the first batch item
type BlockSnapshot struct {
	LayerIdx int

	// Residual stream stages, [seq][d_model]
	Input            [][]float64
	AfterAttention   [][]float64
	AfterNorm1       [][]float64
	AfterFeedForward [][]float64
	Output           [][]float64

	// Attention weights, [heads, seq, seq]
	AttentionWeights *tensor.Tensor

	// Per-token L2 norms of the sub-layer outputs added to the residual stream
	AttentionResidualNorms   []float64
	FeedForwardResidualNorms []float64

	// Attention output, feed-forward hidden activation and block output
	AttentionStats   ActivationStats
	FeedForwardStats ActivationStats
	OutputStats      ActivationStats
}

// Trace runs the block without dropout and records every stage. It also
// returns the block output so traces can be chained across layers.
func (l *Block) Trace(x, mask *tensor.Tensor) (BlockSnapshot, *tensor.Tensor, error) {
	attnOut, weights, err := l.attn.Forward(x, x, x, mask)
	if err != nil {
		return BlockSnapshot{}, nil, fmt.Errorf("layer %d attention: %w", l.layerIdx, err)
	}
	afterAttn := tensor.Add(x, attnOut)
	h, err := l.norm1.Forward(afterAttn)
	if err != nil {
		return BlockSnapshot{}, nil, err
	}

	ff, err := l.ffn.Trace(h)
	if err != nil {
		return BlockSnapshot{}, nil, fmt.Errorf("layer %d feed-forward: %w", l.layerIdx, err)
	}
	afterFF := tensor.Add(h, ff.Output)
	out, err := l.norm2.Forward(afterFF)
	if err != nil {
		return BlockSnapshot{}, nil, err
	}

	snap := BlockSnapshot{
		LayerIdx:                 l.layerIdx,
		Input:                    firstItem(x).Matrix(),
		AfterAttention:           firstItem(afterAttn).Matrix(),
		AfterNorm1:               firstItem(h).Matrix(),
		AfterFeedForward:         firstItem(afterFF).Matrix(),
		Output:                   firstItem(out).Matrix(),
		AttentionWeights:         firstItem(weights).Clone(),
		AttentionResidualNorms:   rowNorms(firstItem(attnOut)),
		FeedForwardResidualNorms: rowNorms(firstItem(ff.Output)),
		AttentionStats:           TensorStats(firstItem(attnOut)),
		FeedForwardStats:         ff.Hidden2Stats,
		OutputStats:              TensorStats(firstItem(out)),
	}
	return snap, out, nil
}

// residualStrength is the L2 norm of the per-token residual norms
func residualStrength(norms []float64) float64 {
	return floats.Norm(norms, 2)
}

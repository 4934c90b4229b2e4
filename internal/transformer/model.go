package transformer

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/tinylm/internal/logging"
	"github.com/xupit3r/tinylm/internal/tensor"
)

// lmHeadStd is the standard deviation of the output projection init
const lmHeadStd = 0.02

// Model represents a complete decoder-style transformer
type Model struct {
	config Config

	// Token embeddings plus positional encoding
	embedding *Embedding

	// Transformer blocks
	blocks []*Block

	// Final layer norm
	finalNorm *LayerNorm

	// Output projection to vocabulary, [d_model, vocab_size], no bias
	lmHead *Linear
}

// NewModel creates a model with parameters drawn from a source seeded by
// cfg.Seed. Two models built from the same Config are identical.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Activation == "" {
		cfg.Activation = ActivationGELU
	}

	src := NewSource(cfg.Seed)

	embedding, err := NewEmbedding(cfg.VocabSize, cfg.DModel, cfg.MaxSeqLen, cfg.Dropout, src)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	blocks := make([]*Block, cfg.NumLayers)
	for i := range blocks {
		blocks[i], err = NewBlock(cfg, i, src)
		if err != nil {
			return nil, fmt.Errorf("failed to create layer %d: %w", i, err)
		}
	}

	finalNorm, err := NewLayerNorm(cfg.DModel, cfg.LayerNormEps)
	if err != nil {
		return nil, fmt.Errorf("failed to create final norm: %w", err)
	}

	lmHead := &Linear{
		weight: normal(src, []int{cfg.DModel, cfg.VocabSize}, lmHeadStd),
		in:     cfg.DModel,
		out:    cfg.VocabSize,
	}

	m := &Model{
		config:    cfg,
		embedding: embedding,
		blocks:    blocks,
		finalNorm: finalNorm,
		lmHead:    lmHead,
	}

	logging.WithFields(logrus.Fields{
		"config": cfg.String(),
		"params": m.NumParams(),
	}).Debug("model created")

	return m, nil
}

// Config returns the model configuration
func (m *Model) Config() Config {
	return m.config
}

// Embedding returns the input embedding layer
func (m *Model) Embedding() *Embedding {
	return m.embedding
}

// Blocks returns the transformer blocks in order
func (m *Model) Blocks() []*Block {
	return append([]*Block(nil), m.blocks...)
}

// ForwardOptions adjusts a forward pass
type ForwardOptions struct {
	// Mask is an optional attention mask shared by every layer,
	// [seq, seq] or [batch, seq, seq]; zero entries are masked
	Mask *tensor.Tensor

	// Causal restricts every position to attend to itself and earlier
	// positions, combined with Mask when both are set
	Causal bool

	// DropoutSeed enables dropout with a generator seeded by the value.
	// Nil disables dropout.
	DropoutSeed *uint64
}

// Output holds the results of a forward pass
type Output struct {
	Logits           *tensor.Tensor   // [batch, seq, vocab_size]
	LastHidden       *tensor.Tensor   // final-norm output, [batch, seq, d_model]
	LayerOutputs     []*tensor.Tensor // per block, [batch, seq, d_model]
	AttentionWeights []*tensor.Tensor // per block, [batch, heads, seq, seq]
}

// Forward runs ids of shape [batch][seq] through the model
func (m *Model) Forward(ids [][]int, opts ForwardOptions) (*Output, error) {
	batch, seqLen, err := idsShape(ids)
	if err != nil {
		return nil, err
	}
	if seqLen > m.config.MaxSeqLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, seqLen, m.config.MaxSeqLen)
	}

	mask, err := buildMask(opts, batch, seqLen)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if opts.DropoutSeed != nil {
		rng = rand.New(NewSource(*opts.DropoutSeed))
	}

	x, err := m.embedding.forward(ids, rng)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	out := &Output{
		LayerOutputs:     make([]*tensor.Tensor, 0, len(m.blocks)),
		AttentionWeights: make([]*tensor.Tensor, 0, len(m.blocks)),
	}
	for _, block := range m.blocks {
		var weights *tensor.Tensor
		x, weights, err = block.forward(x, mask, rng)
		if err != nil {
			return nil, err
		}
		out.LayerOutputs = append(out.LayerOutputs, x)
		out.AttentionWeights = append(out.AttentionWeights, weights)
	}

	out.LastHidden, err = m.finalNorm.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("final norm: %w", err)
	}
	out.Logits, err = m.lmHead.Forward(out.LastHidden)
	if err != nil {
		return nil, fmt.Errorf("lm head: %w", err)
	}

	return out, nil
}

// buildMask resolves the attention mask for a forward pass
func buildMask(opts ForwardOptions, batch, seqLen int) (*tensor.Tensor, error) {
	if opts.Mask != nil {
		shape := opts.Mask.Shape()
		ok := (len(shape) == 2 && shape[0] == seqLen && shape[1] == seqLen) ||
			(len(shape) == 3 && shape[0] == batch && shape[1] == seqLen && shape[2] == seqLen)
		if !ok {
			return nil, fmt.Errorf("%w: mask shape %v for batch %d, seq %d", ErrShapeMismatch, shape, batch, seqLen)
		}
	}
	if !opts.Causal {
		return opts.Mask, nil
	}

	causal := CausalMask(seqLen)
	if opts.Mask == nil {
		return causal, nil
	}

	// Keep a position only when both masks keep it
	combined := opts.Mask.Clone()
	data := combined.Data()
	causalData := causal.Data()
	for i := range data {
		if causalData[i%len(causalData)] == 0 {
			data[i] = 0
		}
	}
	return combined, nil
}

// NextTokenProbabilities returns the softmax over the vocabulary of the
// logits at the last position of ids
func (m *Model) NextTokenProbabilities(ids []int) ([]float64, error) {
	out, err := m.Forward([][]int{ids}, ForwardOptions{})
	if err != nil {
		return nil, err
	}
	return lastProbabilities(out.Logits, 0), nil
}

// lastProbabilities returns softmax(logits[b, -1, :])
func lastProbabilities(logits *tensor.Tensor, b int) []float64 {
	probs := append([]float64(nil), logits.Row(b, logits.Dim(1)-1)...)
	tensor.SoftmaxInPlace(probs)
	return probs
}

// Candidate is one entry of a ranked next-token distribution
type Candidate struct {
	ID          int
	Probability float64
}

// TopCandidates returns the k most probable ids, highest first, ties
// broken by lower id
func TopCandidates(probs []float64, k int) []Candidate {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	k = min(max(k, 0), len(probs))
	out := make([]Candidate, k)
	for i := 0; i < k; i++ {
		out[i] = Candidate{ID: idx[i], Probability: probs[idx[i]]}
	}
	return out
}

// LayerStats summarizes one layer of a visualization pass
type LayerStats struct {
	LayerID             int
	InputMean           float64
	OutputMean          float64
	AttentionEntropy    float64
	AttentionResidual   float64 // L2 norm of per-token attention output norms
	FeedForwardResidual float64 // L2 norm of per-token feed-forward output norms
}

// LayerTrace pairs a layer's statistics with its full block snapshot
type LayerTrace struct {
	Stats LayerStats
	Block BlockSnapshot
}

// LayerVisualization shows how one sequence flows through every block
type LayerVisualization struct {
	Tokens      []string
	NumLayers   int
	Layers      []LayerTrace
	FinalOutput [][]float64 // last block output, before the final norm
}

// VisualizeLayers traces a single sequence through every block under the
// mask resolved from opts. Traces never apply dropout.
func (m *Model) VisualizeLayers(ids []int, tokens []string, opts ForwardOptions) (*LayerVisualization, error) {
	x, mask, err := m.prepareTrace(ids, opts)
	if err != nil {
		return nil, err
	}

	viz := &LayerVisualization{
		Tokens:    tokens,
		NumLayers: len(m.blocks),
		Layers:    make([]LayerTrace, 0, len(m.blocks)),
	}
	for i, block := range m.blocks {
		snap, next, err := block.Trace(x, mask)
		if err != nil {
			return nil, err
		}
		viz.Layers = append(viz.Layers, LayerTrace{
			Stats: LayerStats{
				LayerID:             i,
				InputMean:           tensor.Mean(x),
				OutputMean:          tensor.Mean(next),
				AttentionEntropy:    AttentionEntropy(snap.AttentionWeights),
				AttentionResidual:   residualStrength(snap.AttentionResidualNorms),
				FeedForwardResidual: residualStrength(snap.FeedForwardResidualNorms),
			},
			Block: snap,
		})
		x = next
	}
	viz.FinalOutput = firstItem(x).Matrix()

	return viz, nil
}

// LayerInspection holds per-stage statistics of one block
type LayerInspection struct {
	Layer            int
	Attention        ActivationStats // attention output
	FeedForward      ActivationStats // feed-forward hidden activation
	Output           ActivationStats // block output
	AttentionWeights *tensor.Tensor  // [heads, seq, seq]
	AttentionEntropy float64
}

// Inspection is a read-only snapshot of a forward pass over one sequence
type Inspection struct {
	SequenceLength int
	Embeddings     ActivationStats
	Layers         []LayerInspection
	FinalHidden    ActivationStats
	Logits         []float64 // last position
	Probabilities  []float64 // softmax of Logits
}

// Inspect runs a single sequence under the mask resolved from opts and
// collects statistics at every stage
func (m *Model) Inspect(ids []int, opts ForwardOptions) (*Inspection, error) {
	x, mask, err := m.prepareTrace(ids, opts)
	if err != nil {
		return nil, err
	}

	ins := &Inspection{
		SequenceLength: len(ids),
		Embeddings:     TensorStats(x),
		Layers:         make([]LayerInspection, 0, len(m.blocks)),
	}
	for i, block := range m.blocks {
		snap, next, err := block.Trace(x, mask)
		if err != nil {
			return nil, err
		}
		ins.Layers = append(ins.Layers, LayerInspection{
			Layer:            i,
			Attention:        snap.AttentionStats,
			FeedForward:      snap.FeedForwardStats,
			Output:           snap.OutputStats,
			AttentionWeights: snap.AttentionWeights,
			AttentionEntropy: AttentionEntropy(snap.AttentionWeights),
		})
		x = next
	}

	hidden, err := m.finalNorm.Forward(x)
	if err != nil {
		return nil, err
	}
	logits, err := m.lmHead.Forward(hidden)
	if err != nil {
		return nil, err
	}

	ins.FinalHidden = TensorStats(hidden)
	ins.Logits = append([]float64(nil), logits.Row(0, len(ids)-1)...)
	ins.Probabilities = lastProbabilities(logits, 0)
	return ins, nil
}

// prepareTrace embeds one sequence and resolves its attention mask
func (m *Model) prepareTrace(ids []int, opts ForwardOptions) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(ids) > m.config.MaxSeqLen {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, len(ids), m.config.MaxSeqLen)
	}
	mask, err := buildMask(opts, 1, len(ids))
	if err != nil {
		return nil, nil, err
	}
	x, err := m.embedding.Forward([][]int{ids})
	if err != nil {
		return nil, nil, err
	}
	return x, mask, nil
}

// ModelInfo describes the architecture and parameter breakdown
type ModelInfo struct {
	VocabSize       int
	DModel          int
	NumHeads        int
	NumLayers       int
	DFF             int
	MaxSeqLen       int
	Activation      Activation
	TotalParams     int
	EmbeddingParams int
	BlockParams     int
	LMHeadParams    int
}

// Info returns the architecture and parameter counts
func (m *Model) Info() ModelInfo {
	blockParams := 0
	for _, b := range m.blocks {
		blockParams += b.NumParams()
	}
	return ModelInfo{
		VocabSize:       m.config.VocabSize,
		DModel:          m.config.DModel,
		NumHeads:        m.config.NumHeads,
		NumLayers:       m.config.NumLayers,
		DFF:             m.config.DFF,
		MaxSeqLen:       m.config.MaxSeqLen,
		Activation:      m.config.Activation,
		TotalParams:     m.NumParams(),
		EmbeddingParams: m.embedding.token.Info().NumParams,
		BlockParams:     blockParams,
		LMHeadParams:    m.lmHead.NumParams(),
	}
}

// NumParams returns the total number of parameters, including the
// final norm
func (m *Model) NumParams() int {
	total := m.embedding.token.Info().NumParams + m.finalNorm.NumParams() + m.lmHead.NumParams()
	for _, b := range m.blocks {
		total += b.NumParams()
	}
	return total
}

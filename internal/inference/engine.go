package inference

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/tinylm/internal/config"
	"github.com/xupit3r/tinylm/internal/logging"
	"github.com/xupit3r/tinylm/internal/tensor"
	"github.com/xupit3r/tinylm/internal/tokenizer"
	"github.com/xupit3r/tinylm/internal/transformer"
)

// Engine ties a tokenizer to a model sized for its vocabulary
type Engine struct {
	model     *transformer.Model
	tokenizer *tokenizer.Tokenizer
	config    *config.Config
}

// Encoded is a piece of text together with its token ids
type Encoded struct {
	Text   string
	IDs    []int
	Tokens []string
}

// Result holds a single-sequence forward pass
type Result struct {
	Encoded
	Output *transformer.Output
}

// BatchResult holds a padded batch forward pass. Lengths records the
// unpadded length of every row.
type BatchResult struct {
	Inputs  []Encoded
	Lengths []int
	Output  *transformer.Output
}

// Prediction is one decoded next-token candidate
type Prediction struct {
	ID          int
	Token       string
	Probability float64
}

// NewEngine creates an engine whose tokenizer comes from the configured
// vocabulary file, corpus file or the built-in sample corpus
func NewEngine(cfg *config.Config) (*Engine, error) {
	return NewEngineForText(cfg, "")
}

// NewEngineForText is NewEngine, except that with tokenizer.dynamic set the
// vocabulary is trained on the base text plus text
func NewEngineForText(cfg *config.Config, text string) (*Engine, error) {
	tok, err := LoadTokenizer(cfg, text)
	if err != nil {
		return nil, err
	}
	return NewEngineWithTokenizer(cfg, tok)
}

// NewEngineWithTokenizer builds the model around an existing tokenizer
func NewEngineWithTokenizer(cfg *config.Config, tok *tokenizer.Tokenizer) (*Engine, error) {
	model, err := transformer.NewModel(cfg.ModelConfig(tok.VocabSize()))
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	logging.WithFields(logrus.Fields{
		"vocab_size": tok.VocabSize(),
		"params":     model.NumParams(),
	}).Info("engine ready")

	return &Engine{
		model:     model,
		tokenizer: tok,
		config:    cfg,
	}, nil
}

// LoadTokenizer resolves the tokenizer source in order of precedence:
// an existing vocabulary file, dynamic training on text, a corpus file,
// then the sample corpus
func LoadTokenizer(cfg *config.Config, text string) (*tokenizer.Tokenizer, error) {
	tc := cfg.Tokenizer

	if tc.VocabFile != "" {
		if _, err := os.Stat(tc.VocabFile); err == nil {
			logging.Debugf("loading vocabulary from %s", tc.VocabFile)
			return tokenizer.LoadFile(tc.VocabFile)
		}
	}

	if tc.Dynamic {
		logging.Debugf("training dynamic vocabulary (%d tokens)", tc.VocabSize)
		return tokenizer.TrainDynamic(text, tc.VocabSize), nil
	}

	if tc.CorpusFile != "" {
		corpus, err := os.ReadFile(tc.CorpusFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
		logging.Debugf("training vocabulary on %s (%d tokens)", tc.CorpusFile, tc.VocabSize)
		return tokenizer.Train(string(corpus), tc.VocabSize), nil
	}

	return tokenizer.TrainSample(tc.VocabSize), nil
}

// Config returns the configuration the engine was built from
func (e *Engine) Config() *config.Config {
	return e.config
}

// Model returns the underlying model
func (e *Engine) Model() *transformer.Model {
	return e.model
}

// Tokenizer returns the underlying tokenizer
func (e *Engine) Tokenizer() *tokenizer.Tokenizer {
	return e.tokenizer
}

// Encode tokenizes text and rejects sequences longer than the model context
func (e *Engine) Encode(text string) (Encoded, error) {
	ids := e.tokenizer.Encode(text)
	if limit := e.model.Config().MaxSeqLen; len(ids) > limit {
		return Encoded{}, fmt.Errorf("%w: %d tokens > %d", transformer.ErrSequenceTooLong, len(ids), limit)
	}

	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = e.tokenizer.IDToToken(id)
	}
	return Encoded{Text: text, IDs: ids, Tokens: tokens}, nil
}

// Tokenize describes every token of text
func (e *Engine) Tokenize(text string) []tokenizer.Token {
	return e.tokenizer.Visualize(text)
}

// Forward runs text through the model
func (e *Engine) Forward(ctx context.Context, text string, opts transformer.ForwardOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := e.Encode(text)
	if err != nil {
		return nil, err
	}

	out, err := e.model.Forward([][]int{enc.IDs}, opts)
	if err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}
	return &Result{Encoded: enc, Output: out}, nil
}

// ForwardBatch pads texts with PAD to a common length and runs them as one
// batch. Unless opts.Mask is set, padded key positions are masked so every
// real position sees the same context as in an unbatched pass.
func (e *Engine) ForwardBatch(ctx context.Context, texts []string, opts transformer.ForwardOptions) (*BatchResult, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty batch", transformer.ErrShapeMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := make([]Encoded, len(texts))
	lengths := make([]int, len(texts))
	seqLen := 0
	for i, text := range texts {
		enc, err := e.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		inputs[i] = enc
		lengths[i] = len(enc.IDs)
		seqLen = max(seqLen, len(enc.IDs))
	}

	ids := make([][]int, len(texts))
	for i, enc := range inputs {
		row := make([]int, seqLen)
		copy(row, enc.IDs)
		for j := len(enc.IDs); j < seqLen; j++ {
			row[j] = e.tokenizer.PADID()
		}
		ids[i] = row
	}

	if opts.Mask == nil {
		opts.Mask = paddingMask(lengths, seqLen)
	}

	out, err := e.model.Forward(ids, opts)
	if err != nil {
		return nil, fmt.Errorf("batch forward pass failed: %w", err)
	}
	return &BatchResult{Inputs: inputs, Lengths: lengths, Output: out}, nil
}

// paddingMask returns a [batch, seq, seq] mask that hides key positions
// past each row's length
func paddingMask(lengths []int, seqLen int) *tensor.Tensor {
	mask := tensor.Ones([]int{len(lengths), seqLen, seqLen})
	for b, n := range lengths {
		for i := 0; i < seqLen; i++ {
			for j := n; j < seqLen; j++ {
				mask.Set(0, b, i, j)
			}
		}
	}
	return mask
}

// Predict returns the k most probable next tokens after text
func (e *Engine) Predict(ctx context.Context, text string, k int) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := e.Encode(text)
	if err != nil {
		return nil, err
	}

	probs, err := e.model.NextTokenProbabilities(enc.IDs)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	candidates := transformer.TopCandidates(probs, k)
	out := make([]Prediction, len(candidates))
	for i, c := range candidates {
		out[i] = Prediction{
			ID:          c.ID,
			Token:       e.tokenizer.IDToToken(c.ID),
			Probability: c.Probability,
		}
	}
	return out, nil
}

// Inspect collects per-stage statistics for a forward pass over text
func (e *Engine) Inspect(ctx context.Context, text string, opts transformer.ForwardOptions) (*transformer.Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := e.Encode(text)
	if err != nil {
		return nil, err
	}
	return e.model.Inspect(enc.IDs, opts)
}

// Layers traces text through every block
func (e *Engine) Layers(ctx context.Context, text string, opts transformer.ForwardOptions) (*transformer.LayerVisualization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := e.Encode(text)
	if err != nil {
		return nil, err
	}
	return e.model.VisualizeLayers(enc.IDs, enc.Tokens, opts)
}

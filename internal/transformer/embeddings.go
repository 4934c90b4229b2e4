package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/xupit3r/tinylm/internal/tensor"
)

// TokenEmbedding maps token ids to dense vectors scaled by sqrt(d_model)
type TokenEmbedding struct {
	table     *tensor.Tensor // [vocab_size, d_model]
	vocabSize int
	dModel    int
	scale     float64
}

// NewTokenEmbedding creates a Xavier-uniform initialized embedding table
func NewTokenEmbedding(vocabSize, dModel int, src rand.Source) (*TokenEmbedding, error) {
	if vocabSize <= 0 || dModel <= 0 {
		return nil, fmt.Errorf("%w: embedding needs positive vocab_size and d_model, got %d and %d", ErrConfiguration, vocabSize, dModel)
	}

	return &TokenEmbedding{
		table:     xavierUniform(src, vocabSize, dModel),
		vocabSize: vocabSize,
		dModel:    dModel,
		scale:     math.Sqrt(float64(dModel)),
	}, nil
}

// Forward looks up ids of shape [batch][seq] and returns [batch, seq, d_model]
func (e *TokenEmbedding) Forward(ids [][]int) (*tensor.Tensor, error) {
	batch, seqLen, err := idsShape(ids)
	if err != nil {
		return nil, err
	}

	out := tensor.NewTensor([]int{batch, seqLen, e.dModel})
	for b, row := range ids {
		for s, id := range row {
			if id < 0 || id >= e.vocabSize {
				return nil, fmt.Errorf("%w: id %d at [%d,%d] (vocab size %d)", ErrTokenOutOfRange, id, b, s, e.vocabSize)
			}
			floats.ScaleTo(out.Row(b, s), e.scale, e.table.Row(id))
		}
	}
	return out, nil
}

// Similarities returns the cosine similarity between the embeddings of
// every pair of ids
func (e *TokenEmbedding) Similarities(ids []int) ([][]float64, error) {
	vecs := make([][]float64, len(ids))
	for i, id := range ids {
		if id < 0 || id >= e.vocabSize {
			return nil, fmt.Errorf("%w: id %d (vocab size %d)", ErrTokenOutOfRange, id, e.vocabSize)
		}
		vecs[i] = e.table.Row(id)
	}

	sims := make([][]float64, len(ids))
	for i := range vecs {
		sims[i] = make([]float64, len(ids))
		for j := range vecs {
			sims[i][j] = cosine(vecs[i], vecs[j])
		}
	}
	return sims, nil
}

func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// EmbeddingInfo describes an embedding table
type EmbeddingInfo struct {
	VocabSize    int
	EmbeddingDim int
	NumParams    int
}

// Info returns the table dimensions and parameter count
func (e *TokenEmbedding) Info() EmbeddingInfo {
	return EmbeddingInfo{
		VocabSize:    e.vocabSize,
		EmbeddingDim: e.dModel,
		NumParams:    e.vocabSize * e.dModel,
	}
}

// PositionalEncoding holds the precomputed sinusoidal position table
type PositionalEncoding struct {
	table     *tensor.Tensor // [max_seq_len, d_model]
	dModel    int
	maxSeqLen int
}

// NewPositionalEncoding precomputes
// PE(p, d) = sin(p / 10000^(2⌊d/2⌋/d_model)) for even d, cos(...) for odd d
func NewPositionalEncoding(dModel, maxSeqLen int) (*PositionalEncoding, error) {
	if dModel <= 0 || maxSeqLen <= 0 {
		return nil, fmt.Errorf("%w: positional encoding needs positive d_model and max_seq_len, got %d and %d", ErrConfiguration, dModel, maxSeqLen)
	}

	table := tensor.NewTensor([]int{maxSeqLen, dModel})
	for p := 0; p < maxSeqLen; p++ {
		row := table.Row(p)
		for d := 0; d < dModel; d++ {
			exponent := float64(2*(d/2)) / float64(dModel)
			angle := float64(p) / math.Pow(10000, exponent)
			if d%2 == 0 {
				row[d] = math.Sin(angle)
			} else {
				row[d] = math.Cos(angle)
			}
		}
	}

	return &PositionalEncoding{table: table, dModel: dModel, maxSeqLen: maxSeqLen}, nil
}

// Forward adds the encoding to x of shape [batch, seq, d_model]
func (pe *PositionalEncoding) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.NumDims() != 3 || x.Dim(2) != pe.dModel {
		return nil, fmt.Errorf("%w: positional encoding expects [batch, seq, %d], got %v", ErrShapeMismatch, pe.dModel, x.Shape())
	}
	seqLen := x.Dim(1)
	if seqLen > pe.maxSeqLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, seqLen, pe.maxSeqLen)
	}

	out := x.Clone()
	for b := 0; b < x.Dim(0); b++ {
		for s := 0; s < seqLen; s++ {
			floats.Add(out.Row(b, s), pe.table.Row(s))
		}
	}
	return out, nil
}

// Patterns returns a copy of the first seqLen rows of the table
func (pe *PositionalEncoding) Patterns(seqLen int) (*tensor.Tensor, error) {
	if seqLen < 0 || seqLen > pe.maxSeqLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, seqLen, pe.maxSeqLen)
	}
	data := append([]float64(nil), pe.table.Data()[:seqLen*pe.dModel]...)
	return tensor.NewTensorFromData(data, []int{seqLen, pe.dModel}), nil
}

// Embedding combines token embeddings with positional encoding
type Embedding struct {
	token   *TokenEmbedding
	pos     *PositionalEncoding
	dropout float64
}

// NewEmbedding creates the combined input embedding layer
func NewEmbedding(vocabSize, dModel, maxSeqLen int, dropoutRate float64, src rand.Source) (*Embedding, error) {
	token, err := NewTokenEmbedding(vocabSize, dModel, src)
	if err != nil {
		return nil, err
	}
	pos, err := NewPositionalEncoding(dModel, maxSeqLen)
	if err != nil {
		return nil, err
	}
	return &Embedding{token: token, pos: pos, dropout: dropoutRate}, nil
}

// Token returns the token embedding table
func (e *Embedding) Token() *TokenEmbedding { return e.token }

// Positional returns the positional encoder
func (e *Embedding) Positional() *PositionalEncoding { return e.pos }

// Forward returns token embeddings plus positional encoding, [batch, seq, d_model]
func (e *Embedding) Forward(ids [][]int) (*tensor.Tensor, error) {
	return e.forward(ids, nil)
}

func (e *Embedding) forward(ids [][]int, rng *rand.Rand) (*tensor.Tensor, error) {
	tok, err := e.token.Forward(ids)
	if err != nil {
		return nil, err
	}
	x, err := e.pos.Forward(tok)
	if err != nil {
		return nil, err
	}
	return dropout(x, e.dropout, rng), nil
}

// EmbeddingSnapshot holds the stages of embedding one sequence
type EmbeddingSnapshot struct {
	Tokens              []string
	TokenEmbeddings     [][]float64 // [seq][d_model], scaled lookups
	PositionalEncodings [][]float64 // [seq][d_model]
	FinalEmbeddings     [][]float64 // [seq][d_model]
	EmbeddingDim        int
	SequenceLength      int
}

// Visualize embeds a single sequence and returns every stage
func (e *Embedding) Visualize(ids []int, tokens []string) (EmbeddingSnapshot, error) {
	tok, err := e.token.Forward([][]int{ids})
	if err != nil {
		return EmbeddingSnapshot{}, err
	}
	final, err := e.pos.Forward(tok)
	if err != nil {
		return EmbeddingSnapshot{}, err
	}
	pos, err := e.pos.Patterns(len(ids))
	if err != nil {
		return EmbeddingSnapshot{}, err
	}

	return EmbeddingSnapshot{
		Tokens:              tokens,
		TokenEmbeddings:     tok.Matrix(0),
		PositionalEncodings: pos.Matrix(),
		FinalEmbeddings:     final.Matrix(0),
		EmbeddingDim:        e.token.dModel,
		SequenceLength:      len(ids),
	}, nil
}

// idsShape validates that ids is a non-ragged [batch][seq] slice
func idsShape(ids [][]int) (batch, seqLen int, err error) {
	if len(ids) == 0 {
		return 0, 0, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	seqLen = len(ids[0])
	if seqLen == 0 {
		return 0, 0, fmt.Errorf("%w: empty sequence", ErrShapeMismatch)
	}
	for b, row := range ids {
		if len(row) != seqLen {
			return 0, 0, fmt.Errorf("%w: batch row %d has length %d, expected %d", ErrShapeMismatch, b, len(row), seqLen)
		}
	}
	return len(ids), seqLen, nil
}

package transformer

import (
	"fmt"
)

// Activation selects the feed-forward non-linearity
type Activation string

const (
	// ActivationGELU is the exact error-function GELU
	ActivationGELU Activation = "gelu"
	// ActivationGELUTanh is the tanh approximation of GELU
	ActivationGELUTanh Activation = "gelu_tanh"
)

// Config holds transformer model hyperparameters
type Config struct {
	// Sequence and dimensions
	VocabSize int // Vocabulary size
	DModel    int // Model dimension
	NumLayers int // Number of transformer blocks
	DFF       int // Feed-forward inner dimension
	MaxSeqLen int // Maximum sequence length

	// Attention configuration
	NumHeads int // Number of attention heads

	// Regularization, only applied when a forward pass asks for it
	Dropout float64

	// Feed-forward activation, defaults to exact GELU when empty
	Activation Activation

	// LayerNorm epsilon
	LayerNormEps float64

	// Seed for parameter initialization
	Seed uint64
}

// DefaultConfig returns a small educational model configuration
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:    vocabSize,
		DModel:       256,
		NumLayers:    6,
		DFF:          1024,
		MaxSeqLen:    128,
		NumHeads:     8,
		Dropout:      0.1,
		Activation:   ActivationGELU,
		LayerNormEps: 1e-5,
		Seed:         42,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: vocab_size must be positive, got %d", ErrConfiguration, c.VocabSize)
	}
	if c.DModel <= 0 {
		return fmt.Errorf("%w: d_model must be positive, got %d", ErrConfiguration, c.DModel)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("%w: num_layers must be positive, got %d", ErrConfiguration, c.NumLayers)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("%w: num_heads must be positive, got %d", ErrConfiguration, c.NumHeads)
	}
	if c.DModel%c.NumHeads != 0 {
		return fmt.Errorf("%w: d_model (%d) must be divisible by num_heads (%d)", ErrConfiguration, c.DModel, c.NumHeads)
	}
	if c.DFF <= 0 {
		return fmt.Errorf("%w: d_ff must be positive, got %d", ErrConfiguration, c.DFF)
	}
	if c.MaxSeqLen <= 0 {
		return fmt.Errorf("%w: max_seq_len must be positive, got %d", ErrConfiguration, c.MaxSeqLen)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1), got %f", ErrConfiguration, c.Dropout)
	}
	if _, err := activationFunc(c.activation()); err != nil {
		return err
	}
	if c.LayerNormEps <= 0 {
		return fmt.Errorf("%w: layer_norm_eps must be positive, got %e", ErrConfiguration, c.LayerNormEps)
	}

	return nil
}

func (c *Config) activation() Activation {
	if c.Activation == "" {
		return ActivationGELU
	}
	return c.Activation
}

// HeadDim returns the dimension per head
func (c *Config) HeadDim() int {
	return c.DModel / c.NumHeads
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{vocab=%d, dim=%d, layers=%d, heads=%d, head_dim=%d, ffn=%d, ctx=%d, act=%s, eps=%e, seed=%d}",
		c.VocabSize, c.DModel, c.NumLayers, c.NumHeads, c.HeadDim(), c.DFF, c.MaxSeqLen,
		c.activation(), c.LayerNormEps, c.Seed,
	)
}

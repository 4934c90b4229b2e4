package transformer

import "errors"

var (
	// ErrConfiguration marks an invalid hyperparameter combination, such as
	// d_model not divisible by num_heads. Returned only by constructors.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrShapeMismatch marks an input whose shape disagrees with the
	// component's configured dimensions
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrSequenceTooLong marks an input longer than max_seq_len
	ErrSequenceTooLong = errors.New("sequence exceeds maximum length")

	// ErrTokenOutOfRange marks a token id outside the embedding table
	ErrTokenOutOfRange = errors.New("token id out of range")
)

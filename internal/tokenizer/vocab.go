package tokenizer

import (
	"errors"
	"unicode/utf8"
)

// Special tokens occupy the lowest ids, in this order
const (
	BOSToken = "<BOS>"
	EOSToken = "<EOS>"
	PADToken = "<PAD>"
	UNKToken = "<UNK>"
)

var specialTokens = []string{BOSToken, EOSToken, PADToken, UNKToken}

// ErrDecodeIndex is returned when Decode receives an id outside the vocabulary
var ErrDecodeIndex = errors.New("token id not in vocabulary")

// Merge is a learned BPE rule: adjacent symbols Left and Right become Left+Right
type Merge struct {
	Left  string
	Right string
}

// Result returns the symbol produced by the merge
func (m Merge) Result() string {
	return m.Left + m.Right
}

func (m Merge) String() string {
	return m.Left + " " + m.Right
}

// Tokenizer implements BPE (Byte-Pair Encoding) tokenization.
// It is immutable once trained or loaded and safe for concurrent use.
type Tokenizer struct {
	// Vocabulary: token string → token ID
	vocab map[string]int

	// Reverse vocabulary: token ID → token string
	tokens []string

	// Merge rules in the order they were learned
	merges []Merge
}

// NewTokenizer creates a tokenizer holding only the special tokens
func NewTokenizer() *Tokenizer {
	t := &Tokenizer{
		vocab:  make(map[string]int),
		tokens: make([]string, 0, len(specialTokens)),
	}
	for _, tok := range specialTokens {
		t.addToken(tok)
	}
	return t
}

// addToken appends tok to the vocabulary if it is not present and
// reports whether it was added
func (t *Tokenizer) addToken(tok string) bool {
	if _, ok := t.vocab[tok]; ok {
		return false
	}
	t.vocab[tok] = len(t.tokens)
	t.tokens = append(t.tokens, tok)
	return true
}

// VocabSize returns the vocabulary size
func (t *Tokenizer) VocabSize() int {
	return len(t.tokens)
}

// BOSID returns the beginning-of-sequence token ID
func (t *Tokenizer) BOSID() int { return 0 }

// EOSID returns the end-of-sequence token ID
func (t *Tokenizer) EOSID() int { return 1 }

// PADID returns the padding token ID
func (t *Tokenizer) PADID() int { return 2 }

// UNKID returns the unknown token ID
func (t *Tokenizer) UNKID() int { return 3 }

// NumSpecial returns the number of reserved special tokens
func (t *Tokenizer) NumSpecial() int {
	return len(specialTokens)
}

// IsSpecial reports whether id is one of the reserved special tokens
func (t *Tokenizer) IsSpecial(id int) bool {
	return id >= 0 && id < len(specialTokens)
}

// TokenToID returns the ID of a token string, or -1 if absent
func (t *Tokenizer) TokenToID(token string) int {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return -1
}

// IDToToken returns the token string for an ID, or "" if out of range
func (t *Tokenizer) IDToToken(id int) string {
	if id < 0 || id >= len(t.tokens) {
		return ""
	}
	return t.tokens[id]
}

// Tokens returns a copy of the vocabulary ordered by ID
func (t *Tokenizer) Tokens() []string {
	return append([]string(nil), t.tokens...)
}

// Merges returns a copy of the merge rules in training order
func (t *Tokenizer) Merges() []Merge {
	return append([]Merge(nil), t.merges...)
}

// TokenType classifies a token for inspection
type TokenType string

const (
	TypeSpecial   TokenType = "special"
	TypeCharacter TokenType = "character"
	TypeSubword   TokenType = "subword"
)

// Token describes one position of an encoded sequence
type Token struct {
	Position int
	ID       int
	Text     string
	Type     TokenType
}

// Visualize encodes text and describes every resulting token
func (t *Tokenizer) Visualize(text string) []Token {
	ids := t.Encode(text)
	out := make([]Token, len(ids))
	for i, id := range ids {
		tok := t.IDToToken(id)
		out[i] = Token{
			Position: i,
			ID:       id,
			Text:     tok,
			Type:     t.classify(id, tok),
		}
	}
	return out
}

func (t *Tokenizer) classify(id int, tok string) TokenType {
	switch {
	case t.IsSpecial(id):
		return TypeSpecial
	case utf8.RuneCountInString(tok) == 1:
		return TypeCharacter
	default:
		return TypeSubword
	}
}

// VocabInfo summarizes a trained vocabulary
type VocabInfo struct {
	VocabSize     int
	NumMerges     int
	SpecialTokens map[string]int
	SampleTokens  []string // first 20 tokens by ID
}

// Info returns vocabulary statistics
func (t *Tokenizer) Info() VocabInfo {
	special := make(map[string]int, len(specialTokens))
	for id, tok := range specialTokens {
		special[tok] = id
	}
	n := min(20, len(t.tokens))
	return VocabInfo{
		VocabSize:     len(t.tokens),
		NumMerges:     len(t.merges),
		SpecialTokens: special,
		SampleTokens:  append([]string(nil), t.tokens[:n]...),
	}
}

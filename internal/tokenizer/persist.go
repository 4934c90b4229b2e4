package tokenizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// vocabFile is the on-disk form of a tokenizer: tokens ordered by ID and
// merges in training order
type vocabFile struct {
	Tokens []string    `json:"tokens"`
	Merges [][2]string `json:"merges"`
}

// Save writes the tokenizer as JSON
func (t *Tokenizer) Save(w io.Writer) error {
	vf := vocabFile{
		Tokens: t.tokens,
		Merges: make([][2]string, len(t.merges)),
	}
	for i, m := range t.merges {
		vf.Merges[i] = [2]string{m.Left, m.Right}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vf); err != nil {
		return fmt.Errorf("tokenizer: encoding vocabulary: %w", err)
	}
	return nil
}

// Load reads a tokenizer written by Save and validates it
func Load(r io.Reader) (*Tokenizer, error) {
	var vf vocabFile
	if err := json.NewDecoder(r).Decode(&vf); err != nil {
		return nil, fmt.Errorf("tokenizer: decoding vocabulary: %w", err)
	}

	if len(vf.Tokens) < len(specialTokens) {
		return nil, fmt.Errorf("tokenizer: vocabulary has %d tokens, need at least %d", len(vf.Tokens), len(specialTokens))
	}
	for id, tok := range specialTokens {
		if vf.Tokens[id] != tok {
			return nil, fmt.Errorf("tokenizer: id %d is %q, expected special token %q", id, vf.Tokens[id], tok)
		}
	}

	t := &Tokenizer{
		vocab:  make(map[string]int, len(vf.Tokens)),
		tokens: make([]string, 0, len(vf.Tokens)),
		merges: make([]Merge, 0, len(vf.Merges)),
	}
	for _, tok := range vf.Tokens {
		if !t.addToken(tok) {
			return nil, fmt.Errorf("tokenizer: duplicate token %q", tok)
		}
	}
	for i, pair := range vf.Merges {
		m := Merge{Left: pair[0], Right: pair[1]}
		if _, ok := t.vocab[m.Result()]; !ok {
			return nil, fmt.Errorf("tokenizer: merge %d (%s) produces %q which is not in the vocabulary", i, m, m.Result())
		}
		t.merges = append(t.merges, m)
	}

	return t, nil
}

// SaveFile writes the tokenizer to path, creating parent directories
func (t *Tokenizer) SaveFile(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("tokenizer: creating directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tokenizer: failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("tokenizer: failed to close file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if err := t.Save(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("tokenizer: failed to flush writer: %w", err)
	}
	return nil
}

// LoadFile reads a tokenizer from path
func LoadFile(path string) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: failed to open file: %w", err)
	}
	defer f.Close()

	return Load(bufio.NewReader(f))
}

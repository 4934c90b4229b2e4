package tokenizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/tinylm/internal/logging"
)

// wordPattern extracts words: runs of letters, marks, digits and underscores
var wordPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)

// progressInterval is how often training reports progress, in merges
const progressInterval = 50

// splitWords lowercases text and returns its words in order
func splitWords(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// splitChars splits a word into single-character symbols
func splitChars(word string) []string {
	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	return symbols
}

// Train builds a BPE vocabulary from text.
//
// Algorithm:
//  1. Seed the vocabulary with the special tokens, then every distinct
//     character of the training words in sorted order
//  2. Count adjacent symbol pairs inside each word, weighted by word frequency
//  3. Merge the most frequent pair everywhere and add the result
//  4. Repeat until vocabSize is reached or no pairs remain
//
// Ties between equally frequent pairs go to the lexicographically smallest
// (Left, Right) pair. The vocabulary may end up smaller than vocabSize.
func Train(text string, vocabSize int) *Tokenizer {
	t := NewTokenizer()

	// Word frequencies, iterated in sorted order
	freqs := make(map[string]int)
	for _, w := range splitWords(text) {
		freqs[w]++
	}
	words := make([]string, 0, len(freqs))
	for w := range freqs {
		words = append(words, w)
	}
	sort.Strings(words)

	chars := make(map[string]struct{})
	symbols := make([][]string, len(words))
	for i, w := range words {
		symbols[i] = splitChars(w)
		for _, c := range symbols[i] {
			chars[c] = struct{}{}
		}
	}
	sortedChars := make([]string, 0, len(chars))
	for c := range chars {
		sortedChars = append(sortedChars, c)
	}
	sort.Strings(sortedChars)
	for _, c := range sortedChars {
		t.addToken(c)
	}

	logging.WithFields(logrus.Fields{
		"words":      len(words),
		"characters": len(sortedChars),
		"target":     vocabSize,
	}).Debug("training BPE tokenizer")

	for t.VocabSize() < vocabSize {
		best, count := bestPair(words, symbols, freqs)
		if count == 0 {
			break
		}

		for i := range symbols {
			symbols[i] = applyMerge(symbols[i], best)
		}
		t.addToken(best.Result())
		t.merges = append(t.merges, best)

		if len(t.merges)%progressInterval == 0 {
			logging.WithFields(logrus.Fields{
				"merges": len(t.merges),
				"vocab":  t.VocabSize(),
			}).Debug("bpe progress")
		}
	}

	logging.Infof("tokenizer trained: %d tokens, %d merges", t.VocabSize(), len(t.merges))
	return t
}

// bestPair returns the most frequent adjacent pair and its weighted count
func bestPair(words []string, symbols [][]string, freqs map[string]int) (Merge, int) {
	counts := make(map[Merge]int)
	for i, syms := range symbols {
		f := freqs[words[i]]
		for j := 0; j+1 < len(syms); j++ {
			counts[Merge{syms[j], syms[j+1]}] += f
		}
	}

	var best Merge
	bestCount := 0
	for p, c := range counts {
		if c > bestCount || (c == bestCount && pairLess(p, best)) {
			best, bestCount = p, c
		}
	}
	return best, bestCount
}

func pairLess(a, b Merge) bool {
	if a.Left != b.Left {
		return a.Left < b.Left
	}
	return a.Right < b.Right
}

// applyMerge replaces every non-overlapping occurrence of the pair,
// scanning left to right
func applyMerge(word []string, merge Merge) []string {
	if len(word) < 2 {
		return word
	}

	merged := make([]string, 0, len(word))
	i := 0
	for i < len(word) {
		if i < len(word)-1 && word[i] == merge.Left && word[i+1] == merge.Right {
			merged = append(merged, merge.Result())
			i += 2
		} else {
			merged = append(merged, word[i])
			i++
		}
	}
	return merged
}

// Encode converts text to token IDs, framed by BOS and EOS.
// Symbols missing from the vocabulary map to UNK.
func (t *Tokenizer) Encode(text string) []int {
	ids := []int{t.BOSID()}
	for _, word := range splitWords(strings.TrimSpace(text)) {
		ids = append(ids, t.encodeWord(word)...)
	}
	return append(ids, t.EOSID())
}

func (t *Tokenizer) encodeWord(word string) []int {
	symbols := splitChars(word)
	for _, m := range t.merges {
		symbols = applyMerge(symbols, m)
	}

	ids := make([]int, len(symbols))
	for i, s := range symbols {
		if id, ok := t.vocab[s]; ok {
			ids[i] = id
		} else {
			ids[i] = t.UNKID()
		}
	}
	return ids
}

// Decode converts token IDs back to text. BOS, EOS and PAD are dropped and
// the remaining tokens are joined with single spaces, so original spacing
// and punctuation are not restored.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) {
			return "", fmt.Errorf("%w: %d (vocabulary size %d)", ErrDecodeIndex, id, len(t.tokens))
		}
		switch id {
		case t.BOSID(), t.EOSID(), t.PADID():
			continue
		}
		parts = append(parts, t.tokens[id])
	}
	return strings.Join(parts, " "), nil
}

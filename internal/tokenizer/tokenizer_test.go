package tokenizer

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

const helloCorpus = "hello world hello world test"

func distinctChars(text string) int {
	seen := make(map[rune]struct{})
	for _, w := range splitWords(text) {
		for _, r := range w {
			seen[r] = struct{}{}
		}
	}
	return len(seen)
}

func TestTrainHelloWorld(t *testing.T) {
	tok := Train(helloCorpus, 50)

	ids := tok.Encode("hello world")
	if ids[0] != tok.BOSID() {
		t.Errorf("expected BOS first, got %d", ids[0])
	}
	if ids[len(ids)-1] != tok.EOSID() {
		t.Errorf("expected EOS last, got %d", ids[len(ids)-1])
	}

	// Both words collapse to fewer symbols than characters
	inner := ids[1 : len(ids)-1]
	if len(inner) >= len("hello")+len("world") {
		t.Errorf("expected merged symbols, got %d ids: %v", len(inner), inner)
	}
	for _, id := range inner {
		if id == tok.UNKID() {
			t.Errorf("unexpected UNK in %v", ids)
		}
	}
	helloIDs := tok.encodeWord("hello")
	worldIDs := tok.encodeWord("world")
	if len(helloIDs) >= 5 || len(worldIDs) >= 5 {
		t.Errorf("expected hello and world to merge, got %v and %v", helloIDs, worldIDs)
	}
}

func TestTrainFirstMergeTieBreak(t *testing.T) {
	tok := Train(helloCorpus, 50)
	merges := tok.Merges()
	if len(merges) == 0 {
		t.Fatal("expected merges")
	}

	// All pairs of hello and world have count 2; ("e","l") is smallest
	want := Merge{Left: "e", Right: "l"}
	if merges[0] != want {
		t.Errorf("expected first merge %v, got %v", want, merges[0])
	}
}

func TestTrainSpecialAndCharacterSeeding(t *testing.T) {
	tok := Train("banana cab", 4+4)

	expected := []string{BOSToken, EOSToken, PADToken, UNKToken, "a", "b", "c", "n"}
	if !reflect.DeepEqual(tok.Tokens(), expected) {
		t.Errorf("expected %v, got %v", expected, tok.Tokens())
	}
	if len(tok.Merges()) != 0 {
		t.Errorf("expected no merges when target reached by characters, got %v", tok.Merges())
	}
}

func TestTrainDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		a := TrainSample(200)
		b := TrainSample(200)
		if !reflect.DeepEqual(a.Tokens(), b.Tokens()) {
			t.Fatal("vocabularies differ between identical training runs")
		}
		if !reflect.DeepEqual(a.Merges(), b.Merges()) {
			t.Fatal("merge orders differ between identical training runs")
		}
	}
}

func TestVocabSizeBounds(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		vocabSize int
	}{
		{"hello", helloCorpus, 50},
		{"sample small", SampleCorpus, 60},
		{"sample large", SampleCorpus, 5000},
		{"exact characters", "abc", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := Train(tt.text, tt.vocabSize)
			lower := len(specialTokens) + distinctChars(tt.text)
			if tok.VocabSize() < lower || tok.VocabSize() > tt.vocabSize {
				t.Errorf("vocab size %d outside [%d, %d]", tok.VocabSize(), lower, tt.vocabSize)
			}
		})
	}
}

func TestMergeResultsInVocabulary(t *testing.T) {
	tok := TrainSample(300)
	for _, m := range tok.Merges() {
		if tok.TokenToID(m.Left) < 0 || tok.TokenToID(m.Right) < 0 || tok.TokenToID(m.Result()) < 0 {
			t.Errorf("merge %v references symbols outside the vocabulary", m)
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	tok := Train(helloCorpus, 50)

	for _, text := range []string{"", "   ", "!!! ..."} {
		ids := tok.Encode(text)
		if !reflect.DeepEqual(ids, []int{tok.BOSID(), tok.EOSID()}) {
			t.Errorf("Encode(%q): expected [BOS EOS], got %v", text, ids)
		}
	}
}

func TestEncodeUnknownFallback(t *testing.T) {
	tok := Train(helloCorpus, 50)

	ids := tok.Encode("xyz")
	expected := []int{tok.BOSID(), tok.UNKID(), tok.UNKID(), tok.UNKID(), tok.EOSID()}
	if !reflect.DeepEqual(ids, expected) {
		t.Errorf("expected %v, got %v", expected, ids)
	}
}

func TestEncodeLowercases(t *testing.T) {
	tok := Train(helloCorpus, 50)
	if !reflect.DeepEqual(tok.Encode("HELLO World"), tok.Encode("hello world")) {
		t.Error("encoding should be case-insensitive")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	tok := Train(helloCorpus, 50)

	text, err := tok.Decode(tok.Encode("test"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if text != "test" {
		t.Errorf("expected %q, got %q", "test", text)
	}

	text, err = tok.Decode(tok.Encode("Hello, World!"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", text)
	}
}

func TestDecodeSkipsSpecials(t *testing.T) {
	tok := Train(helloCorpus, 50)
	ids := []int{tok.BOSID(), tok.PADID(), tok.TokenToID("test"), tok.UNKID(), tok.EOSID()}

	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if text != "test "+UNKToken {
		t.Errorf("unexpected decode %q", text)
	}
}

func TestDecodeInvalidID(t *testing.T) {
	tok := Train(helloCorpus, 50)

	for _, id := range []int{-1, tok.VocabSize(), 9999} {
		_, err := tok.Decode([]int{tok.BOSID(), id})
		if !errors.Is(err, ErrDecodeIndex) {
			t.Errorf("id %d: expected ErrDecodeIndex, got %v", id, err)
		}
	}
}

func TestVisualize(t *testing.T) {
	tok := Train("ab ab", 4+2)

	tokens := tok.Visualize("ab")
	expectedTypes := []TokenType{TypeSpecial, TypeCharacter, TypeCharacter, TypeSpecial}
	if len(tokens) != len(expectedTypes) {
		t.Fatalf("expected %d tokens, got %d", len(expectedTypes), len(tokens))
	}
	for i, tk := range tokens {
		if tk.Position != i {
			t.Errorf("token %d: wrong position %d", i, tk.Position)
		}
		if tk.Type != expectedTypes[i] {
			t.Errorf("token %d (%q): expected %s, got %s", i, tk.Text, expectedTypes[i], tk.Type)
		}
	}

	merged := Train(helloCorpus, 50).Visualize("hello")
	if len(merged) != 3 || merged[1].Type != TypeSubword || merged[1].Text != "hello" {
		t.Errorf("expected single subword for hello, got %+v", merged)
	}
}

func TestTrainDynamicIncludesUserWords(t *testing.T) {
	tok := TrainDynamic("quantum entanglement", 1000)

	for _, word := range []string{"quantum", "entanglement", "the"} {
		ids := tok.Encode(word)
		if len(ids) != 3 {
			t.Errorf("%q: expected a single token, got %v", word, ids)
		}
	}
}

func TestInfo(t *testing.T) {
	tok := TrainSample(100)
	info := tok.Info()

	if info.VocabSize != tok.VocabSize() {
		t.Errorf("expected vocab size %d, got %d", tok.VocabSize(), info.VocabSize)
	}
	if info.NumMerges != len(tok.Merges()) {
		t.Errorf("expected %d merges, got %d", len(tok.Merges()), info.NumMerges)
	}
	if len(info.SampleTokens) != 20 {
		t.Errorf("expected 20 sample tokens, got %d", len(info.SampleTokens))
	}
	if info.SpecialTokens[UNKToken] != tok.UNKID() {
		t.Errorf("unexpected special token map %v", info.SpecialTokens)
	}
}

func TestSaveLoad(t *testing.T) {
	tok := TrainSample(150)

	var buf bytes.Buffer
	if err := tok.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(tok.Tokens(), loaded.Tokens()) {
		t.Error("tokens differ after reload")
	}
	if !reflect.DeepEqual(tok.Merges(), loaded.Merges()) {
		t.Error("merges differ after reload")
	}

	text := "neural networks learn language patterns"
	if !reflect.DeepEqual(tok.Encode(text), loaded.Encode(text)) {
		t.Error("reloaded tokenizer encodes differently")
	}
}

func TestSaveLoadFile(t *testing.T) {
	tok := Train(helloCorpus, 50)
	path := filepath.Join(t.TempDir(), "vocab", "tokenizer.json")

	if err := tok.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if loaded.VocabSize() != tok.VocabSize() {
		t.Errorf("expected %d tokens, got %d", tok.VocabSize(), loaded.VocabSize())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"tokens": [`},
		{"too few tokens", `{"tokens": ["<BOS>"], "merges": []}`},
		{"wrong special", `{"tokens": ["<EOS>", "<BOS>", "<PAD>", "<UNK>"], "merges": []}`},
		{"duplicate", `{"tokens": ["<BOS>", "<EOS>", "<PAD>", "<UNK>", "a", "a"], "merges": []}`},
		{"dangling merge", `{"tokens": ["<BOS>", "<EOS>", "<PAD>", "<UNK>", "a", "b"], "merges": [["a", "b"]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.json)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestUnicodeWords(t *testing.T) {
	tok := Train("café café naïve", 100)
	ids := tok.Encode("café")
	if len(ids) != 3 {
		t.Fatalf("expected single token for café, got %v", ids)
	}
	if got := tok.IDToToken(ids[1]); got != "café" || utf8.RuneCountInString(got) != 4 {
		t.Errorf("unexpected token %q", got)
	}
}

func BenchmarkEncode(b *testing.B) {
	tok := TrainSample(500)
	text := "attention mechanisms help large language models focus on relevant input"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tok.Encode(text)
	}
}

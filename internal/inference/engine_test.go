package inference

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/xupit3r/tinylm/internal/config"
	"github.com/xupit3r/tinylm/internal/tokenizer"
	"github.com/xupit3r/tinylm/internal/transformer"
)

func createTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Model.DModel = 32
	cfg.Model.NumHeads = 4
	cfg.Model.NumLayers = 2
	cfg.Model.DFF = 64
	cfg.Model.MaxSeqLen = 64
	cfg.Tokenizer.VocabSize = 80
	return cfg
}

func createTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(createTestConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestNewEngine(t *testing.T) {
	engine := createTestEngine(t)

	vocab := engine.Tokenizer().VocabSize()
	if vocab != 80 {
		t.Errorf("expected vocabulary of 80, got %d", vocab)
	}
	if engine.Model().Config().VocabSize != vocab {
		t.Errorf("model vocab %d does not match tokenizer vocab %d", engine.Model().Config().VocabSize, vocab)
	}
	if engine.Config().Model.DModel != 32 {
		t.Errorf("engine lost its configuration")
	}
}

func TestNewEngine_InvalidModel(t *testing.T) {
	cfg := createTestConfig()
	cfg.Model.NumHeads = 5

	_, err := NewEngine(cfg)
	if !errors.Is(err, transformer.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestEngine_Forward(t *testing.T) {
	engine := createTestEngine(t)

	res, err := engine.Forward(context.Background(), "the attention model", transformer.ForwardOptions{})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	n := len(res.IDs)
	if res.IDs[0] != engine.Tokenizer().BOSID() || res.IDs[n-1] != engine.Tokenizer().EOSID() {
		t.Errorf("sequence must be framed by BOS and EOS, got %v", res.IDs)
	}
	if len(res.Tokens) != n {
		t.Errorf("expected %d token strings, got %d", n, len(res.Tokens))
	}

	shape := res.Output.Logits.Shape()
	if shape[0] != 1 || shape[1] != n || shape[2] != 80 {
		t.Errorf("unexpected logits shape %v", shape)
	}
	if len(res.Output.AttentionWeights) != 2 {
		t.Errorf("expected 2 attention tensors, got %d", len(res.Output.AttentionWeights))
	}
}

func TestEngine_ForwardErrors(t *testing.T) {
	cfg := createTestConfig()
	cfg.Model.MaxSeqLen = 4
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.Forward(context.Background(), "attention is all you need today", transformer.ForwardOptions{})
	if !errors.Is(err, transformer.ErrSequenceTooLong) {
		t.Errorf("expected ErrSequenceTooLong, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Forward(ctx, "hi", transformer.ForwardOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := engine.Predict(ctx, "hi", 3); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEngine_ForwardBatch(t *testing.T) {
	engine := createTestEngine(t)
	ctx := context.Background()
	texts := []string{"neural networks learn patterns from data", "attention"}

	batch, err := engine.ForwardBatch(ctx, texts, transformer.ForwardOptions{})
	if err != nil {
		t.Fatalf("ForwardBatch failed: %v", err)
	}
	if batch.Lengths[0] <= batch.Lengths[1] {
		t.Fatalf("test needs rows of different lengths, got %v", batch.Lengths)
	}

	seqLen := batch.Output.Logits.Dim(1)
	if seqLen != batch.Lengths[0] {
		t.Errorf("batch padded to %d, expected %d", seqLen, batch.Lengths[0])
	}

	// Every real position matches its unbatched pass
	for b, text := range texts {
		single, err := engine.Forward(ctx, text, transformer.ForwardOptions{})
		if err != nil {
			t.Fatal(err)
		}
		for s := 0; s < batch.Lengths[b]; s++ {
			got, want := batch.Output.Logits.Row(b, s), single.Output.Logits.Row(0, s)
			for v := range want {
				if math.Abs(got[v]-want[v]) > 1e-9 {
					t.Fatalf("row %d position %d differs from unbatched pass", b, s)
				}
			}
		}
	}

	if _, err := engine.ForwardBatch(ctx, nil, transformer.ForwardOptions{}); !errors.Is(err, transformer.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch for empty batch, got %v", err)
	}
}

func TestEngine_Predict(t *testing.T) {
	engine := createTestEngine(t)

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"top five", 5, 5},
		{"zero", 0, 0},
		{"clamped", 1000, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preds, err := engine.Predict(context.Background(), "the model", tt.k)
			if err != nil {
				t.Fatalf("Predict failed: %v", err)
			}
			if len(preds) != tt.want {
				t.Fatalf("expected %d predictions, got %d", tt.want, len(preds))
			}

			var sum float64
			for i, p := range preds {
				if i > 0 && p.Probability > preds[i-1].Probability {
					t.Errorf("predictions not sorted at %d", i)
				}
				if p.Token != engine.Tokenizer().IDToToken(p.ID) {
					t.Errorf("prediction %d token %q does not match id %d", i, p.Token, p.ID)
				}
				sum += p.Probability
			}
			if tt.want == 80 && math.Abs(sum-1) > 1e-5 {
				t.Errorf("full distribution sums to %f", sum)
			}
		})
	}
}

func TestEngine_Attention(t *testing.T) {
	engine := createTestEngine(t)
	ctx := context.Background()

	report, err := engine.Attention(ctx, "learning from data", -1, transformer.ForwardOptions{})
	if err != nil {
		t.Fatalf("Attention failed: %v", err)
	}
	if report.Layer != 1 {
		t.Errorf("layer -1 should resolve to 1, got %d", report.Layer)
	}
	if len(report.Heads) != 4 {
		t.Fatalf("expected 4 heads, got %d", len(report.Heads))
	}
	for _, h := range report.Heads {
		if h.Description == "" {
			t.Errorf("head %d has no description", h.HeadID)
		}
		if h.Heatmap.Rows != len(report.Tokens) || h.Heatmap.Cols != len(report.Tokens) {
			t.Errorf("head %d heatmap is %dx%d", h.HeadID, h.Heatmap.Rows, h.Heatmap.Cols)
		}
		if h.Entropy < 0 || h.Entropy > math.Log(float64(len(report.Tokens)))+1e-6 {
			t.Errorf("head %d entropy %f out of range", h.HeadID, h.Entropy)
		}
	}

	if _, err := engine.Attention(ctx, "data", 2, transformer.ForwardOptions{}); err == nil {
		t.Error("expected error for out-of-range layer")
	}
}

func TestEngine_InspectAndLayers(t *testing.T) {
	engine := createTestEngine(t)
	ctx := context.Background()

	ins, err := engine.Inspect(ctx, "deep learning", transformer.ForwardOptions{})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if len(ins.Layers) != 2 || len(ins.Probabilities) != 80 {
		t.Errorf("unexpected inspection: %d layers, %d probabilities", len(ins.Layers), len(ins.Probabilities))
	}

	viz, err := engine.Layers(ctx, "deep learning", transformer.ForwardOptions{})
	if err != nil {
		t.Fatalf("Layers failed: %v", err)
	}
	if viz.NumLayers != 2 || len(viz.Tokens) != ins.SequenceLength {
		t.Errorf("unexpected layer visualization: %d layers, %d tokens", viz.NumLayers, len(viz.Tokens))
	}
}

func TestEngine_LayersCausal(t *testing.T) {
	engine := createTestEngine(t)
	ctx := context.Background()
	opts := transformer.ForwardOptions{Causal: true}

	res, err := engine.Forward(ctx, "deep learning models", opts)
	if err != nil {
		t.Fatal(err)
	}
	viz, err := engine.Layers(ctx, "deep learning models", opts)
	if err != nil {
		t.Fatalf("Layers failed: %v", err)
	}

	// The traced weights are the ones the causal forward pass produced
	for i, layer := range viz.Layers {
		got := layer.Block.AttentionWeights.Data()
		want := res.Output.AttentionWeights[i].Data()
		if len(got) != len(want) {
			t.Fatalf("layer %d: %d weights, want %d", i, len(got), len(want))
		}
		for j := range want {
			if math.Abs(got[j]-want[j]) > 1e-12 {
				t.Fatalf("layer %d weight %d: %g, want %g", i, j, got[j], want[j])
			}
		}
	}
}

func TestLoadTokenizer(t *testing.T) {
	dir := t.TempDir()

	saved := tokenizer.Train("graph neural graph network", 30)
	vocabPath := filepath.Join(dir, "vocab.json")
	if err := saved.SaveFile(vocabPath); err != nil {
		t.Fatal(err)
	}

	corpusPath := filepath.Join(dir, "corpus.txt")
	if err := os.WriteFile(corpusPath, []byte("kitten mitten sitting"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(*config.Config)
		text   string
		check  func(*testing.T, *tokenizer.Tokenizer)
	}{
		{
			name:   "vocab file",
			modify: func(c *config.Config) { c.Tokenizer.VocabFile = vocabPath },
			check: func(t *testing.T, tok *tokenizer.Tokenizer) {
				if tok.VocabSize() != saved.VocabSize() {
					t.Errorf("expected %d tokens, got %d", saved.VocabSize(), tok.VocabSize())
				}
			},
		},
		{
			name: "missing vocab file falls through",
			modify: func(c *config.Config) {
				c.Tokenizer.VocabFile = filepath.Join(dir, "missing.json")
				c.Tokenizer.CorpusFile = corpusPath
			},
			check: func(t *testing.T, tok *tokenizer.Tokenizer) {
				if tok.TokenToID("k") < 0 {
					t.Error("corpus characters missing from vocabulary")
				}
			},
		},
		{
			name:   "dynamic",
			modify: func(c *config.Config) { c.Tokenizer.Dynamic = true },
			text:   "qwerty",
			check: func(t *testing.T, tok *tokenizer.Tokenizer) {
				for _, id := range tok.Encode("qwerty") {
					if id == tok.UNKID() {
						t.Fatal("user text encodes to UNK")
					}
				}
			},
		},
		{
			name:   "sample corpus",
			modify: func(c *config.Config) {},
			check: func(t *testing.T, tok *tokenizer.Tokenizer) {
				if tok.VocabSize() != 80 {
					t.Errorf("expected 80 tokens, got %d", tok.VocabSize())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			tt.modify(cfg)

			tok, err := LoadTokenizer(cfg, tt.text)
			if err != nil {
				t.Fatalf("LoadTokenizer failed: %v", err)
			}
			tt.check(t, tok)
		})
	}
}

func TestLoadTokenizer_MissingCorpus(t *testing.T) {
	cfg := createTestConfig()
	cfg.Tokenizer.CorpusFile = filepath.Join(t.TempDir(), "nope.txt")

	if _, err := LoadTokenizer(cfg, ""); err == nil {
		t.Error("expected error for missing corpus file")
	}
}

func TestPaddingMask(t *testing.T) {
	mask := paddingMask([]int{3, 1}, 3)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if mask.At(0, i, j) != 1 {
				t.Errorf("full row masked at (%d,%d)", i, j)
			}
			want := 0.0
			if j == 0 {
				want = 1
			}
			if mask.At(1, i, j) != want {
				t.Errorf("padded row at (%d,%d): expected %f, got %f", i, j, want, mask.At(1, i, j))
			}
		}
	}
}

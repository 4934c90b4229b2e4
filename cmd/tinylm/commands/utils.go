package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xupit3r/tinylm/internal/inference"
	"github.com/xupit3r/tinylm/internal/tokenizer"
	"github.com/xupit3r/tinylm/internal/transformer"
)

// textArg joins the positional arguments into the input text
func textArg(args []string) string {
	return strings.Join(args, " ")
}

// newEngine builds an engine for text from the loaded configuration
func newEngine(text string) (*inference.Engine, error) {
	engine, err := inference.NewEngineForText(cfg, text)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	return engine, nil
}

// newTokenizer resolves the tokenizer for text from the loaded configuration
func newTokenizer(text string) (*tokenizer.Tokenizer, error) {
	tok, err := inference.LoadTokenizer(cfg, text)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return tok, nil
}

// newTable returns a tabwriter for aligned columns on w
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printModelInfo writes the architecture summary of the engine's model
func printModelInfo(cmd *cobra.Command, engine *inference.Engine) {
	out := cmd.OutOrStdout()
	info := engine.Model().Info()

	fmt.Fprintln(out, styles.header.Render("Model"))
	fmt.Fprintln(out, styles.kv("  Vocabulary", info.VocabSize))
	fmt.Fprintln(out, styles.kv("  d_model", info.DModel))
	fmt.Fprintln(out, styles.kv("  Heads", fmt.Sprintf("%d (head dim %d)", info.NumHeads, info.DModel/info.NumHeads)))
	fmt.Fprintln(out, styles.kv("  Layers", info.NumLayers))
	fmt.Fprintln(out, styles.kv("  d_ff", info.DFF))
	fmt.Fprintln(out, styles.kv("  Activation", info.Activation))
	fmt.Fprintln(out, styles.kv("  Parameters", formatCount(info.TotalParams)))
	fmt.Fprintln(out)
}

// formatCount renders n with a K/M suffix
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprint(n)
	}
}

// forwardOptions builds the forward options shared by several commands
func forwardOptions(causal bool) transformer.ForwardOptions {
	return transformer.ForwardOptions{Causal: causal}
}

// shapeString formats a tensor shape as (a, b, c)
func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

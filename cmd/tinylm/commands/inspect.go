package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xupit3r/tinylm/internal/transformer"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [text]",
	Short: "Show activation statistics at every stage",
	Long: `Collect activation statistics for the embeddings, each block's attention
output, feed-forward activation and block output, and the final hidden state.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

var inspectCausal bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectCausal, "causal", false, "restrict attention to earlier positions")

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	text := textArg(args)
	out := cmd.OutOrStdout()

	engine, err := newEngine(text)
	if err != nil {
		return err
	}

	ins, err := engine.Inspect(context.Background(), text, forwardOptions(inspectCausal))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, styles.title.Render("Inspection"))
	fmt.Fprintln(out, styles.kv("Sequence length", ins.SequenceLength))
	fmt.Fprintln(out)

	table := newTable(out)
	fmt.Fprintln(table, "STAGE\tMEAN\tSTD\tMIN\tMAX\tPOSITIVE\tNORM")
	writeStats(table, "embeddings", ins.Embeddings)
	for _, l := range ins.Layers {
		writeStats(table, fmt.Sprintf("layer %d attention", l.Layer), l.Attention)
		writeStats(table, fmt.Sprintf("layer %d ffn hidden", l.Layer), l.FeedForward)
		writeStats(table, fmt.Sprintf("layer %d output", l.Layer), l.Output)
	}
	writeStats(table, "final hidden", ins.FinalHidden)
	if err := table.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	best := transformer.TopCandidates(ins.Probabilities, 1)[0]
	fmt.Fprintln(out, styles.kv("Most likely next token", fmt.Sprintf("%q (p=%.4f)", engine.Tokenizer().IDToToken(best.ID), best.Probability)))
	return nil
}

func writeStats(w io.Writer, name string, s transformer.ActivationStats) {
	fmt.Fprintf(w, "%s\t%+.4f\t%.4f\t%+.4f\t%+.4f\t%.1f%%\t%.2f\n",
		name, s.Mean, s.Std, s.Min, s.Max, s.PositiveRatio*100, s.Magnitude)
}

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var forwardCmd = &cobra.Command{
	Use:   "forward [text]",
	Short: "Run text through the model and show every layer",
	Long: `Run a forward pass and report the tensor shapes at each stage together
with per-layer statistics: mean activation before and after the block,
attention entropy and the strength of both residual updates.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runForward,
}

var forwardCausal bool

func init() {
	forwardCmd.Flags().BoolVar(&forwardCausal, "causal", false, "restrict attention to earlier positions")

	rootCmd.AddCommand(forwardCmd)
}

func runForward(cmd *cobra.Command, args []string) error {
	text := textArg(args)
	out := cmd.OutOrStdout()
	ctx := context.Background()

	engine, err := newEngine(text)
	if err != nil {
		return err
	}

	opts := forwardOptions(forwardCausal)
	res, err := engine.Forward(ctx, text, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, styles.title.Render("Forward pass"))
	fmt.Fprintln(out, styles.kv("Tokens", fmt.Sprintf("%v", res.Tokens)))
	fmt.Fprintln(out)
	printModelInfo(cmd, engine)

	fmt.Fprintln(out, styles.header.Render("Shapes"))
	fmt.Fprintln(out, styles.kv("  Input ids", shapeString([]int{1, len(res.IDs)})))
	fmt.Fprintln(out, styles.kv("  Hidden", shapeString(res.Output.LastHidden.Shape())))
	fmt.Fprintln(out, styles.kv("  Attention", fmt.Sprintf("%d x %s", len(res.Output.AttentionWeights), shapeString(res.Output.AttentionWeights[0].Shape()))))
	fmt.Fprintln(out, styles.kv("  Logits", shapeString(res.Output.Logits.Shape())))
	fmt.Fprintln(out)

	viz, err := engine.Layers(ctx, text, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, styles.header.Render("Layers"))
	table := newTable(out)
	fmt.Fprintln(table, "LAYER\tIN MEAN\tOUT MEAN\tENTROPY\tATTN RESIDUAL\tFFN RESIDUAL")
	for _, layer := range viz.Layers {
		s := layer.Stats
		fmt.Fprintf(table, "%d\t%+.4f\t%+.4f\t%.4f\t%.3f\t%.3f\n",
			s.LayerID, s.InputMean, s.OutputMean, s.AttentionEntropy, s.AttentionResidual, s.FeedForwardResidual)
	}
	if err := table.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.note.Render("Weights are randomly initialized; statistics describe signal flow only."))
	return nil
}

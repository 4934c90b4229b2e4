package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var attentionCmd = &cobra.Command{
	Use:   "attention [text]",
	Short: "Describe what each attention head looks at",
	Long: `Run a forward pass and analyze the attention weights of one layer:
a description of each head, self/forward/backward attention rates, the most
attended token and whether the distribution is uniform or focused.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttention,
}

var (
	attentionLayer  int
	attentionCausal bool
)

func init() {
	attentionCmd.Flags().IntVarP(&attentionLayer, "layer", "l", 0, "layer to analyze (negative counts from the last)")
	attentionCmd.Flags().BoolVar(&attentionCausal, "causal", false, "restrict attention to earlier positions")

	rootCmd.AddCommand(attentionCmd)
}

func runAttention(cmd *cobra.Command, args []string) error {
	text := textArg(args)
	out := cmd.OutOrStdout()

	engine, err := newEngine(text)
	if err != nil {
		return err
	}

	report, err := engine.Attention(context.Background(), text, attentionLayer, forwardOptions(attentionCausal))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, styles.title.Render(fmt.Sprintf("Attention, layer %d", report.Layer)))
	fmt.Fprintln(out, styles.kv("Tokens", fmt.Sprintf("%v", report.Tokens)))
	fmt.Fprintln(out)

	for _, h := range report.Heads {
		a := h.Analysis
		fmt.Fprintln(out, styles.header.Render(fmt.Sprintf("Head %d", h.HeadID))+" "+styles.muted.Render(h.Description))

		table := newTable(out)
		fmt.Fprintf(table, "  self\t%.3f\tforward\t%.3f\tbackward\t%.3f\n",
			a.SelfAttentionRate, a.ForwardAttentionRate, a.BackwardAttentionRate)
		fmt.Fprintf(table, "  most attended\t%s\tmost attending\t%s\tentropy\t%.3f\n",
			a.MostAttendedToken, a.MostAttendingToken, h.Entropy)
		fmt.Fprintf(table, "  distribution\t%s\tcolumn std\t%.3f\trange\t[%.3f, %.3f]\n",
			a.Distribution, a.ColumnMeanStd, h.Heatmap.Min, h.Heatmap.Max)
		if err := table.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	return nil
}

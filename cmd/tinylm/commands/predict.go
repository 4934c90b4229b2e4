package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict [text]",
	Short: "Show the most likely next tokens",
	Long: `Compute the next-token distribution at the last position of the input
and list the most probable candidates.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

var predictTopK int

func init() {
	predictCmd.Flags().IntVarP(&predictTopK, "top-k", "k", 10, "number of candidates to show")

	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	if predictTopK <= 0 {
		return fmt.Errorf("--top-k must be positive, got %d", predictTopK)
	}

	text := textArg(args)
	out := cmd.OutOrStdout()

	engine, err := newEngine(text)
	if err != nil {
		return err
	}

	preds, err := engine.Predict(context.Background(), text, predictTopK)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, styles.title.Render("Next-token prediction"))
	fmt.Fprintln(out, styles.kv("Input", fmt.Sprintf("%q", text)))
	fmt.Fprintln(out, styles.kv("Uniform baseline", fmt.Sprintf("%.4f", 1/float64(engine.Tokenizer().VocabSize()))))
	fmt.Fprintln(out)

	if len(preds) == 0 {
		return nil
	}
	top := preds[0].Probability

	table := newTable(out)
	fmt.Fprintln(table, "RANK\tID\tTOKEN\tPROBABILITY\t")
	for i, p := range preds {
		fmt.Fprintf(table, "%d\t%d\t%s\t%.4f\t%s\n", i+1, p.ID, p.Token, p.Probability, styles.barFor(p.Probability/top))
	}
	return table.Flush()
}

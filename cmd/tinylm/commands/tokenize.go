package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xupit3r/tinylm/internal/logging"
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize [text]",
	Short: "Show how text is split into tokens",
	Long: `Train the configured vocabulary and show every token of the input,
with its id and whether it is a special token, a single character or a
merged subword.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTokenize,
}

var tokenizeSave string

func init() {
	tokenizeCmd.Flags().StringVarP(&tokenizeSave, "save", "s", "", "save the trained vocabulary to a JSON file")

	rootCmd.AddCommand(tokenizeCmd)
}

func runTokenize(cmd *cobra.Command, args []string) error {
	text := textArg(args)
	out := cmd.OutOrStdout()

	tok, err := newTokenizer(text)
	if err != nil {
		return err
	}

	info := tok.Info()
	fmt.Fprintln(out, styles.title.Render("Tokenization"))
	fmt.Fprintln(out, styles.kv("Input", fmt.Sprintf("%q", text)))
	fmt.Fprintln(out, styles.kv("Vocabulary", fmt.Sprintf("%d tokens, %d merges", info.VocabSize, info.NumMerges)))
	fmt.Fprintln(out)

	tokens := tok.Visualize(text)
	table := newTable(out)
	fmt.Fprintln(table, "POS\tID\tTOKEN\tTYPE")
	for _, t := range tokens {
		fmt.Fprintf(table, "%d\t%d\t%s\t%s\n", t.Position, t.ID, t.Text, styles.muted.Render(string(t.Type)))
	}
	if err := table.Flush(); err != nil {
		return err
	}

	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	decoded, err := tok.Decode(ids)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.kv("Decoded", fmt.Sprintf("%q", decoded)))

	if tokenizeSave != "" {
		if err := tok.SaveFile(tokenizeSave); err != nil {
			return fmt.Errorf("failed to save vocabulary: %w", err)
		}
		logging.Infof("vocabulary saved to %s", tokenizeSave)
		fmt.Fprintln(out, styles.note.Render("Vocabulary saved to "+tokenizeSave))
	}

	return nil
}

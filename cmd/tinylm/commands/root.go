package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xupit3r/tinylm/internal/config"
	"github.com/xupit3r/tinylm/internal/logging"
)

var (
	cfgFile    string
	verbose    bool
	quiet      bool
	noColor    bool
	seed       uint64
	vocabSize  int
	activation string
	dynamic    bool

	// cfg is loaded before every command runs
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tinylm",
	Short: "An educational transformer forward engine",
	Long: `tinylm trains a small BPE vocabulary and runs text through a randomly
initialized transformer so every stage of the forward pass can be inspected:
tokens, embeddings, attention heads, feed-forward activations and the
next-token distribution.

The model is never trained. Its outputs show how information flows, not
what a trained model would predict.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tinylm/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Model and tokenizer overrides
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "parameter initialization seed (overrides model.seed)")
	rootCmd.PersistentFlags().IntVar(&vocabSize, "vocab-size", 0, "target vocabulary size (overrides tokenizer.vocab_size)")
	rootCmd.PersistentFlags().StringVar(&activation, "activation", "", "feed-forward activation: gelu or gelu_tanh")
	rootCmd.PersistentFlags().BoolVar(&dynamic, "dynamic", false, "train the vocabulary on the input text as well")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
}

// loadConfig reads the configuration, applies flag overrides and
// initializes logging
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		loaded.Model.Seed = seed
	}
	if flags.Changed("vocab-size") {
		loaded.Tokenizer.VocabSize = vocabSize
	}
	if flags.Changed("activation") {
		loaded.Model.Activation = activation
	}
	if flags.Changed("dynamic") {
		loaded.Tokenizer.Dynamic = dynamic
	}

	switch {
	case viper.GetBool("verbose"):
		loaded.Logging.Level = "debug"
	case viper.GetBool("quiet"):
		loaded.Logging.Level = "error"
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Init(loaded.Logging.Level, loaded.Logging.File, loaded.Logging.Console); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg = loaded
	styles = newStyles(viper.GetBool("no-color"))
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/xupit3r/tinylm/internal/transformer"
)

// Config represents the application configuration
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ModelConfig struct {
	DModel       int     `mapstructure:"d_model"`
	NumHeads     int     `mapstructure:"num_heads"`
	NumLayers    int     `mapstructure:"num_layers"`
	DFF          int     `mapstructure:"d_ff"`
	MaxSeqLen    int     `mapstructure:"max_seq_len"`
	Dropout      float64 `mapstructure:"dropout"`
	Activation   string  `mapstructure:"activation"`
	LayerNormEps float64 `mapstructure:"layer_norm_eps"`
	Seed         uint64  `mapstructure:"seed"`
}

type TokenizerConfig struct {
	VocabSize  int    `mapstructure:"vocab_size"`
	CorpusFile string `mapstructure:"corpus_file"`
	VocabFile  string `mapstructure:"vocab_file"`
	Dynamic    bool   `mapstructure:"dynamic"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			DModel:       256,
			NumHeads:     8,
			NumLayers:    6,
			DFF:          1024,
			MaxSeqLen:    128,
			Dropout:      0.1,
			Activation:   string(transformer.ActivationGELU),
			LayerNormEps: 1e-5,
			Seed:         42,
		},
		Tokenizer: TokenizerConfig{
			VocabSize: 1000,
		},
		Logging: LoggingConfig{
			Level:   "warn",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".tinylm"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TINYLM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is okay, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. Model shape invariants
// are checked by transformer.Config when the model is built.
func (c *Config) Validate() error {
	if c.Tokenizer.VocabSize <= 0 {
		return errors.New("tokenizer.vocab_size must be positive")
	}

	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return errors.New("model.dropout must be in [0, 1)")
	}

	validActivations := []string{string(transformer.ActivationGELU), string(transformer.ActivationGELUTanh)}
	if !contains(validActivations, c.Model.Activation) {
		return fmt.Errorf("model.activation must be one of: %v", validActivations)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// ModelConfig converts the model section into a transformer configuration
// for a vocabulary of the given size
func (c *Config) ModelConfig(vocabSize int) transformer.Config {
	return transformer.Config{
		VocabSize:    vocabSize,
		DModel:       c.Model.DModel,
		NumHeads:     c.Model.NumHeads,
		NumLayers:    c.Model.NumLayers,
		DFF:          c.Model.DFF,
		MaxSeqLen:    c.Model.MaxSeqLen,
		Dropout:      c.Model.Dropout,
		Activation:   transformer.Activation(c.Model.Activation),
		LayerNormEps: c.Model.LayerNormEps,
		Seed:         c.Model.Seed,
	}
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Tokenizer.CorpusFile = expandPath(c.Tokenizer.CorpusFile)
	c.Tokenizer.VocabFile = expandPath(c.Tokenizer.VocabFile)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("model.d_model", cfg.Model.DModel)
	v.SetDefault("model.num_heads", cfg.Model.NumHeads)
	v.SetDefault("model.num_layers", cfg.Model.NumLayers)
	v.SetDefault("model.d_ff", cfg.Model.DFF)
	v.SetDefault("model.max_seq_len", cfg.Model.MaxSeqLen)
	v.SetDefault("model.dropout", cfg.Model.Dropout)
	v.SetDefault("model.activation", cfg.Model.Activation)
	v.SetDefault("model.layer_norm_eps", cfg.Model.LayerNormEps)
	v.SetDefault("model.seed", cfg.Model.Seed)

	v.SetDefault("tokenizer.vocab_size", cfg.Tokenizer.VocabSize)
	v.SetDefault("tokenizer.corpus_file", cfg.Tokenizer.CorpusFile)
	v.SetDefault("tokenizer.vocab_file", cfg.Tokenizer.VocabFile)
	v.SetDefault("tokenizer.dynamic", cfg.Tokenizer.Dynamic)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}

package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `toml:"openai"`
	Anthropic ProviderConfig `toml:"anthropic"`
	Google    ProviderConfig `toml:"google"`
	XAI       ProviderConfig `toml:"xai"`
	Ollama    ProviderConfig `toml:"ollama"`
}

type EnsembleConfig struct {
	SummarizerModel string   `toml:"summarizer_model"`
	EmbeddingModel  string   `toml:"embedding_model"`
	DefaultModels   []string `toml:"default_models"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	CouncilRounds   int      `toml:"council_rounds"`
	EloTopN         int      `toml:"elo_top_n"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type Config struct {
	Providers ProvidersConfig `toml:"providers"`
	Ensemble  EnsembleConfig  `toml:"ensemble"`
	Memgraph  MemgraphConfig  `toml:"memgraph"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a usable config when no file is present; provider keys are
// expected to come from environment overrides at server bootstrap.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Ensemble.SummarizerModel == "" {
		c.Ensemble.SummarizerModel = "openai:gpt-4o"
	}
	if c.Ensemble.EmbeddingModel == "" {
		c.Ensemble.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Ensemble.TimeoutSeconds <= 0 {
		c.Ensemble.TimeoutSeconds = 120
	}
	if c.Ensemble.CouncilRounds <= 0 {
		c.Ensemble.CouncilRounds = 2
	}
	if c.Ensemble.EloTopN <= 0 {
		c.Ensemble.EloTopN = 3
	}
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/timini/ensemble/internal/config"
)

const (
	defaultXAIBaseURL    = "https://api.x.ai/v1"
	defaultOllamaBaseURL = "http://localhost:11434"
)

// NewClient builds a backend for an ensemble model ID ("provider:model").
// xai and ollama ride the OpenAI-compatible client with a custom base URL.
func NewClient(ctx context.Context, providers config.ProvidersConfig, modelID string) (Client, error) {
	prov, model, err := SplitModelID(modelID)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(prov) {
	case "openai":
		return NewOpenAIClient(providers.OpenAI.APIKey, model, "", providers.OpenAI.BaseURL), nil

	case "anthropic":
		return NewClaudeClient(providers.Anthropic.APIKey, model, providers.Anthropic.BaseURL), nil

	case "google":
		return NewGeminiClient(ctx, providers.Google.APIKey, model, "")

	case "xai":
		baseURL := providers.XAI.BaseURL
		if baseURL == "" {
			baseURL = defaultXAIBaseURL
		}
		return NewOpenAIClient(providers.XAI.APIKey, model, "", baseURL), nil

	case "ollama":
		baseURL := providers.Ollama.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = strings.TrimRight(baseURL, "/") + "/v1"
		}
		// Ollama ignores the key but the client config requires one.
		apiKey := providers.Ollama.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIClient(apiKey, model, "", baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", prov)
	}
}

// NewEmbedder builds the embedder used for response alignment scoring.
// OpenAI is preferred; Google works as a fallback when only a Google key is set.
func NewEmbedder(ctx context.Context, providers config.ProvidersConfig, embeddingModel string) (Embedder, error) {
	if providers.OpenAI.APIKey != "" {
		return NewOpenAIClient(providers.OpenAI.APIKey, "", embeddingModel, providers.OpenAI.BaseURL), nil
	}
	if providers.Google.APIKey != "" {
		return NewGeminiClient(ctx, providers.Google.APIKey, "", embeddingModel)
	}
	return nil, fmt.Errorf("no provider with embedding support configured")
}

package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is the minimal surface every provider backend implements.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SplitModelID breaks an ensemble model ID of the form "provider:model"
// (e.g. "anthropic:claude-sonnet-4") into its parts.
func SplitModelID(id string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(id, ":")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model id %q, want provider:model", id)
	}
	return provider, model, nil
}

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timini/ensemble/internal/config"
)

type stubClient struct{ reply string }

func (s *stubClient) Generate(ctx context.Context, prompt string) (string, error) {
	return s.reply, nil
}

func TestRegistry_RegisteredClientWins(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{})
	stub := &stubClient{reply: "hi"}
	r.Register("openai:gpt-4o", stub)

	got, err := r.Get(context.Background(), "openai:gpt-4o")
	require.NoError(t, err)
	assert.Same(t, stub, got.(*stubClient))

	assert.Equal(t, []string{"openai:gpt-4o"}, r.Models())
}

func TestRegistry_BuildsAndCachesClients(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{
		OpenAI: config.ProviderConfig{APIKey: "test-key"},
	})

	first, err := r.Get(context.Background(), "openai:gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.Get(context.Background(), "openai:gpt-4o")
	require.NoError(t, err)
	assert.Same(t, first.(*OpenAIClient), second.(*OpenAIClient))
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{})

	_, err := r.Get(context.Background(), "mystery:model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model")

	_, err = r.Get(context.Background(), "not-an-id")
	require.Error(t, err)
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_Object(t *testing.T) {
	type verdict struct {
		Winner string `json:"winner"`
	}

	v, err := ParseJSON[verdict](`{"winner": "A"}`)
	require.NoError(t, err)
	assert.Equal(t, "A", v.Winner)

	v, err = ParseJSON[verdict]("Sure! Here is the verdict:\n```json\n{\"winner\": \"B\"}\n```\nLet me know.")
	require.NoError(t, err)
	assert.Equal(t, "B", v.Winner)
}

func TestParseJSON_Array(t *testing.T) {
	out, err := ParseJSON[[]string](`The list: ["a", "b"] as requested.`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestParseJSON_Errors(t *testing.T) {
	_, err := ParseJSON[map[string]any]("no json here at all")
	assert.Error(t, err)

	_, err = ParseJSON[map[string]any]("starts { but never closes")
	assert.Error(t, err)

	_, err = ParseJSON[map[string]any]("{not valid}")
	assert.Error(t, err)
}

func TestSplitModelID(t *testing.T) {
	provider, model, err := SplitModelID("anthropic:claude-sonnet-4")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider)
	assert.Equal(t, "claude-sonnet-4", model)

	// Model strings themselves may contain colons (ollama tags).
	provider, model, err = SplitModelID("ollama:llama3:8b")
	require.NoError(t, err)
	assert.Equal(t, "ollama", provider)
	assert.Equal(t, "llama3:8b", model)

	for _, bad := range []string{"", "gpt-4o", ":gpt-4o", "openai:"} {
		_, _, err := SplitModelID(bad)
		assert.Error(t, err, "id %q", bad)
	}
}

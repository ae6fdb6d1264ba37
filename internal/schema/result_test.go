package schema

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_PreservesUnknownFields(t *testing.T) {
	doc := fmt.Sprintf(`{
		"type": "majority",
		"metadata": %s,
		"synthesis": "Majority answer.",
		"responses": [
			{"modelId": "openai:gpt-4o", "provider": "openai", "model": "gpt-4o", "displayName": "GPT-4o", "content": "A.", "responseTimeMs": 10, "finishReason": "stop"}
		],
		"alignmentScores": {"openai:gpt-4o": 1.0},
		"majorityModelId": "openai:gpt-4o",
		"agreementBreakdown": {"agree": ["openai:gpt-4o"], "partial": [], "disagree": [], "method": "cosine"},
		"experimentTag": "issue-114",
		"costUsd": 0.0123
	}`, metadataJSON())

	res := Parse([]byte(doc))
	require.True(t, res.Success, "%v", res.Issues)

	out, err := json.Marshal(res.Result)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))

	// Unknown top-level fields survive.
	assert.Equal(t, "issue-114", m["experimentTag"])
	assert.Equal(t, 0.0123, m["costUsd"])

	// Unknown nested fields survive.
	responses := m["responses"].([]any)
	first := responses[0].(map[string]any)
	assert.Equal(t, "stop", first["finishReason"])

	breakdown := m["agreementBreakdown"].(map[string]any)
	assert.Equal(t, "cosine", breakdown["method"])
}

func TestMarshal_RoundTripIdempotent(t *testing.T) {
	withExtras := fmt.Sprintf(`{
		"type": "standard",
		"metadata": %s,
		"synthesis": "s",
		"responses": %s,
		"futureField": {"nested": [1, 2, 3]}
	}`, metadataJSON(), responsesJSON())

	first := Parse([]byte(withExtras))
	require.True(t, first.Success, "%v", first.Issues)

	out1, err := json.Marshal(first.Result)
	require.NoError(t, err)

	second := Parse(out1)
	require.True(t, second.Success, "%v", second.Issues)

	out2, err := json.Marshal(second.Result)
	require.NoError(t, err)

	var a, b map[string]any
	require.NoError(t, json.Unmarshal(out1, &a))
	require.NoError(t, json.Unmarshal(out2, &b))
	assert.Equal(t, a, b)
}

func TestMarshal_VariantFieldsAtTopLevel(t *testing.T) {
	res := Parse([]byte(councilJSON()))
	require.True(t, res.Success, "%v", res.Issues)

	out, err := json.Marshal(res.Result)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "council", m["type"])
	assert.Contains(t, m, "rounds")
	assert.Contains(t, m, "finalVotes")
	assert.Contains(t, m, "consensusMetrics")
	assert.NotContains(t, m, "rankings")
}

func TestMarshal_OmitsAbsentOptionalFields(t *testing.T) {
	res := Parse([]byte(eloJSON()))
	require.True(t, res.Success, "%v", res.Issues)

	out, err := json.Marshal(res.Result)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.NotContains(t, m, "bracket")

	responses := m["responses"].([]any)
	second := responses[1].(map[string]any)
	assert.NotContains(t, second, "tokenCount")
}

func TestMarshal_EmptySourceHighlightsRoundTrips(t *testing.T) {
	doc := fmt.Sprintf(`{
		"type": "standard",
		"metadata": %s,
		"synthesis": "s",
		"responses": %s,
		"sourceHighlights": []
	}`, metadataJSON(), responsesJSON())

	res := Parse([]byte(doc))
	require.True(t, res.Success, "%v", res.Issues)
	require.NotNil(t, res.Result.Standard)
	require.NotNil(t, res.Result.Standard.SourceHighlights)
	assert.Empty(t, res.Result.Standard.SourceHighlights)

	out, err := json.Marshal(res.Result)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	require.Contains(t, m, "sourceHighlights")
	assert.JSONEq(t, `[]`, string(m["sourceHighlights"]))

	// Absent stays absent: a document without the key must not gain it.
	without := fmt.Sprintf(`{
		"type": "standard",
		"metadata": %s,
		"synthesis": "s",
		"responses": %s
	}`, metadataJSON(), responsesJSON())

	res = Parse([]byte(without))
	require.True(t, res.Success, "%v", res.Issues)
	assert.Nil(t, res.Result.Standard.SourceHighlights)

	out, err = json.Marshal(res.Result)
	require.NoError(t, err)
	m = nil
	require.NoError(t, json.Unmarshal(out, &m))
	assert.NotContains(t, m, "sourceHighlights")
}

func TestUnmarshalJSON_RoutesThroughParse(t *testing.T) {
	var r EnsembleResult
	require.NoError(t, json.Unmarshal([]byte(majorityJSON()), &r))
	assert.Equal(t, TypeMajority, r.Type)
	require.NotNil(t, r.Majority)
	assert.Equal(t, "openai:gpt-4o", r.Majority.MajorityModelID)

	err := json.Unmarshal([]byte(`{"type": "bogus"}`), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ensemble result")
}

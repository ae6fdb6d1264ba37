package ensemble

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timini/ensemble/internal/config"
	"github.com/timini/ensemble/internal/llm"
	"github.com/timini/ensemble/internal/schema"
)

func TestTallyVotes(t *testing.T) {
	unanimous := tallyVotes(2, map[string]string{"a": "a", "b": "a", "c": "a"})
	assert.Equal(t, 2, unanimous.Rounds)
	assert.True(t, unanimous.Unanimity)
	assert.InDelta(t, 1.0, unanimous.AgreementRatio, 0.001)

	split := tallyVotes(3, map[string]string{"a": "a", "b": "a", "c": "c"})
	assert.False(t, split.Unanimity)
	assert.InDelta(t, 2.0/3.0, split.AgreementRatio, 0.001)

	even := tallyVotes(1, map[string]string{"a": "a", "b": "b"})
	assert.False(t, even.Unanimity)
	assert.InDelta(t, 0.5, even.AgreementRatio, 0.001)
}

// councilMember opens with opening, revises to revised, and always votes
// for voteFor. Synthesis requests get the member's revised statement back.
func councilMember(opening, revised, voteFor string) fakeClient {
	return func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Vote for the member"):
			return `{"vote": "` + voteFor + `"}`, nil
		case strings.Contains(prompt, "Revise your statement"):
			return revised, nil
		default:
			return opening, nil
		}
	}
}

func TestRunCouncil_DeliberatesAndVotes(t *testing.T) {
	registry := newTestRegistry(map[string]llm.Client{
		"openai:gpt-4o":             councilMember("moon", "the moon, mainly", "openai:gpt-4o"),
		"anthropic:claude-sonnet-4": councilMember("gravity", "lunar gravity", "openai:gpt-4o"),
		"openai:judge": fakeClient(func(ctx context.Context, prompt string) (string, error) {
			return "council synthesis", nil
		}),
	})
	engine := New(registry, nil, config.EnsembleConfig{
		SummarizerModel: "openai:judge",
		TimeoutSeconds:  5,
		CouncilRounds:   1,
	})

	res, _, err := engine.Run(context.Background(), Request{
		Prompt:   "what causes tides?",
		Models:   []string{"openai:gpt-4o", "anthropic:claude-sonnet-4"},
		Strategy: schema.TypeCouncil,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Council)

	// Opening statements plus one revision round.
	require.Len(t, res.Council.Rounds, 2)
	assert.Equal(t, 1, res.Council.Rounds[0].Round)
	assert.Equal(t, "moon", res.Council.Rounds[0].Statements[0].Content)
	assert.Equal(t, 2, res.Council.Rounds[1].Round)
	assert.Equal(t, "the moon, mainly", res.Council.Rounds[1].Statements[0].Content)
	assert.Equal(t, "lunar gravity", res.Council.Rounds[1].Statements[1].Content)

	assert.Equal(t, map[string]string{
		"openai:gpt-4o":             "openai:gpt-4o",
		"anthropic:claude-sonnet-4": "openai:gpt-4o",
	}, res.Council.FinalVotes)

	m := res.Council.ConsensusMetrics
	assert.Equal(t, 2, m.Rounds)
	assert.True(t, m.Unanimity)
	assert.InDelta(t, 1.0, m.AgreementRatio, 0.001)

	assert.Equal(t, "council synthesis", res.Synthesis)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	parsed := schema.Parse(data)
	assert.True(t, parsed.Success, "%v", parsed.Issues)
}

func TestRunCouncil_DiscardsInvalidVotes(t *testing.T) {
	registry := newTestRegistry(map[string]llm.Client{
		"openai:gpt-4o":             councilMember("a", "a", "openai:gpt-4o"),
		"anthropic:claude-sonnet-4": councilMember("b", "b", "someone:else"),
		"openai:judge":              staticClient("synthesis"),
	})
	engine := New(registry, nil, config.EnsembleConfig{
		SummarizerModel: "openai:judge",
		TimeoutSeconds:  5,
		CouncilRounds:   1,
	})

	res, _, err := engine.Run(context.Background(), Request{
		Prompt:   "q",
		Models:   []string{"openai:gpt-4o", "anthropic:claude-sonnet-4"},
		Strategy: schema.TypeCouncil,
	})
	require.NoError(t, err)

	// The vote for a non-member is dropped; only the valid ballot counts.
	assert.Equal(t, map[string]string{"openai:gpt-4o": "openai:gpt-4o"}, res.Council.FinalVotes)
	assert.True(t, res.Council.ConsensusMetrics.Unanimity)
}

package ensemble

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/timini/ensemble/internal/llm"
	"github.com/timini/ensemble/internal/schema"
)

const (
	eloInitialRating = 1000.0
	eloKFactor       = 32.0
)

const comparisonPromptTemplate = `
You are judging which of two AI responses answers the user's prompt better.

User's prompt:
%s

Response A (from %s):
%s

Response B (from %s):
%s

Pick the better response. Judge accuracy first, then completeness, then clarity.
Return ONLY a JSON object: {"winner": "A" or "B", "reasoning": "<one sentence>"}
`

type pairVerdict struct {
	Winner    string `json:"winner"`
	Reasoning string `json:"reasoning"`
}

func (e *Engine) runElo(ctx context.Context, prompt string, topN int, res *schema.EnsembleResult) error {
	judge, err := e.judge(ctx)
	if err != nil {
		return err
	}

	responses := res.Responses
	if len(responses) < 2 {
		return fmt.Errorf("elo strategy needs at least 2 responses, got %d", len(responses))
	}

	// Judge every pair concurrently; ratings are applied afterwards in pair
	// order so the tournament is deterministic for a given set of verdicts.
	type pair struct{ a, b int }
	var pairs []pair
	for i := range responses {
		for j := i + 1; j < len(responses); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	verdicts := make([]*pairVerdict, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			a, b := responses[p.a], responses[p.b]
			out, err := judge.Generate(gctx, fmt.Sprintf(comparisonPromptTemplate,
				prompt, a.ModelID, a.Content, b.ModelID, b.Content))
			if err != nil {
				return fmt.Errorf("comparing %s vs %s: %w", a.ModelID, b.ModelID, err)
			}
			v, err := llm.ParseJSON[pairVerdict](out)
			if err != nil || (v.Winner != "A" && v.Winner != "B") {
				// Unusable verdict: skip the pair rather than abort the run.
				log.Printf("unusable verdict for %s vs %s: %v", a.ModelID, b.ModelID, err)
				return nil
			}
			verdicts[i] = &v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ratings := make(map[string]float64, len(responses))
	for _, r := range responses {
		ratings[r.ModelID] = eloInitialRating
	}

	comparisons := make([]schema.Comparison, 0, len(pairs))
	for i, p := range pairs {
		v := verdicts[i]
		if v == nil {
			continue
		}
		a, b := responses[p.a].ModelID, responses[p.b].ModelID
		winner := a
		if v.Winner == "B" {
			winner = b
		}
		comparisons = append(comparisons, schema.Comparison{
			ModelA:    a,
			ModelB:    b,
			Winner:    winner,
			Reasoning: v.Reasoning,
		})
		applyElo(ratings, a, b, winner)
	}
	if len(comparisons) == 0 {
		return fmt.Errorf("no usable pairwise verdicts")
	}

	rankings := rankByRating(ratings)
	if topN > len(rankings) {
		topN = len(rankings)
	}

	// Synthesize from the topN ranked responses only.
	byID := make(map[string]schema.ModelResponse, len(responses))
	for _, r := range responses {
		byID[r.ModelID] = r
	}
	top := make([]schema.ModelResponse, 0, topN)
	for _, rk := range rankings[:topN] {
		top = append(top, byID[rk.ModelID])
	}
	synthesis, err := synthesize(ctx, judge, prompt, top)
	if err != nil {
		return err
	}

	res.Synthesis = synthesis
	res.Elo = &schema.EloFields{
		Comparisons: comparisons,
		Rankings:    rankings,
		TopN:        topN,
	}
	return nil
}

func applyElo(ratings map[string]float64, a, b, winner string) {
	ra, rb := ratings[a], ratings[b]
	expectedA := 1.0 / (1.0 + math.Pow(10, (rb-ra)/400.0))

	scoreA := 1.0
	if winner == b {
		scoreA = 0.0
	}
	ratings[a] = ra + eloKFactor*(scoreA-expectedA)
	ratings[b] = rb + eloKFactor*((1.0-scoreA)-(1.0-expectedA))
}

func rankByRating(ratings map[string]float64) []schema.Ranking {
	out := make([]schema.Ranking, 0, len(ratings))
	for id, rating := range ratings {
		out = append(out, schema.Ranking{ModelID: id, Rating: rating})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ModelID < out[j].ModelID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

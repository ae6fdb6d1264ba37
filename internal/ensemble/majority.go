package ensemble

import (
	"context"
	"fmt"
	"math"

	"github.com/timini/ensemble/internal/schema"
)

// Agreement thresholds on cosine similarity to the majority response.
const (
	agreeThreshold   = 0.85
	partialThreshold = 0.65
)

// runMajority scores responses by mutual embedding alignment and elects the
// response the others cluster around. The synthesis is the majority answer
// itself: this strategy is mechanical, no judge model involved.
func (e *Engine) runMajority(ctx context.Context, res *schema.EnsembleResult) error {
	if e.embedder == nil {
		return fmt.Errorf("majority strategy requires an embedding provider")
	}
	responses := res.Responses
	if len(responses) < 2 {
		return fmt.Errorf("majority strategy needs at least 2 responses, got %d", len(responses))
	}

	vectors := make([][]float32, len(responses))
	for i, r := range responses {
		vec, err := e.embedder.Embed(ctx, r.Content)
		if err != nil {
			return fmt.Errorf("embedding response from %s: %w", r.ModelID, err)
		}
		vectors[i] = vec
	}

	// Alignment score: mean cosine similarity to every other response.
	scores := make(map[string]float64, len(responses))
	majorityIdx := 0
	for i, r := range responses {
		var sum float64
		for j := range responses {
			if i == j {
				continue
			}
			sum += cosineSimilarity(vectors[i], vectors[j])
		}
		score := sum / float64(len(responses)-1)
		scores[r.ModelID] = score
		if score > scores[responses[majorityIdx].ModelID] ||
			(score == scores[responses[majorityIdx].ModelID] && r.ModelID < responses[majorityIdx].ModelID) {
			majorityIdx = i
		}
	}

	majority := responses[majorityIdx]
	breakdown := schema.AgreementBreakdown{
		Agree:    []string{},
		Partial:  []string{},
		Disagree: []string{},
	}
	for i, r := range responses {
		if i == majorityIdx {
			breakdown.Agree = append(breakdown.Agree, r.ModelID)
			continue
		}
		sim := cosineSimilarity(vectors[i], vectors[majorityIdx])
		switch {
		case sim >= agreeThreshold:
			breakdown.Agree = append(breakdown.Agree, r.ModelID)
		case sim >= partialThreshold:
			breakdown.Partial = append(breakdown.Partial, r.ModelID)
		default:
			breakdown.Disagree = append(breakdown.Disagree, r.ModelID)
		}
	}

	res.Synthesis = majority.Content
	res.Majority = &schema.MajorityFields{
		AlignmentScores:    scores,
		MajorityModelID:    majority.ModelID,
		AgreementBreakdown: breakdown,
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

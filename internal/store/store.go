package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/timini/ensemble/internal/driver"
	"github.com/timini/ensemble/internal/schema"
)

// Store persists validated ensemble results to the graph. Each run becomes a
// Run node holding the full document verbatim, with Response nodes per model
// and COMPARED edges for elo tournaments.
type Store struct {
	Driver driver.GraphDriver
}

func New(d driver.GraphDriver) *Store {
	return &Store{Driver: d}
}

// RunSummary is the listing shape for stored runs.
type RunSummary struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Prompt    string `json:"prompt"`
	Timestamp string `json:"timestamp"`
}

func (s *Store) BuildIndices(ctx context.Context) error {
	return s.Driver.BuildIndices(ctx)
}

// Save stores a result and returns the new run ID. The document is stored
// as serialized JSON so unknown fields survive a round trip through the DB.
func (s *Store) Save(ctx context.Context, res *schema.EnsembleResult) (string, error) {
	document, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}

	id := uuid.New().String()
	params := map[string]interface{}{
		"uuid":             id,
		"type":             string(res.Type),
		"prompt":           res.Metadata.Prompt,
		"timestamp":        res.Metadata.Timestamp,
		"summarizer_model": res.Metadata.SummarizerModel,
		"schema_version":   res.Metadata.SchemaVersion,
		"synthesis":        res.Synthesis,
		"document":         string(document),
		"created_at":       time.Now().UTC(),
	}
	if _, err := s.Driver.ExecuteQuery(ctx, driver.SaveRunQuery, params); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	for _, r := range res.Responses {
		params := map[string]interface{}{
			"run_uuid":         id,
			"uuid":             uuid.New().String(),
			"model_id":         r.ModelID,
			"provider":         r.Provider,
			"model":            r.Model,
			"content":          r.Content,
			"response_time_ms": r.ResponseTimeMs,
		}
		if _, err := s.Driver.ExecuteQuery(ctx, driver.SaveResponseQuery, params); err != nil {
			return "", fmt.Errorf("failed to save response for %s: %w", r.ModelID, err)
		}
	}

	if res.Elo != nil {
		for _, c := range res.Elo.Comparisons {
			params := map[string]interface{}{
				"run_uuid":  id,
				"model_a":   c.ModelA,
				"model_b":   c.ModelB,
				"winner":    c.Winner,
				"reasoning": c.Reasoning,
			}
			if _, err := s.Driver.ExecuteQuery(ctx, driver.SaveComparedEdgeQuery, params); err != nil {
				return "", fmt.Errorf("failed to save comparison %s vs %s: %w", c.ModelA, c.ModelB, err)
			}
		}
	}

	return id, nil
}

// Get loads a stored run and re-validates the document on the way out, so a
// corrupted or hand-edited record never reaches a consumer unchecked.
func (s *Store) Get(ctx context.Context, id string) (*schema.EnsembleResult, error) {
	result, err := s.Driver.ExecuteQuery(ctx, driver.GetRunQuery, map[string]interface{}{"uuid": id})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("run %s not found", id)
	}

	raw, ok := result.Records[0].Get("document")
	if !ok {
		return nil, fmt.Errorf("run %s has no document", id)
	}
	document, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("run %s document has unexpected type %T", id, raw)
	}

	parsed := schema.Parse([]byte(document))
	if !parsed.Success {
		return nil, fmt.Errorf("stored run %s failed validation: %w", id, parsed.Err())
	}
	return parsed.Result, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	result, err := s.Driver.ExecuteQuery(ctx, driver.ListRunsQuery, map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}

	summaries := make([]RunSummary, 0, len(result.Records))
	for _, record := range result.Records {
		var sum RunSummary
		if v, ok := record.Get("uuid"); ok {
			sum.ID, _ = v.(string)
		}
		if v, ok := record.Get("type"); ok {
			sum.Type, _ = v.(string)
		}
		if v, ok := record.Get("prompt"); ok {
			sum.Prompt, _ = v.(string)
		}
		if v, ok := record.Get("timestamp"); ok {
			sum.Timestamp, _ = v.(string)
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

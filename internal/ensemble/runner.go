package ensemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timini/ensemble/internal/llm"
	"github.com/timini/ensemble/internal/schema"
)

// RunOutcome collects the first-pass responses of an ensemble query.
type RunOutcome struct {
	Responses    []schema.ModelResponse
	Warnings     []string
	FailedModels []string
}

// Runner queries every requested model concurrently. Best effort: a failing
// model becomes a warning, only a fully failed run is an error.
type Runner struct {
	registry *llm.Registry
	timeout  time.Duration
}

func NewRunner(registry *llm.Registry, timeout time.Duration) *Runner {
	return &Runner{
		registry: registry,
		timeout:  timeout,
	}
}

func (r *Runner) Run(ctx context.Context, models []string, prompt string) (*RunOutcome, error) {
	var (
		mu      sync.Mutex
		outcome RunOutcome
	)
	// Keep response order aligned with the requested model order.
	responses := make([]*schema.ModelResponse, len(models))

	g, ctx := errgroup.WithContext(ctx)

	for i, modelID := range models {
		i, modelID := i, modelID
		g.Go(func() error {
			modelCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			fail := func(err error) {
				mu.Lock()
				defer mu.Unlock()
				outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%s: %v", modelID, err))
				outcome.FailedModels = append(outcome.FailedModels, modelID)
			}

			provider, model, err := llm.SplitModelID(modelID)
			if err != nil {
				fail(err)
				return nil
			}

			client, err := r.registry.Get(modelCtx, modelID)
			if err != nil {
				fail(err)
				return nil
			}

			start := time.Now()
			content, err := client.Generate(modelCtx, prompt)
			if err != nil {
				fail(err)
				return nil
			}

			responses[i] = &schema.ModelResponse{
				ModelID:        modelID,
				Provider:       provider,
				Model:          model,
				DisplayName:    model,
				Content:        content,
				ResponseTimeMs: float64(time.Since(start).Milliseconds()),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, resp := range responses {
		if resp != nil {
			outcome.Responses = append(outcome.Responses, *resp)
		}
	}

	if len(outcome.Responses) == 0 {
		return nil, fmt.Errorf("all models failed: %v", outcome.Warnings)
	}
	return &outcome, nil
}

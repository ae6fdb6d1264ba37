package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/timini/ensemble/internal/config"
	"github.com/timini/ensemble/internal/llm"
	"github.com/timini/ensemble/internal/schema"
)

// ErrInvalidRequest marks failures caused by the request itself rather than
// by a provider or strategy. Callers can map it to a client error.
var ErrInvalidRequest = errors.New("invalid ensemble request")

// Request describes one ensemble run.
type Request struct {
	Prompt   string
	Models   []string
	Strategy schema.ResultType
	TopN     int
}

// Engine runs the four consensus strategies and assembles the result
// document the UI consumes.
type Engine struct {
	registry *llm.Registry
	embedder llm.Embedder
	cfg      config.EnsembleConfig
}

func New(registry *llm.Registry, embedder llm.Embedder, cfg config.EnsembleConfig) *Engine {
	return &Engine{
		registry: registry,
		embedder: embedder,
		cfg:      cfg,
	}
}

// Run executes the requested strategy and returns the result document plus
// per-model warnings from the fan-out. Warnings are non-fatal: a run with
// some failed models still succeeds as long as one response came back.
func (e *Engine) Run(ctx context.Context, req Request) (*schema.EnsembleResult, []string, error) {
	if req.Prompt == "" {
		return nil, nil, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	models := req.Models
	if len(models) == 0 {
		models = e.cfg.DefaultModels
	}
	if len(models) == 0 {
		return nil, nil, fmt.Errorf("%w: no models requested and no defaults configured", ErrInvalidRequest)
	}

	runner := NewRunner(e.registry, time.Duration(e.cfg.TimeoutSeconds)*time.Second)
	outcome, err := runner.Run(ctx, models, req.Prompt)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range outcome.Warnings {
		log.Printf("ensemble run warning: %s", w)
	}

	res := &schema.EnsembleResult{
		Type: req.Strategy,
		Metadata: schema.Metadata{
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			Prompt:          req.Prompt,
			Models:          models,
			SummarizerModel: e.cfg.SummarizerModel,
			SchemaVersion:   schema.DefaultSchemaVersion,
		},
		Responses: outcome.Responses,
	}

	switch req.Strategy {
	case schema.TypeStandard:
		err = e.runStandard(ctx, req.Prompt, res)
	case schema.TypeElo:
		topN := req.TopN
		if topN <= 0 {
			topN = e.cfg.EloTopN
		}
		err = e.runElo(ctx, req.Prompt, topN, res)
	case schema.TypeMajority:
		err = e.runMajority(ctx, res)
	case schema.TypeCouncil:
		err = e.runCouncil(ctx, req.Prompt, res)
	default:
		return nil, nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidRequest, req.Strategy)
	}
	if err != nil {
		return nil, nil, err
	}

	return res, outcome.Warnings, nil
}

func (e *Engine) judge(ctx context.Context) (llm.Client, error) {
	c, err := e.registry.Get(ctx, e.cfg.SummarizerModel)
	if err != nil {
		return nil, fmt.Errorf("summarizer model unavailable: %w", err)
	}
	return c, nil
}

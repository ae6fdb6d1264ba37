package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/timini/ensemble/internal/config"
)

// Registry maps ensemble model IDs to their backends, building clients on
// first use. Safe for concurrent access during a fan-out.
type Registry struct {
	mu        sync.RWMutex
	providers config.ProvidersConfig
	clients   map[string]Client
}

func NewRegistry(providers config.ProvidersConfig) *Registry {
	return &Registry{
		providers: providers,
		clients:   make(map[string]Client),
	}
}

// Register pins a backend for a model ID, replacing any cached client.
// Used by tests to install fakes.
func (r *Registry) Register(modelID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[modelID] = c
}

// Get returns the backend for a model ID, constructing it if needed.
func (r *Registry) Get(ctx context.Context, modelID string) (Client, error) {
	r.mu.RLock()
	c, ok := r.clients[modelID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := NewClient(ctx, r.providers, modelID)
	if err != nil {
		return nil, fmt.Errorf("unknown model %s: %w", modelID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.clients[modelID]; ok {
		return cached, nil
	}
	r.clients[modelID] = c
	return c, nil
}

// Models returns all model IDs with a cached backend.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.clients))
	for m := range r.clients {
		models = append(models, m)
	}
	return models
}

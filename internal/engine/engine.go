package engine

import (
	"context"
	"fmt"

	"github.com/supertedai/memgate/internal/config"
	"github.com/supertedai/memgate/internal/llm"
	"github.com/supertedai/memgate/internal/store"
)

// Engine is the conversational memory core: the fact store, the decaying
// context pool, the domain classifier, the enforcement engine and the
// adaptation loop, sharing one database handle and one parameter registry.
//
// Store handles and collaborators are injected; nothing here reaches for
// ambient state, so tests swap in OpenMemory, MockClient and HashEmbedder.
type Engine struct {
	DB       *store.DB
	LLM      llm.Client
	Embedder Embedder
	Params   *Params

	cfg        config.MemoryConfig
	classifier *classifier

	maintenanceRunning chan struct{}
}

// New creates an Engine with the given store and collaborators.
func New(db *store.DB, client llm.Client, cfg config.MemoryConfig) *Engine {
	e := &Engine{
		DB:                 db,
		LLM:                client,
		Params:             NewParams(cfg),
		cfg:                cfg,
		maintenanceRunning: make(chan struct{}, 1),
	}
	e.classifier = newClassifier(e)
	return e
}

// SetEmbedder configures the embedding provider. Domain centroids are
// recomputed lazily on the next classification.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
	e.classifier.reset()
}

// embed wraps the embedder with the shared unavailability error so callers
// can degrade uniformly.
func (e *Engine) embed(ctx context.Context, text string) ([]float64, error) {
	if e.Embedder == nil {
		return nil, ErrCollaboratorUnavailable
	}
	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}
	return vec, nil
}

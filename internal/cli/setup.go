package cli

import (
	"fmt"
	"os"

	"github.com/supertedai/memgate/internal/config"
	"github.com/supertedai/memgate/internal/engine"
	"github.com/supertedai/memgate/internal/llm"
	"github.com/supertedai/memgate/internal/store"
)

// loadConfig resolves the config file path and loads it. A missing file is
// fine — defaults plus environment overrides apply.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

// openEngine opens the database and assembles an engine with whatever
// collaborators are reachable: the configured LLM if credentials exist, the
// Ollama embedder if the daemon answers, the deterministic hash embedder
// otherwise. Returns the db so the caller can defer Close.
func openEngine(cfg config.Config) (*engine.Engine, *store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	var client llm.Client
	if c, err := llm.NewClient(cfg.LLM); err != nil {
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), pattern matching only\n", err)
	} else {
		client = c
		fmt.Fprintf(os.Stderr, "  llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	}

	eng := engine.New(db, client, cfg.Memory)

	ollamaURL := cfg.LLM.OllamaURL
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	embeddingModel := cfg.LLM.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}

	if engine.ProbeOllama(ollamaURL, embeddingModel) {
		eng.SetEmbedder(engine.NewOllamaEmbedder(ollamaURL, embeddingModel, 768))
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", embeddingModel)
	} else {
		eng.SetEmbedder(engine.NewHashEmbedder(256))
		fmt.Fprintf(os.Stderr, "  embedder: hash (fallback)\n")
	}

	return eng, db, nil
}

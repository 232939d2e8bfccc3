package cli

import (
	"context"
	"fmt"
	"log/slog"

	"cleanse/internal/chat"
	"cleanse/internal/chunker"
	"cleanse/internal/config"
	"cleanse/internal/domain"
	"cleanse/internal/embedding/openai"
	"cleanse/internal/embedding/tfidf"
	"cleanse/internal/llm"
	"cleanse/internal/prompt"
	"cleanse/internal/service"
	"cleanse/internal/vectorstore"
	"cleanse/internal/vectorstore/chromem"
	"cleanse/internal/vectorstore/qdrant"
)

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		if o == nil {
			return nil, domain.NewConfigurationError("embedder.openai", "section missing")
		}
		key, err := config.Secret(o.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKey:    key,
			Model:     o.Model,
			Timeout:   config.Timeout(o.TimeoutSecs),
			BatchSize: o.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, domain.NewConfigurationError("embedder.type", fmt.Sprintf("unknown embedder %q", cfg.Embedder.Type))
	}
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "window":
		c, err := chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, domain.NewConfigurationError("chunker.type", fmt.Sprintf("unknown chunker %q", cfg.Chunker.Type))
	}
}

// stateDir is where the manifest and embedder state of the index live.
func stateDir(cfg *config.AppConfig) (string, error) {
	switch cfg.VectorStore.Type {
	case chromem.Backend:
		return cfg.VectorStore.Chromem.Path, nil
	case qdrant.Backend:
		return cfg.VectorStore.Qdrant.StatePath, nil
	default:
		return "", domain.NewConfigurationError("vector_store.type", fmt.Sprintf("unknown vector store %q", cfg.VectorStore.Type))
	}
}

func qdrantConfig(cfg *config.AppConfig) qdrant.Config {
	q := cfg.VectorStore.Qdrant
	return qdrant.Config{Addr: q.Addr, Collection: q.Collection, Timeout: config.Timeout(q.TimeoutSecs)}
}

// indexFactory creates the empty index a build writes into.
func indexFactory(cfg *config.AppConfig) (service.IndexFactory, error) {
	switch cfg.VectorStore.Type {
	case chromem.Backend:
		c := cfg.VectorStore.Chromem
		return func(_ context.Context, dim int) (vectorstore.Store, error) {
			idx, err := chromem.Create(c.Path, c.Collection, dim)
			if err != nil {
				return nil, err
			}
			return idx, nil
		}, nil
	case qdrant.Backend:
		qc := qdrantConfig(cfg)
		return func(ctx context.Context, dim int) (vectorstore.Store, error) {
			s, err := qdrant.Dial(qc)
			if err != nil {
				return nil, err
			}
			if err := s.Recreate(ctx, dim); err != nil {
				s.Close()
				return nil, err
			}
			return s, nil
		}, nil
	default:
		_, err := stateDir(cfg)
		return nil, err
	}
}

func openIndex(ctx context.Context, cfg *config.AppConfig) (vectorstore.Store, vectorstore.Manifest, error) {
	switch cfg.VectorStore.Type {
	case chromem.Backend:
		c := cfg.VectorStore.Chromem
		idx, m, err := chromem.Open(c.Path, c.Collection)
		if err != nil {
			return nil, m, err
		}
		return idx, m, nil
	case qdrant.Backend:
		s, m, err := qdrant.Open(ctx, qdrantConfig(cfg), cfg.VectorStore.Qdrant.StatePath)
		if err != nil {
			return nil, m, err
		}
		return s, m, nil
	default:
		_, err := stateDir(cfg)
		return nil, vectorstore.Manifest{}, err
	}
}

// app holds the process-wide singletons of the answering chain.
type app struct {
	chat  *chat.Service
	index vectorstore.Store
	info  vectorstore.Manifest
}

func (a *app) Close() error { return a.index.Close() }

// newApp loads the index and builds the conversation orchestrator. Any
// missing prerequisite fails here, before a front end starts.
func newApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	dir, err := stateDir(cfg)
	if err != nil {
		return nil, err
	}
	idx, manifest, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := service.RestoreEmbedder(emb, dir, manifest); err != nil {
		idx.Close()
		return nil, err
	}

	key, err := config.Secret(cfg.LLM.APIKeyEnv)
	if err != nil {
		idx.Close()
		return nil, err
	}
	gen, err := llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      key,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     config.Timeout(cfg.LLM.TimeoutSecs),
	}, logger)
	if err != nil {
		idx.Close()
		return nil, err
	}

	c := cfg.Chat
	retriever := service.NewRetriever(emb, idx, c.TopK)
	svc := chat.New(
		retriever,
		prompt.New(c.Persona, c.FallbackPhrase),
		gen,
		chat.Options{
			Memory:       c.Memory,
			HistoryTurns: c.HistoryTurns,
			Timeout:      config.Timeout(cfg.LLM.TimeoutSecs),
			EmptyQuery:   c.EmptyQuery,
			Failure:      c.Failure,
		},
		logger,
	)
	logger.Info("index loaded",
		"backend", manifest.Backend,
		"embedder", manifest.Embedder,
		"chunks", manifest.Chunks,
		"built_at", manifest.BuiltAt,
		"top_k", retriever.TopK(),
	)
	return &app{chat: svc, index: idx, info: manifest}, nil
}

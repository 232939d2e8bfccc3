// Package service wires the offline indexing pipeline and the query-time
// retriever around the chunker, embedder and vector index.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cleanse/internal/domain"
	"cleanse/internal/vectorstore"
)

// EmbedderStateFile holds embedder state (the TF-IDF vocabulary) next to the manifest.
const EmbedderStateFile = "embedder.json"

// DocumentSource yields the documents to index.
type DocumentSource interface {
	Documents(ctx context.Context) ([]domain.Document, error)
}

// IndexFactory creates an empty index once the embedding dimension is known.
type IndexFactory func(ctx context.Context, dimension int) (vectorstore.Store, error)

// StateSaver is implemented by embedders whose preparation must be persisted.
type StateSaver interface {
	SaveState(path string) error
}

// StateLoader restores what a StateSaver wrote.
type StateLoader interface {
	LoadState(path string) error
}

// IndexerOptions describe where and how an index is built.
type IndexerOptions struct {
	Backend      string
	StateDir     string
	BatchSize    int
	ChunkSize    int
	ChunkOverlap int
}

// IndexStats summarises a build.
type IndexStats struct {
	Documents int
	Chunks    int
	Skipped   int
	Dimension int
}

// Indexer rebuilds the vector index from the corpus.
type Indexer struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	create   IndexFactory
	opts     IndexerOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewIndexer creates an Indexer.
func NewIndexer(chunker domain.Chunker, embedder domain.Embedder, create IndexFactory, opts IndexerOptions, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Indexer{chunker: chunker, embedder: embedder, create: create, opts: opts, logger: logger, now: time.Now}
}

// Build chunks and embeds every document and writes a fresh index.
// The manifest is written last, so an interrupted build leaves no loadable index.
func (ix *Indexer) Build(ctx context.Context, source DocumentSource) (IndexStats, error) {
	var stats IndexStats

	docs, err := source.Documents(ctx)
	if err != nil {
		return stats, fmt.Errorf("service: loading documents: %w", err)
	}
	if len(docs) == 0 {
		return stats, domain.NewConfigurationError("corpus", "no documents to index: run the collector first")
	}
	stats.Documents = len(docs)

	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := ix.chunker.Chunk(d)
		if err != nil {
			return stats, fmt.Errorf("service: chunking %s: %w", d.ID, err)
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return stats, domain.NewConfigurationError("corpus", "documents produced no chunks")
	}
	ix.logger.Info("chunked corpus", "documents", len(docs), "chunks", len(chunks))

	if err := os.Remove(filepath.Join(ix.opts.StateDir, vectorstore.ManifestFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return stats, fmt.Errorf("service: removing old manifest: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if err := ix.embedder.Prepare(ctx, texts); err != nil {
		return stats, fmt.Errorf("service: preparing embedder: %w", err)
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return stats, err
	}

	entries := make([]domain.IndexEntry, 0, len(chunks))
	for i, c := range chunks {
		if vectorstore.IsZero(vectors[i]) {
			ix.logger.Debug("skipping chunk without embeddable terms", "chunk_id", c.ChunkID)
			stats.Skipped++
			continue
		}
		entries = append(entries, domain.IndexEntry{Chunk: c, Embedding: vectors[i]})
	}
	if len(entries) == 0 {
		return stats, errors.New("service: no chunk produced a usable embedding")
	}
	stats.Dimension = len(entries[0].Embedding)

	idx, err := ix.create(ctx, stats.Dimension)
	if err != nil {
		return stats, fmt.Errorf("service: creating index: %w", err)
	}
	defer idx.Close()

	for start := 0; start < len(entries); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(entries))
		if err := idx.Add(ctx, entries[start:end]); err != nil {
			return stats, fmt.Errorf("service: adding entries: %w", err)
		}
	}
	stats.Chunks = len(entries)

	if err := os.MkdirAll(ix.opts.StateDir, 0o755); err != nil {
		return stats, fmt.Errorf("service: creating state dir: %w", err)
	}
	if saver, ok := ix.embedder.(StateSaver); ok {
		if err := saver.SaveState(filepath.Join(ix.opts.StateDir, EmbedderStateFile)); err != nil {
			return stats, err
		}
	}

	err = vectorstore.WriteManifest(ix.opts.StateDir, vectorstore.Manifest{
		Backend:      ix.opts.Backend,
		Embedder:     ix.embedder.Name(),
		Dimension:    stats.Dimension,
		Documents:    stats.Documents,
		Chunks:       stats.Chunks,
		ChunkSize:    ix.opts.ChunkSize,
		ChunkOverlap: ix.opts.ChunkOverlap,
		BuiltAt:      ix.now().UTC(),
	})
	if err != nil {
		return stats, err
	}
	ix.logger.Info("index built", "chunks", stats.Chunks, "skipped", stats.Skipped, "dimension", stats.Dimension)
	return stats, nil
}

func (ix *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	batcher, batched := ix.embedder.(domain.BatchEmbedder)
	for start := 0; start < len(texts); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(texts))
		if batched {
			vecs, err := batcher.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return nil, fmt.Errorf("service: embedding chunks: %w", err)
			}
			out = append(out, vecs...)
		} else {
			for _, t := range texts[start:end] {
				v, err := ix.embedder.Embed(ctx, t)
				if err != nil {
					return nil, fmt.Errorf("service: embedding chunks: %w", err)
				}
				out = append(out, v)
			}
		}
		ix.logger.Debug("embedded batch", "done", end, "total", len(texts))
	}
	return out, nil
}

// RestoreEmbedder loads persisted embedder state from stateDir when the
// embedder needs it, and checks it against the manifest.
func RestoreEmbedder(embedder domain.Embedder, stateDir string, m vectorstore.Manifest) error {
	if loader, ok := embedder.(StateLoader); ok {
		path := filepath.Join(stateDir, EmbedderStateFile)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return &domain.IndexNotFoundError{Location: path}
		}
		if err := loader.LoadState(path); err != nil {
			return err
		}
	}
	return m.Verify(embedder.Name(), embedder.Dimension())
}

// Package chromem is the default vector index: a chromem-go collection
// persisted under the index directory.
package chromem

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"

	"github.com/philippgille/chromem-go"

	"cleanse/internal/domain"
	"cleanse/internal/vectorstore"
)

// Backend names this implementation in index manifests.
const Backend = "chromem"

// dataDir keeps chromem's files apart from the manifest and embedder state.
const dataDir = "chromem"

const (
	metaDocument  = "document_id"
	metaIndex     = "index"
	metaSource    = "source"
	metaSubreddit = "subreddit"
)

// Index is a vector index backed by chromem-go.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
}

// Create discards any index at dir and starts an empty persistent one.
func Create(dir, collection string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, errors.New("chromem: invalid dimension")
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("chromem: removing old index: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chromem: creating index dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, dataDir), false)
	if err != nil {
		return nil, fmt.Errorf("chromem: failed to create persistent db: %w", err)
	}
	return newIndex(db, collection, dimension)
}

// NewMemory creates an index that lives only in memory.
func NewMemory(collection string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, errors.New("chromem: invalid dimension")
	}
	return newIndex(chromem.NewDB(), collection, dimension)
}

func newIndex(db *chromem.DB, collection string, dimension int) (*Index, error) {
	// Embeddings are always supplied by the caller, so no embedding func is set.
	col, err := db.CreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: failed to create collection: %w", err)
	}
	return &Index{db: db, collection: col, dimension: dimension}, nil
}

// Open loads the index built in dir, together with its manifest.
func Open(dir, collection string) (*Index, vectorstore.Manifest, error) {
	m, err := vectorstore.ReadManifest(dir)
	if err != nil {
		return nil, m, err
	}
	if m.Backend != "" && m.Backend != Backend {
		return nil, m, domain.NewConfigurationError("vector_store.type",
			fmt.Sprintf("index in %s was built for %s", dir, m.Backend))
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, dataDir), false)
	if err != nil {
		return nil, m, fmt.Errorf("chromem: failed to open persistent db: %w", err)
	}
	col := db.GetCollection(collection, nil)
	if col == nil {
		return nil, m, &domain.IndexNotFoundError{Location: filepath.Join(dir, collection)}
	}
	return &Index{db: db, collection: col, dimension: m.Dimension}, m, nil
}

// Dimension returns the embedding size every entry must have.
func (i *Index) Dimension() int { return i.dimension }

// Add appends entries to the collection.
func (i *Index) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := vectorstore.CheckEntries(i.dimension, entries); err != nil {
		return err
	}
	docs := make([]chromem.Document, len(entries))
	for n, e := range entries {
		if vectorstore.IsZero(e.Embedding) {
			return fmt.Errorf("chromem: chunk %s has a zero embedding", e.Chunk.ChunkID)
		}
		docs[n] = chromem.Document{
			ID:      e.Chunk.ChunkID,
			Content: e.Chunk.Text,
			Metadata: map[string]string{
				metaDocument:  e.Chunk.DocumentID,
				metaIndex:     strconv.Itoa(e.Chunk.Index),
				metaSource:    e.Chunk.SourceURL,
				metaSubreddit: e.Chunk.Community,
			},
			Embedding: e.Embedding,
		}
	}
	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem: failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to topK entries by descending cosine similarity.
// A zero query vector matches nothing.
func (i *Index) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("chromem: invalid topK %d", topK)
	}
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("chromem: query has dimension %d, index expects %d", len(vector), i.dimension)
	}
	if vectorstore.IsZero(vector) {
		return nil, nil
	}
	n := i.collection.Count()
	if n == 0 {
		return nil, nil
	}

	res, err := i.collection.QueryEmbedding(ctx, vector, min(topK, n), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: failed to query collection: %w", err)
	}
	// Equal scores are ordered by chunk id so repeated queries agree.
	slices.SortStableFunc(res, func(a, b chromem.Result) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	out := make([]domain.SearchResult, len(res))
	for n, r := range res {
		idx, _ := strconv.Atoi(r.Metadata[metaIndex])
		out[n] = domain.SearchResult{
			Chunk: domain.Chunk{
				DocumentID: r.Metadata[metaDocument],
				ChunkID:    r.ID,
				Text:       r.Content,
				Index:      idx,
				SourceURL:  r.Metadata[metaSource],
				Community:  r.Metadata[metaSubreddit],
			},
			Score: float64(r.Similarity),
		}
	}
	return out, nil
}

// Count returns the number of stored entries.
func (i *Index) Count(context.Context) (int, error) {
	return i.collection.Count(), nil
}

// Close is a no-op: documents are persisted as they are added.
func (i *Index) Close() error { return nil }

package service

import (
	"context"

	"cleanse/internal/domain"
	"cleanse/internal/vectorstore"
)

// DefaultTopK is how many chunks are retrieved per question.
const DefaultTopK = 4

// Retriever embeds a question and returns the closest chunks.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	topK     int
}

// NewRetriever creates a Retriever returning topK chunks.
func NewRetriever(embedder domain.Embedder, index domain.VectorIndex, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, topK: topK}
}

// TopK returns the number of chunks requested per query.
func (r *Retriever) TopK() int { return r.topK }

// Retrieve returns chunks ordered by descending similarity. A question
// sharing nothing with the index vocabulary retrieves nothing.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Chunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "embed", Err: err}
	}
	if vectorstore.IsZero(vec) {
		return nil, nil
	}
	res, err := r.index.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "search", Err: err}
	}
	chunks := make([]domain.Chunk, len(res))
	for i, sr := range res {
		chunks[i] = sr.Chunk
	}
	return chunks, nil
}

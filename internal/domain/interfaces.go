package domain

import (
	"context"
	"time"
)

// Post is a single scraped Reddit submission as stored in the corpus.
type Post struct {
	PostID           string    `json:"post_id"`
	Subreddit        string    `json:"subreddit"`
	ChampionSearched string    `json:"champion_searched"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	CommentsContent  string    `json:"comments_content"`
	URL              string    `json:"url"`
	CreatedUTC       int64     `json:"created_utc"`
	RetrievedAt      time.Time `json:"retrieved_at"`
}

// Document is the indexable rendering of one stored post.
type Document struct {
	ID        string
	Text      string
	SourceURL string
	Community string
}

// Chunk is a bounded window of a document's text.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
	SourceURL  string
	Community  string
}

// IndexEntry pairs a chunk with its embedding.
type IndexEntry struct {
	Chunk     Chunk
	Embedding []float32
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a channel's conversation history.
type Turn struct {
	Role Role
	Text string
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed several texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorIndex stores index entries and answers nearest-neighbour queries.
type VectorIndex interface {
	Dimension() int
	Add(ctx context.Context, entries []IndexEntry) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// Generator produces an answer for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answerer is what every conversation front end talks to. It never fails:
// errors are already converted into a user-facing message.
type Answerer interface {
	Answer(ctx context.Context, channelID, query string) string
}

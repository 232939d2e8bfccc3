// Package qdrant stores the vector index in a remote Qdrant collection over
// gRPC. The manifest and embedder state stay in a local state directory.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"cleanse/internal/domain"
	"cleanse/internal/vectorstore"
)

// Backend names this implementation in index manifests.
const Backend = "qdrant"

// pointNamespace derives stable point UUIDs from chunk ids.
var pointNamespace = uuid.MustParse("6f0b5d84-2b6e-4c55-9a5e-6c1e2d0f9a31")

// pointsAPI is the subset of pb.PointsClient the store calls.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store calls.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Config holds connection details.
type Config struct {
	Addr       string
	Collection string
	Timeout    time.Duration
}

// Storage is a vector index held in Qdrant.
type Storage struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dimension   int
	timeout     time.Duration
}

// Dial connects to Qdrant. No request is made until the store is used.
func Dial(cfg Config) (*Storage, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", cfg.Addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Collection)
	s.conn = conn
	if cfg.Timeout > 0 {
		s.timeout = cfg.Timeout
	}
	return s, nil
}

// NewWithClients builds a store over existing gRPC clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *Storage {
	return &Storage{
		points:      points,
		collections: collections,
		collection:  collection,
		timeout:     15 * time.Second,
	}
}

// Close closes the underlying gRPC connection.
func (s *Storage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Storage) exists(ctx context.Context) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// Recreate drops the collection if present and creates it empty with cosine distance.
func (s *Storage) Recreate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	found, err := s.exists(ctx)
	if err != nil {
		return err
	}
	if found {
		if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
			return fmt.Errorf("qdrant: delete collection %s: %w", s.collection, err)
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dimension), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	s.dimension = dimension
	return nil
}

// Attach binds the store to an existing collection built with the given dimension.
func (s *Storage) Attach(ctx context.Context, dimension int) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	found, err := s.exists(ctx)
	if err != nil {
		return err
	}
	if !found {
		return &domain.IndexNotFoundError{Location: "qdrant collection " + s.collection}
	}
	s.dimension = dimension
	return nil
}

// Open attaches to the collection described by the manifest in stateDir.
func Open(ctx context.Context, cfg Config, stateDir string) (*Storage, vectorstore.Manifest, error) {
	m, err := vectorstore.ReadManifest(stateDir)
	if err != nil {
		return nil, m, err
	}
	if m.Backend != Backend {
		return nil, m, domain.NewConfigurationError("vector_store.type",
			fmt.Sprintf("index in %s was built for %s", stateDir, m.Backend))
	}
	s, err := Dial(cfg)
	if err != nil {
		return nil, m, err
	}
	if err := s.Attach(ctx, m.Dimension); err != nil {
		s.Close()
		return nil, m, err
	}
	return s, m, nil
}

// Dimension returns the collection vector size.
func (s *Storage) Dimension() int { return s.dimension }

// PointID maps a chunk id to the UUID its point is stored under.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Add upserts entries as points whose payload carries the chunk.
func (s *Storage) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := vectorstore.CheckEntries(s.dimension, entries); err != nil {
		return err
	}
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		c := e.Chunk
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(c.ChunkID)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Embedding}},
			},
			Payload: map[string]*pb.Value{
				"document_id": stringValue(c.DocumentID),
				"chunk_id":    stringValue(c.ChunkID),
				"index":       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
				"text":        stringValue(c.Text),
				"source":      stringValue(c.SourceURL),
				"subreddit":   stringValue(c.Community),
			},
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search returns the topK closest chunks. A zero query vector matches nothing.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("qdrant: invalid topK %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("qdrant: query has dimension %d, index expects %d", len(vector), s.dimension)
	}
	if vectorstore.IsZero(vector) {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		p := r.GetPayload()
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				DocumentID: p["document_id"].GetStringValue(),
				ChunkID:    p["chunk_id"].GetStringValue(),
				Index:      int(p["index"].GetIntegerValue()),
				Text:       p["text"].GetStringValue(),
				SourceURL:  p["source"].GetStringValue(),
				Community:  p["subreddit"].GetStringValue(),
			},
			Score: float64(r.GetScore()),
		})
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (s *Storage) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

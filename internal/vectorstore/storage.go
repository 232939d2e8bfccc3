// Package vectorstore holds what every vector index backend shares: the
// Store contract and the manifest describing how an index was built.
package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"cleanse/internal/domain"
)

// ManifestFile is written into the index state directory after a build.
const ManifestFile = "manifest.yaml"

// Store is a vector index backend that owns external resources.
type Store interface {
	domain.VectorIndex
	Close() error
}

// Manifest records what an index was built with, so a serving process can
// refuse an index that its embedder cannot query.
type Manifest struct {
	Backend      string    `yaml:"backend"`
	Embedder     string    `yaml:"embedder"`
	Dimension    int       `yaml:"dimension"`
	Documents    int       `yaml:"documents"`
	Chunks       int       `yaml:"chunks"`
	ChunkSize    int       `yaml:"chunk_size"`
	ChunkOverlap int       `yaml:"chunk_overlap"`
	BuiltAt      time.Time `yaml:"built_at"`
}

// WriteManifest stores m in dir.
func WriteManifest(dir string, m Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vectorstore: creating %s: %w", dir, err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("vectorstore: encoding manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}

// ReadManifest loads the manifest of the index in dir. A missing manifest
// means the index was never built.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, &domain.IndexNotFoundError{Location: dir}
		}
		return m, fmt.Errorf("vectorstore: reading manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("vectorstore: decoding manifest: %w", err)
	}
	return m, nil
}

// Verify checks that the index can be queried with the named embedder.
// A zero dimension skips the size check for embedders that learn it lazily.
func (m Manifest) Verify(embedder string, dimension int) error {
	if m.Embedder != embedder {
		return domain.NewConfigurationError("embedder",
			fmt.Sprintf("index was built with %q but %q is configured; rebuild the index", m.Embedder, embedder))
	}
	if dimension != 0 && m.Dimension != dimension {
		return domain.NewConfigurationError("dimension",
			fmt.Sprintf("index has dimension %d but the embedder produces %d", m.Dimension, dimension))
	}
	return nil
}

// CheckEntries rejects entries whose embedding does not have the index dimension.
func CheckEntries(dimension int, entries []domain.IndexEntry) error {
	for _, e := range entries {
		if len(e.Embedding) != dimension {
			return fmt.Errorf("vectorstore: chunk %s has dimension %d, index expects %d",
				e.Chunk.ChunkID, len(e.Embedding), dimension)
		}
	}
	return nil
}

// IsZero reports whether v has no direction; such vectors cannot be ranked by cosine similarity.
func IsZero(v []float32) bool {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum == 0 || math.IsNaN(sum)
}

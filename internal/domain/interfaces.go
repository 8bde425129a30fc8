package domain

import "context"

// Embedder maps text onto fixed-length vectors with a single pinned model.
// The same instance embeds both indexed chunks and incoming questions.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthChecker is implemented by components that can verify their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Chunker splits a document into overlapping segments.
type Chunker interface {
	Chunk(document Document) []Chunk
}

// VectorStore holds embedding records and answers nearest-neighbour queries.
// Build replaces the whole index; the index is read-only afterwards.
type VectorStore interface {
	Build(ctx context.Context, records []EmbeddingRecord) error
	Load(ctx context.Context) error
	Query(ctx context.Context, vector []float32, k int) ([]SearchResult, error)
	Len() int
	Close() error
}

// Generator sends a rendered prompt to a hosted chat model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

package domain

import "fmt"

// Document is the plain text extracted from one course file.
type Document struct {
	SourcePath string
	Text       string
}

// Chunk is a contiguous segment of a document.
type Chunk struct {
	Text       string
	SourcePath string
	Index      int
}

// ID returns a handle unique within one index build.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.SourcePath, c.Index)
}

// EmbeddingRecord pairs a chunk with its vector.
type EmbeddingRecord struct {
	ID     string
	Vector []float32
	Chunk  Chunk
}

// SearchResult is a retrieved chunk with its cosine similarity to the query.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// ChatTurn is one question/answer exchange shown by a front-end.
type ChatTurn struct {
	Question string
	Answer   string
	Sources  []SearchResult
}

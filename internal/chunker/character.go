package chunker

import (
	"fmt"

	"ermtutor/internal/domain"
)

// CharacterChunker splits text into fixed-size rune windows.
// Consecutive chunks share exactly overlap runes; the last chunk may be shorter.
type CharacterChunker struct {
	size    int
	overlap int
}

var _ domain.Chunker = (*CharacterChunker)(nil)

// NewCharacterChunker requires size > overlap >= 0.
func NewCharacterChunker(size, overlap int) (*CharacterChunker, error) {
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap %d must be >= 0: %w", overlap, domain.ErrConfiguration)
	}
	if size <= overlap {
		return nil, fmt.Errorf("chunk size %d must be greater than overlap %d: %w", size, overlap, domain.ErrConfiguration)
	}
	return &CharacterChunker{size: size, overlap: overlap}, nil
}

// Chunk returns the windows of document in order. Empty text yields no chunks.
func (c *CharacterChunker) Chunk(document domain.Document) []domain.Chunk {
	runes := []rune(document.Text)
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []domain.Chunk
	for start, idx := 0, 0; ; start, idx = start+step, idx+1 {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, domain.Chunk{
			Text:       string(runes[start:end]),
			SourcePath: document.SourcePath,
			Index:      idx,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

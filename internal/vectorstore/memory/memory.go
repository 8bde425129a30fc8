package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// Queries take a read lock, so concurrent questions are safe.
type Storage struct {
	mu           sync.RWMutex
	dimension    int
	model        string
	snapshotPath string
	records      []domain.EmbeddingRecord
	norms        []float64
	logger       *zap.Logger
}

var _ domain.VectorStore = (*Storage)(nil)

// Config configures the store. An empty SnapshotPath disables persistence.
type Config struct {
	Dimension    int
	Model        string
	SnapshotPath string
}

// NewStorage creates an empty store for vectors of cfg.Dimension produced by cfg.Model.
func NewStorage(cfg Config, logger *zap.Logger) (*Storage, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d: %w", cfg.Dimension, domain.ErrConfiguration)
	}
	return &Storage{
		dimension:    cfg.Dimension,
		model:        cfg.Model,
		snapshotPath: cfg.SnapshotPath,
		logger:       logger,
	}, nil
}

// Build replaces the index with records and persists it when a snapshot path is set.
func (s *Storage) Build(_ context.Context, records []domain.EmbeddingRecord) error {
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("record %s has %d dimensions, store expects %d: %w",
				r.ID, len(r.Vector), s.dimension, domain.ErrDimensionMismatch)
		}
	}
	cp := make([]domain.EmbeddingRecord, len(records))
	copy(cp, records)

	s.mu.Lock()
	s.records = cp
	s.norms = norms(cp)
	s.mu.Unlock()

	if s.snapshotPath == "" {
		return nil
	}
	if err := writeSnapshot(s.snapshotPath, snapshot{
		Version:   snapshotVersion,
		Model:     s.model,
		Dimension: s.dimension,
		Records:   cp,
	}); err != nil {
		return fmt.Errorf("persist index: %w: %w", domain.ErrIndex, err)
	}
	s.logger.Info("Index snapshot written", zap.String("path", s.snapshotPath), zap.Int("records", len(cp)))
	return nil
}

// Load replaces the index with the persisted snapshot.
func (s *Storage) Load(_ context.Context) error {
	if s.snapshotPath == "" {
		return domain.ErrSnapshotNotFound
	}
	snap, err := readSnapshot(s.snapshotPath)
	if err != nil {
		return err
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d: %w", snap.Version, snapshotVersion, domain.ErrStoreCorrupt)
	}
	if snap.Model != s.model {
		return fmt.Errorf("snapshot built by %q, active model is %q: %w", snap.Model, s.model, domain.ErrStoreCorrupt)
	}
	if snap.Dimension != s.dimension {
		return fmt.Errorf("snapshot dimension %d, embedder dimension %d: %w", snap.Dimension, s.dimension, domain.ErrStoreCorrupt)
	}
	for _, r := range snap.Records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("snapshot record %s has %d dimensions: %w", r.ID, len(r.Vector), domain.ErrStoreCorrupt)
		}
	}

	s.mu.Lock()
	s.records = snap.Records
	s.norms = norms(snap.Records)
	s.mu.Unlock()
	return nil
}

// Query returns the k records most similar to vector, most similar first.
// Equal scores keep insertion order.
func (s *Storage) Query(_ context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: %w: query has %d dimensions, index has %d",
			domain.ErrRetrieval, domain.ErrDimensionMismatch, len(vector), s.dimension)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.records) == 0 {
		return []domain.SearchResult{}, nil
	}
	qnorm := norm(vector)
	scores := make([]float64, len(s.records))
	for i := range s.records {
		scores[i] = cosine(s.records[i].Vector, vector, s.norms[i], qnorm)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })

	k = min(k, len(idxs))
	results := make([]domain.SearchResult, k)
	for i := 0; i < k; i++ {
		j := idxs[i]
		results[i] = domain.SearchResult{Chunk: s.records[j].Chunk, Score: scores[j]}
	}
	return results, nil
}

// Len returns the number of indexed records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases nothing; the snapshot is written during Build.
func (s *Storage) Close() error { return nil }

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum / (na * nb)
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func norms(records []domain.EmbeddingRecord) []float64 {
	out := make([]float64, len(records))
	for i := range records {
		out[i] = norm(records[i].Vector)
	}
	return out
}

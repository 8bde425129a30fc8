package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
)

const upsertBatchSize = 256

// Storage is a minimal REST client to a Qdrant collection with cosine distance.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	model      string
	client     *http.Client
	count      atomic.Int64
	logger     *zap.Logger
}

var _ domain.VectorStore = (*Storage)(nil)

// Config configures the Qdrant connection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Model      string
	Timeout    time.Duration
}

// NewStorage creates a client; it does not contact Qdrant until Build or Load.
func NewStorage(cfg Config, logger *zap.Logger) (*Storage, error) {
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant url and collection are required: %w", domain.ErrConfiguration)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d: %w", cfg.Dimension, domain.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		model:      cfg.Model,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type payload struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Model  string `json:"model"`
	// Total is the record count of the build that wrote the point.
	Total int `json:"total"`
}

type point struct {
	ID      int       `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

// Build drops and recreates the collection, then upserts records with ids in insertion order.
// A failed upsert drops the collection again so a partial index is never loaded.
func (s *Storage) Build(ctx context.Context, records []domain.EmbeddingRecord) error {
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("record %s has %d dimensions, store expects %d: %w",
				r.ID, len(r.Vector), s.dimension, domain.ErrDimensionMismatch)
		}
	}
	if _, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil && !isNotFound(err) {
		return fmt.Errorf("drop collection: %w: %w", domain.ErrIndex, err)
	}
	create := map[string]any{
		"vectors": map[string]any{"size": s.dimension, "distance": "Cosine"},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(), create, nil); err != nil {
		return fmt.Errorf("create collection: %w: %w", domain.ErrIndex, err)
	}

	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			r := records[i]
			points = append(points, point{
				ID:     i,
				Vector: r.Vector,
				Payload: payload{
					Source: r.Chunk.SourcePath,
					Index:  r.Chunk.Index,
					Text:   r.Chunk.Text,
					Model:  s.model,
					Total:  len(records),
				},
			})
		}
		body := map[string]any{"points": points}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil); err != nil {
			s.dropPartial(start)
			return fmt.Errorf("upsert points %d..%d: %w: %w", start, end, domain.ErrIndex, err)
		}
	}
	s.count.Store(int64(len(records)))
	s.logger.Info("Qdrant collection rebuilt", zap.String("collection", s.collection), zap.Int("points", len(records)))
	return nil
}

// Load attaches to an existing collection after checking it matches the active embedder.
func (s *Storage) Load(ctx context.Context) error {
	var info struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info); err != nil {
		if isNotFound(err) {
			return domain.ErrSnapshotNotFound
		}
		return fmt.Errorf("collection info: %w: %w", domain.ErrStoreCorrupt, err)
	}
	if size := info.Result.Config.Params.Vectors.Size; size != s.dimension {
		return fmt.Errorf("collection vector size %d, embedder dimension %d: %w", size, s.dimension, domain.ErrStoreCorrupt)
	}
	if info.Result.PointsCount == 0 {
		return domain.ErrSnapshotNotFound
	}

	var scroll struct {
		Result struct {
			Points []struct {
				Payload payload `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	req := map[string]any{"limit": 1, "with_payload": true, "with_vector": false}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/scroll", req, &scroll); err != nil {
		return fmt.Errorf("scroll collection: %w: %w", domain.ErrStoreCorrupt, err)
	}
	if len(scroll.Result.Points) == 0 {
		return fmt.Errorf("collection reports %d points but scroll returned none: %w", info.Result.PointsCount, domain.ErrStoreCorrupt)
	}
	first := scroll.Result.Points[0].Payload
	if first.Model != s.model {
		return fmt.Errorf("collection built by %q, active model is %q: %w", first.Model, s.model, domain.ErrStoreCorrupt)
	}
	if int64(first.Total) != info.Result.PointsCount {
		return fmt.Errorf("collection holds %d of %d points: %w", info.Result.PointsCount, first.Total, domain.ErrStoreCorrupt)
	}
	s.count.Store(info.Result.PointsCount)
	return nil
}

// Query runs a cosine search. k <= 0 returns no results without contacting Qdrant.
// Equal scores are ordered by point id, which is insertion order.
func (s *Storage) Query(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: %w: query has %d dimensions, index has %d",
			domain.ErrRetrieval, domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 || s.count.Load() == 0 {
		return []domain.SearchResult{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      int     `json:"id"`
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search: %w: %w", domain.ErrRetrieval, err)
	}
	sort.SliceStable(resp.Result, func(i, j int) bool {
		a, b := resp.Result[i], resp.Result[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ID < b.ID
	})
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{Text: r.Payload.Text, SourcePath: r.Payload.Source, Index: r.Payload.Index},
			Score: r.Score,
		})
	}
	return results, nil
}

// Len returns the point count seen at the last Build or Load.
func (s *Storage) Len() int { return int(s.count.Load()) }

// Close releases idle connections.
func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// dropPartial removes a collection left incomplete by a failed Build.
// It uses a fresh context since the build context may already be done.
func (s *Storage) dropPartial(uploaded int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	s.count.Store(0)
	if _, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil && !isNotFound(err) {
		s.logger.Warn("Failed to drop partially built Qdrant collection",
			zap.String("collection", s.collection), zap.Int("uploaded", uploaded), zap.Error(err))
	}
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

type statusError struct {
	method, url string
	status      int
	body        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &statusError{method: method, url: url, status: resp.StatusCode, body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", url, err)
		}
	}
	return resp.StatusCode, nil
}

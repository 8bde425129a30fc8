package cache

import (
	"context"
	"sync"

	"ermtutor/internal/kv"
)

type mockEmbedder struct {
	mu    sync.Mutex
	dim   int
	err   error
	calls [][]string
}

func (m *mockEmbedder) Name() string   { return "mock-model" }
func (m *mockEmbedder) Dimension() int { return m.dim }

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, m.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

// mapStore implements the consumer interface for tests.
type mapStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
}

func newMapStore() *mapStore { return &mapStore{data: map[string][]byte{}} }

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	return v, nil
}

func (s *mapStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

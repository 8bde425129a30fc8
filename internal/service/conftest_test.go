package service

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/chunker"
	"ermtutor/internal/domain"
	"ermtutor/internal/embedding/hashing"
	"ermtutor/internal/prompt"
	"ermtutor/internal/vectorstore/memory"
)

type mockSource struct {
	docs []domain.Document
	errs []error
}

func (m *mockSource) Documents(ctx context.Context) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for _, err := range m.errs {
			if !yield(domain.Document{}, err) {
				return
			}
		}
		for _, d := range m.docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

type mockGenerator struct {
	mu      sync.Mutex
	answer  string
	errs    []error
	calls   int
	prompts []string
}

func (m *mockGenerator) Generate(_ context.Context, p string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, p)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return m.answer, nil
}

type mockEmbedder struct {
	domain.Embedder
	healthErr error
	embedErr  error
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.Embedder.Embed(ctx, texts)
}

func (m *mockEmbedder) HealthCheck(context.Context) error { return m.healthErr }

type mockStore struct {
	domain.VectorStore
	loadErr error
	builds  int
}

func (m *mockStore) Load(ctx context.Context) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	return m.VectorStore.Load(ctx)
}

func (m *mockStore) Build(ctx context.Context, records []domain.EmbeddingRecord) error {
	m.builds++
	return m.VectorStore.Build(ctx, records)
}

type fixture struct {
	tutor    *Tutor
	gen      *mockGenerator
	embedder *mockEmbedder
	store    *mockStore
	source   *mockSource
	snapshot string
}

const sampleSizeText = "In empirical research, the sample size determines the statistical power of a study. " +
	"A larger sample size reduces the standard error of the estimate. " +
	"Researchers compute the required sample size before collecting data."

func newFixture(t *testing.T, docs []domain.Document, opts Options) *fixture {
	t.Helper()
	emb, err := hashing.NewEmbedder(256)
	if err != nil {
		t.Fatalf("hashing.NewEmbedder: %v", err)
	}
	ch, err := chunker.NewCharacterChunker(200, 20)
	if err != nil {
		t.Fatalf("NewCharacterChunker: %v", err)
	}
	snapshot := t.TempDir() + "/index.gob"
	mem, err := memory.NewStorage(memory.Config{Dimension: emb.Dimension(), Model: emb.Name(), SnapshotPath: snapshot}, zap.NewNop())
	if err != nil {
		t.Fatalf("memory.NewStorage: %v", err)
	}
	asm, err := prompt.New("")
	if err != nil {
		t.Fatalf("prompt.New: %v", err)
	}
	f := &fixture{
		gen:      &mockGenerator{answer: "Sample size is the number of observations."},
		embedder: &mockEmbedder{Embedder: emb},
		store:    &mockStore{VectorStore: mem},
		source:   &mockSource{docs: docs},
		snapshot: snapshot,
	}
	if opts.TopK == 0 {
		opts.TopK = 3
	}
	f.tutor = New(Deps{
		Loader:    f.source,
		Chunker:   ch,
		Embedder:  f.embedder,
		Store:     f.store,
		Prompt:    asm,
		Generator: f.gen,
	}, opts, zap.NewNop())
	f.tutor.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func (f *fixture) init(t *testing.T) Stats {
	t.Helper()
	stats, err := f.tutor.Init(context.Background())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return stats
}

package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
	"ermtutor/internal/metrics"
	"ermtutor/internal/prompt"
)

// Fixed replies that do not come from the language model.
const (
	Greeting           = "How can I assist you today?"
	NotRelatedMessage  = "This question is not related to my knowledge."
	NoKnowledgeMessage = "I don't have any course materials loaded yet, so I can't answer questions about the ERM course. Please ask the course administrator to add the materials."
)

// State is the lifecycle phase of a Tutor.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	// StateDegraded is ready with an empty knowledge base.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// DocumentSource yields the course documents to index.
type DocumentSource interface {
	Documents(ctx context.Context) iter.Seq2[domain.Document, error]
}

// Deps are the collaborators of a Tutor.
type Deps struct {
	Loader    DocumentSource
	Chunker   domain.Chunker
	Embedder  domain.Embedder
	Store     domain.VectorStore
	Prompt    *prompt.Assembler
	Generator domain.Generator
}

// Options tune retrieval, timeouts and startup behavior.
type Options struct {
	TopK             int
	MinScore         float64
	BatchSize        int
	EmbedTimeout     time.Duration
	GenerateTimeout  time.Duration
	Retries          int
	ForceRebuild     bool
	RebuildOnCorrupt bool
	ShowSources      bool
	PreviewChars     int
}

// Stats describes the index the tutor started with.
type Stats struct {
	State        State
	FromSnapshot bool
	Documents    int
	Skipped      int
	Chunks       int
	Duration     time.Duration
}

// Answer is the reply to one question.
type Answer struct {
	Text     string
	Sources  []domain.SearchResult
	Grounded bool
}

// Tutor answers questions about the course from the indexed materials.
// Ask is safe for concurrent use once Init has returned.
type Tutor struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	mu    sync.RWMutex
	state State
	stats Stats

	// sleep waits between generator attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires a tutor. Call Init before Ask.
func New(deps Deps, opts Options, logger *zap.Logger) *Tutor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Tutor{deps: deps, opts: opts, logger: logger, sleep: sleepCtx}
}

// State returns the current lifecycle phase.
func (t *Tutor) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Stats returns the startup statistics.
func (t *Tutor) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Init checks the embedder, then loads the persisted index or builds a new one.
// An empty corpus is not an error: the tutor becomes degraded.
func (t *Tutor) Init(ctx context.Context) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateUninitialized {
		return t.stats, nil
	}

	start := time.Now()
	if err := t.checkEmbedder(ctx); err != nil {
		return Stats{}, err
	}

	stats, err := t.loadOrBuild(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.Duration = time.Since(start)
	t.state = stats.State
	t.stats = stats
	metrics.IndexedChunks.Set(float64(t.deps.Store.Len()))

	t.logger.Info("Tutor initialised",
		zap.Stringer("state", stats.State),
		zap.Bool("from_snapshot", stats.FromSnapshot),
		zap.Int("documents", stats.Documents),
		zap.Int("skipped", stats.Skipped),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (t *Tutor) checkEmbedder(ctx context.Context) error {
	hc, ok := t.deps.Embedder.(domain.HealthChecker)
	if !ok {
		return nil
	}
	hctx, cancel := t.withTimeout(ctx, t.opts.EmbedTimeout)
	defer cancel()
	if err := hc.HealthCheck(hctx); err != nil {
		return fmt.Errorf("embedder unavailable: %w", err)
	}
	return nil
}

func (t *Tutor) loadOrBuild(ctx context.Context) (Stats, error) {
	if !t.opts.ForceRebuild {
		err := t.deps.Store.Load(ctx)
		switch {
		case err == nil:
			n := t.deps.Store.Len()
			st := Stats{State: StateReady, FromSnapshot: true, Chunks: n}
			if n == 0 {
				st.State = StateDegraded
			}
			return st, nil
		case errors.Is(err, domain.ErrSnapshotNotFound):
			t.logger.Info("No persisted index, building from materials")
		case errors.Is(err, domain.ErrStoreCorrupt) && t.opts.RebuildOnCorrupt:
			t.logger.Warn("Persisted index unusable, rebuilding", zap.Error(err))
		default:
			return Stats{}, fmt.Errorf("load index: %w: %w", domain.ErrIndex, err)
		}
	}
	return t.build(ctx)
}

func (t *Tutor) build(ctx context.Context) (Stats, error) {
	var stats Stats
	var chunks []domain.Chunk
	for doc, err := range t.deps.Loader.Documents(ctx) {
		if err != nil {
			if errors.Is(err, domain.ErrIngestion) {
				stats.Skipped++
				t.logger.Warn("Skipping unreadable material", zap.Error(err))
				continue
			}
			return Stats{}, fmt.Errorf("load materials: %w: %w", domain.ErrIndex, err)
		}
		stats.Documents++
		docChunks := t.deps.Chunker.Chunk(doc)
		t.logger.Debug("Document chunked", zap.String("source", doc.SourcePath), zap.Int("chunks", len(docChunks)))
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		t.logger.Warn("No course material could be indexed; every question will get the no-knowledge reply",
			zap.Int("documents", stats.Documents), zap.Int("skipped", stats.Skipped))
		stats.State = StateDegraded
		return stats, nil
	}

	records := make([]domain.EmbeddingRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += t.opts.BatchSize {
		end := min(start+t.opts.BatchSize, len(chunks))
		texts := make([]string, end-start)
		for i, ch := range chunks[start:end] {
			texts[i] = ch.Text
		}
		ectx, cancel := t.withTimeout(ctx, t.opts.EmbedTimeout)
		vecs, err := t.deps.Embedder.Embed(ectx, texts)
		cancel()
		if err != nil {
			return Stats{}, fmt.Errorf("embed chunks %d..%d: %w: %w", start, end, domain.ErrIndex, err)
		}
		if len(vecs) != len(texts) {
			return Stats{}, fmt.Errorf("embedder returned %d vectors for %d chunks: %w", len(vecs), len(texts), domain.ErrIndex)
		}
		for i, ch := range chunks[start:end] {
			records = append(records, domain.EmbeddingRecord{ID: ch.ID(), Vector: vecs[i], Chunk: ch})
		}
	}

	if err := t.deps.Store.Build(ctx, records); err != nil {
		return Stats{}, fmt.Errorf("build index: %w: %w", domain.ErrIndex, err)
	}
	stats.Chunks = len(records)
	stats.State = StateReady
	return stats, nil
}

func (t *Tutor) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Close releases the vector store.
func (t *Tutor) Close() error {
	return t.deps.Store.Close()
}

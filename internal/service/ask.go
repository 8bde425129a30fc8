package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
	"ermtutor/internal/logger"
	"ermtutor/internal/metrics"
	"ermtutor/internal/preview"
)

// Ask answers one question. Model failures are returned classified; no answer is fabricated.
func (t *Tutor) Ask(ctx context.Context, question string) (Answer, error) {
	log := logger.FromContext(ctx, t.logger)

	switch t.State() {
	case StateUninitialized:
		return Answer{}, domain.ErrNotReady
	case StateDegraded:
		metrics.ChatOutcomesTotal.WithLabelValues("no_knowledge").Inc()
		return Answer{Text: NoKnowledgeMessage}, nil
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.ErrInvalidQuestion
	}

	results, err := t.retrieve(ctx, question)
	if err != nil {
		metrics.ChatOutcomesTotal.WithLabelValues("error").Inc()
		return Answer{}, err
	}
	metrics.RetrievedChunks.Observe(float64(len(results)))
	for i, r := range results {
		log.Debug("Retrieved chunk",
			zap.Int("rank", i+1),
			zap.String("id", r.Chunk.ID()),
			zap.Float64("score", r.Score),
			zap.String("text", preview.Truncate(r.Chunk.Text, 500)),
		)
	}
	if len(results) == 0 {
		metrics.ChatOutcomesTotal.WithLabelValues("not_related").Inc()
		return Answer{Text: NotRelatedMessage}, nil
	}

	chunks := make([]domain.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	text, err := t.generate(ctx, log, t.deps.Prompt.Render(question, chunks))
	if err != nil {
		metrics.ChatOutcomesTotal.WithLabelValues("error").Inc()
		return Answer{Sources: results}, err
	}
	if t.opts.ShowSources {
		text += sourcesTrailer(results, question, t.opts.PreviewChars)
	}
	metrics.ChatOutcomesTotal.WithLabelValues("answered").Inc()
	return Answer{Text: text, Sources: results, Grounded: true}, nil
}

func (t *Tutor) retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	ectx, cancel := t.withTimeout(ctx, t.opts.EmbedTimeout)
	vecs, err := t.deps.Embedder.Embed(ectx, []string{question})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embed question: %w: %w", domain.ErrRetrieval, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question: %w", len(vecs), domain.ErrRetrieval)
	}

	results, err := t.deps.Store.Query(ctx, vecs[0], t.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	if t.opts.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= t.opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	return results, nil
}

// generate calls the model, retrying transient failures up to opts.Retries extra times.
func (t *Tutor) generate(ctx context.Context, log *zap.Logger, p string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= t.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt - 1)
			log.Warn("Retrying generation", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
			if err := t.sleep(ctx, delay); err != nil {
				return "", lastErr
			}
		}
		gctx, cancel := t.withTimeout(ctx, t.opts.GenerateTimeout)
		text, err := t.deps.Generator.Generate(gctx, p)
		timedOut := errors.Is(gctx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return text, nil
		}
		if timedOut && !errors.Is(err, domain.ErrNetwork) {
			err = fmt.Errorf("%w: %w", domain.ErrNetwork, err)
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	log.Error("Generation failed", zap.Error(lastErr))
	return "", lastErr
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrRateLimited)
}

// retryDelay returns capped exponential backoff: 200ms, 400ms, 800ms, ... up to 5s.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d <= 0 || d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sourcesTrailer(results []domain.SearchResult, question string, previewChars int) string {
	var b strings.Builder
	b.WriteString("\n\nSources:")
	for _, r := range results {
		fmt.Fprintf(&b, "\n- %s (chunk %d, score %.2f)", filepath.Base(r.Chunk.SourcePath), r.Chunk.Index, r.Score)
		if snippet := preview.Snippet(r.Chunk.Text, question, previewChars); snippet != "" {
			fmt.Fprintf(&b, ": %q", snippet)
		}
	}
	return b.String()
}

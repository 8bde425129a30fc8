package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
	"ermtutor/internal/metrics"
)

// InstrumentedEmbedder wraps an Embedder with request metrics and logging.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	logger   *zap.Logger
}

var (
	_ domain.Embedder      = (*InstrumentedEmbedder)(nil)
	_ domain.HealthChecker = (*InstrumentedEmbedder)(nil)
)

// NewInstrumentedEmbedder wraps an embedder with observability.
func NewInstrumentedEmbedder(inner domain.Embedder, provider string, logger *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, provider: provider, logger: logger}
}

func (p *InstrumentedEmbedder) Name() string   { return p.inner.Name() }
func (p *InstrumentedEmbedder) Dimension() int { return p.inner.Dimension() }

// Embed delegates to the inner embedder and records the outcome.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := p.inner.Name()
	start := time.Now()

	vecs, err := p.inner.Embed(ctx, texts)

	duration := time.Since(start)
	metrics.EmbeddingRequestDuration.WithLabelValues(p.provider, model).Observe(duration.Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, model, "error").Inc()
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", model),
			zap.Int("batch_size", len(texts)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("embed: %w", err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, model, "success").Inc()
	metrics.EmbeddingTextsTotal.WithLabelValues(p.provider, model).Add(float64(len(texts)))

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", model),
		zap.Int("batch_size", len(texts)),
		zap.Duration("duration", duration),
	)
	return vecs, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

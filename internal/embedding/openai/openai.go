package openai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ermtutor/internal/domain"
	"ermtutor/internal/llm"
)

// Embedder calls an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

var (
	_ domain.Embedder      = (*Embedder)(nil)
	_ domain.HealthChecker = (*Embedder)(nil)
)

// Config configures the embeddings client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbedder creates an embeddings client. Dimensions is the vector length the model must return.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedder api key is empty: %w", domain.ErrConfiguration)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedder dimensions must be > 0: %w", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	return &Embedder{
		client:    llm.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout),
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimensions,
	}, nil
}

// Name identifies the model; persisted indexes built by another model are rejected.
func (e *Embedder) Name() string { return "openai:" + string(e.model) }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns one L2-normalised vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if supportsDimensions(e.model) {
		req.Dimensions = e.dimension
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, llm.ClassifyError(err, domain.ErrEmbedding)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %w: got %d embeddings for %d texts",
			domain.ErrEmbedding, domain.ErrProvider, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("%w: %w: bad embedding index %d", domain.ErrEmbedding, domain.ErrProvider, d.Index)
		}
		if len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
				domain.ErrDimensionMismatch, len(d.Embedding), e.dimension)
		}
		out[d.Index] = normalize(d.Embedding)
	}
	return out, nil
}

// supportsDimensions reports whether the model accepts a requested output size.
// Older models such as text-embedding-ada-002 reject the parameter.
func supportsDimensions(model openai.EmbeddingModel) bool {
	return strings.HasPrefix(string(model), "text-embedding-3")
}

// HealthCheck verifies the credential and endpoint via ListModels.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", llm.ClassifyError(err, domain.ErrEmbedding))
	}
	return nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

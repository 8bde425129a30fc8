package generation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ermtutor/internal/domain"
	"ermtutor/internal/llm"
	"ermtutor/internal/metrics"
)

// OpenAI answers prompts with a hosted chat-completion model. It never retries.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

var _ domain.Generator = (*OpenAI)(nil)

// Config configures the chat model.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewOpenAI creates a generator. The API key must already be resolved.
func NewOpenAI(cfg Config, logger *zap.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generator api key is empty: %w", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	return &OpenAI{
		client:      llm.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Generate sends prompt as a single user message and returns the first choice.
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := g.temperature
	if temperature == 0 {
		// go-openai omits a zero temperature, which makes the API apply its own default.
		temperature = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	metrics.GenerationRequestDuration.WithLabelValues(g.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return "", llm.ClassifyError(err, domain.ErrGeneration)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return "", fmt.Errorf("%w: %w: empty completion", domain.ErrGeneration, domain.ErrProvider)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	g.logger.Debug("Chat completion finished",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Package llm holds the go-openai plumbing shared by the embedding and chat clients.
package llm

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// NewClient builds an OpenAI-compatible client. An empty baseURL keeps the public API.
func NewClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(cfg)
}

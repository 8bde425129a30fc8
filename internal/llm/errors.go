package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"

	"ermtutor/internal/domain"
)

// ClassifyError maps a go-openai error onto the domain failure classes and wraps it with kind
// (domain.ErrEmbedding or domain.ErrGeneration).
func ClassifyError(err error, kind error) error {
	if err == nil {
		return nil
	}
	class, detail := classify(err)
	return fmt.Errorf("%w: %w: %s", kind, class, detail)
}

// Class returns only the failure class of err.
func Class(err error) error {
	class, _ := classify(err)
	return class
}

func classify(err error) (error, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusClass(apiErr.HTTPStatusCode, apiErr.Code, apiErr.Type),
			fmt.Sprintf("API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := bodyCode(reqErr.Body)
		return statusClass(reqErr.HTTPStatusCode, code, ""),
			fmt.Sprintf("request error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrNetwork, "timed out"
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return domain.ErrNetwork, err.Error()
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrNetwork, "canceled"
	}
	return domain.ErrProvider, err.Error()
}

func statusClass(status int, code any, typ string) error {
	if isQuota(code) || typ == "insufficient_quota" {
		return domain.ErrQuotaExceeded
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrAuthentication
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.ErrNetwork
	default:
		return domain.ErrProvider
	}
}

func isQuota(code any) bool {
	s, ok := code.(string)
	return ok && s == "insufficient_quota"
}

// bodyCode extracts error.code from a raw JSON error body.
func bodyCode(body []byte) any {
	var parsed struct {
		Error struct {
			Code any `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Error.Code
	}
	return nil
}

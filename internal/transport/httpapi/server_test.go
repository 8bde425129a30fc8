package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
	"ermtutor/internal/metrics"
	"ermtutor/internal/service"
)

func TestMain(m *testing.M) {
	metrics.Register()
	m.Run()
}

type mockTutor struct {
	answer   service.Answer
	err      error
	report   service.HealthReport
	question string
	// block waits for the request context to end before answering.
	block bool
}

func (m *mockTutor) Ask(ctx context.Context, q string) (service.Answer, error) {
	m.question = q
	if m.block {
		<-ctx.Done()
		return service.Answer{}, fmt.Errorf("query index: %w: %w", domain.ErrRetrieval, ctx.Err())
	}
	return m.answer, m.err
}

func (m *mockTutor) Health(context.Context, map[string]domain.HealthChecker) service.HealthReport {
	return m.report
}

func newTestServer(tutor *mockTutor) http.Handler {
	return NewServer(tutor, nil, 80, zap.NewNop()).Router()
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat_Success(t *testing.T) {
	tutor := &mockTutor{answer: service.Answer{
		Text:     "A sample is a subset of the population.",
		Grounded: true,
		Sources: []domain.SearchResult{{
			Chunk: domain.Chunk{SourcePath: "materials/lecture2.pdf", Index: 4, Text: "Intro text. A sample is drawn from the population."},
			Score: 0.83,
		}},
	}}
	rec := postChat(t, newTestServer(tutor), `{"question":"What is a sample?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	var resp chatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tutor.question != "What is a sample?" {
		t.Errorf("question = %q", tutor.question)
	}
	if !resp.Grounded || resp.Answer != tutor.answer.Text {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	src := resp.Sources[0]
	if src.Source != "lecture2.pdf" || src.Index != 4 || src.Preview != "A sample is drawn from the population." {
		t.Errorf("source = %+v", src)
	}
}

func TestChat_NotRelatedHasEmptySources(t *testing.T) {
	tutor := &mockTutor{answer: service.Answer{Text: service.NotRelatedMessage}}
	rec := postChat(t, newTestServer(tutor), `{"question":"Who won the match?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"sources":[]`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestChat_BadBody(t *testing.T) {
	rec := postChat(t, newTestServer(&mockTutor{}), `{"question":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty question", domain.ErrInvalidQuestion, http.StatusBadRequest, "invalid_question"},
		{"not ready", domain.ErrNotReady, http.StatusServiceUnavailable, "not_ready"},
		{"auth", fmt.Errorf("%w: %w", domain.ErrGeneration, domain.ErrAuthentication), http.StatusBadGateway, "generation_auth"},
		{"quota", fmt.Errorf("%w: %w", domain.ErrGeneration, domain.ErrQuotaExceeded), http.StatusTooManyRequests, "quota_exceeded"},
		{"rate limit", fmt.Errorf("%w: %w", domain.ErrGeneration, domain.ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{"network", fmt.Errorf("%w: %w", domain.ErrRetrieval, domain.ErrNetwork), http.StatusGatewayTimeout, "upstream_timeout"},
		{"provider", fmt.Errorf("%w: %w", domain.ErrGeneration, domain.ErrProvider), http.StatusBadGateway, "provider_error"},
		{"other", fmt.Errorf("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(t, newTestServer(&mockTutor{err: tt.err}), `{"question":"q"}`)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
			if strings.Contains(resp.Message, "disk on fire") {
				t.Errorf("internal error leaked: %q", resp.Message)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		report service.HealthReport
		status int
	}{
		{"ok", service.HealthReport{Status: "ok", Checks: map[string]string{"index": "ready"}}, http.StatusOK},
		{"degraded", service.HealthReport{Status: "degraded", Checks: map[string]string{"index": "empty"}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestServer(&mockTutor{report: tt.report}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestIndexAndMetrics(t *testing.T) {
	h := newTestServer(&mockTutor{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "How can I assist you today?") {
		t.Errorf("index status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ermtutor_http_requests_total") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestRecoverer(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "internal_error") {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestChat_AnswerTimeoutReturnsGatewayTimeout(t *testing.T) {
	h := NewServer(&mockTutor{block: true}, nil, 80, zap.NewNop()).
		WithAnswerTimeout(20 * time.Millisecond).
		Router()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postChat(t, h, `{"question":"What is a confidence interval?"}`) }()

	select {
	case rec := <-done:
		if rec.Code != http.StatusGatewayTimeout {
			t.Fatalf("status = %d, want 504", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "upstream_timeout") {
			t.Errorf("body = %s", rec.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("chat request was not bounded by the answer timeout")
	}
}

func TestAnswerTimeout(t *testing.T) {
	tests := []struct {
		write, want time.Duration
	}{
		{0, 0},
		{120 * time.Second, 115 * time.Second},
		{5 * time.Second, 4500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := AnswerTimeout(tt.write); got != tt.want {
			t.Errorf("AnswerTimeout(%v) = %v, want %v", tt.write, got, tt.want)
		}
	}
}

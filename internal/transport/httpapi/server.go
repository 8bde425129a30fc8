// Package httpapi serves the tutor over HTTP with chi.
package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ermtutor/internal/domain"
	"ermtutor/internal/metrics"
	"ermtutor/internal/preview"
	"ermtutor/internal/service"
)

//go:embed static/index.html
var staticFS embed.FS

const maxBodyBytes = 64 << 10

// Tutor is the subset of the service the HTTP layer needs.
type Tutor interface {
	Ask(ctx context.Context, question string) (service.Answer, error)
	Health(ctx context.Context, extra map[string]domain.HealthChecker) service.HealthReport
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the chat endpoint, health and metrics.
type Server struct {
	tutor         Tutor
	checks        map[string]domain.HealthChecker
	previewChars  int
	answerTimeout time.Duration
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. checks are extra backends reported by /health.
func NewServer(tutor Tutor, checks map[string]domain.HealthChecker, previewChars int, logger *zap.Logger) *Server {
	s := &Server{tutor: tutor, checks: checks, previewChars: previewChars, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuestion, http.StatusBadRequest, "invalid_question"),
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, "not_ready"),
		sentinelHandler(domain.ErrAuthentication, http.StatusBadGateway, "generation_auth"),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrNetwork, http.StatusGatewayTimeout, "upstream_timeout"),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, "upstream_timeout"),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, "provider_error"),
	}
	return s
}

// WithAnswerTimeout bounds each chat request. Keep it below the server write timeout
// so a slow model yields a 504 instead of a cut connection. Zero disables the bound.
func (s *Server) WithAnswerTimeout(d time.Duration) *Server {
	s.answerTimeout = d
	return s
}

// AnswerTimeout derives a chat deadline that leaves headroom under writeTimeout.
func AnswerTimeout(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	if headroom := 5 * time.Second; writeTimeout > 2*headroom {
		return writeTimeout - headroom
	}
	return writeTimeout * 9 / 10
}

// Router builds the chi router with the standard middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/", s.Index)
	r.Post("/api/chat", s.Chat)
	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatSource struct {
	Source  string  `json:"source"`
	Index   int     `json:"index"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

type chatResponse struct {
	Answer   string       `json:"answer"`
	Grounded bool         `json:"grounded"`
	Sources  []chatSource `json:"sources"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Index handles GET /.
func (s *Server) Index(w http.ResponseWriter, _ *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	ctx := r.Context()
	if s.answerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.answerTimeout)
		defer cancel()
	}
	ans, err := s.tutor.Ask(ctx, req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sources := make([]chatSource, len(ans.Sources))
	for i, res := range ans.Sources {
		sources[i] = chatSource{
			Source:  filepath.Base(res.Chunk.SourcePath),
			Index:   res.Chunk.Index,
			Score:   res.Score,
			Preview: preview.Snippet(res.Chunk.Text, req.Question, s.previewChars),
		}
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: ans.Text, Grounded: ans.Grounded, Sources: sources})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.tutor.Health(r.Context(), s.checks)
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, service.UserMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", service.UserMessage(err))
}

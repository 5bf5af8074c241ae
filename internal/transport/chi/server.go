// Package chi exposes the retrieval and answer pipeline over HTTP:
// POST /api/v1/retrieve, POST /api/v1/answer, POST /api/v1/answer/stream
// (SSE), plus health and Prometheus metrics.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/logger"
	"github.com/lumenkb/ragd/internal/metrics"
	answeruc "github.com/lumenkb/ragd/internal/usecase/answer"
	healthuc "github.com/lumenkb/ragd/internal/usecase/health"
	retrievaluc "github.com/lumenkb/ragd/internal/usecase/retrieval"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest           = "bad_request"
	codeInvalidFilter        = "invalid_filter"
	codeUnsupportedMode      = "unsupported_mode"
	codeUnsupportedPlugin    = "unsupported_plugin"
	codeDuplicatePlugin      = "duplicate_plugin"
	codeNoRetrievableContent = "no_retrievable_content"
	codePostprocessFailed    = "postprocess_failed"
	codeProviderError        = "provider_error"
	codeKeywordNotSupported  = "keyword_search_not_supported"
	codeNotFound             = "not_found"
	codeAlreadyExists        = "already_exists"
	codeInternalError        = "internal_error"
	codeUnauthorized         = "unauthorized"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the ragd HTTP API.
type Server struct {
	retrieval     *retrievaluc.Service
	answer        *answeruc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	apiKeys       []string
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	answer *answeruc.Service,
	health *healthuc.Service,
	apiKeys []string,
	log *zap.Logger,
) *Server {
	s := &Server{
		retrieval: retrieval,
		answer:    answer,
		health:    health,
		apiKeys:   apiKeys,
		logger:    log,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, codeInvalidFilter),
		sentinelHandler(filter.ErrDuplicateKey, http.StatusBadRequest, codeInvalidFilter),
		sentinelHandler(domain.ErrUnsupportedMode, http.StatusBadRequest, codeUnsupportedMode),
		sentinelHandler(domain.ErrUnsupportedPlugin, http.StatusBadRequest, codeUnsupportedPlugin),
		sentinelHandler(domain.ErrDuplicatePlugin, http.StatusBadRequest, codeDuplicatePlugin),
		sentinelHandler(domain.ErrNoRetrievableContent, http.StatusNotFound, codeNoRetrievableContent),
		sentinelHandler(domain.ErrKeywordSearchNotSupported, http.StatusNotImplemented, codeKeywordNotSupported),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrRerankProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrPostprocessFailed, http.StatusInternalServerError, codePostprocessFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists),
	}
	return s
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(s.requestLogger())
	r.Use(BearerAuthMiddleware(s.apiKeys))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/answer", s.handleAnswer)
		r.Post("/answer/stream", s.handleAnswerStream)
	})

	return r
}

// requestLogger attaches a request-scoped logger with a fresh request ID.
func (s *Server) requestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, id := logger.WithRequestID(r.Context(), s.logger)
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// handleRetrieve handles POST /api/v1/retrieve.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var dto retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := dto.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.retrieval.Retrieve(ctx, req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, retrieveResponseFrom(res))
}

// handleAnswer handles POST /api/v1/answer.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var dto retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := dto.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans, err := s.answer.Answer(ctx, req, dto.answerOptions())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, ans)
}

// handleAnswerStream handles POST /api/v1/answer/stream as SSE. Each event
// is written as "event: <kind>" plus a JSON data line. Errors after the
// stream has started arrive as a terminal error event, not an HTTP status.
func (s *Server) handleAnswerStream(w http.ResponseWriter, r *http.Request) {
	var dto retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := dto.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, _ := domain.NewContextWithUsage(r.Context())
	err = s.answer.AnswerStream(ctx, req, dto.answerOptions(), func(e answeruc.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// The error event was already emitted by the usecase; here we can
		// only log, the response status is long gone.
		logger.FromContext(ctx).Warn("answer stream failed", zap.Error(err))
	}
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage.Total() > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
		w.Header().Set("X-Completion-Tokens", strconv.Itoa(usage.CompletionTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidFilter,
		filter.ErrDuplicateKey,
		domain.ErrUnsupportedMode,
		domain.ErrUnsupportedPlugin,
		domain.ErrDuplicatePlugin,
		domain.ErrNoRetrievableContent,
		domain.ErrKeywordSearchNotSupported,
		domain.ErrEmbeddingProviderError,
		domain.ErrLLMProviderError,
		domain.ErrRerankProviderError,
		domain.ErrPostprocessFailed,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// Package rest provides the HTTP API layer for the sqew queue service: a chi
// router, request logging and metrics middleware, and handler functions that
// translate statelessly between HTTP requests and engine calls.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/SecretDeveloper/sqew/internal/observability"
	"github.com/SecretDeveloper/sqew/internal/queue"
	"github.com/SecretDeveloper/sqew/internal/store"
)

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	db      *store.DB
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewServer creates a Server over the given database. logger and metrics may
// be nil; a nil logger falls back to slog.Default and nil metrics disables
// the engine counters.
func NewServer(db *store.DB, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{db: db, logger: logger, metrics: metrics}
}

// writeJSON writes v as a JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an HTTP error response with a JSON body containing an
// "error" field.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeEngineError maps a classified engine error onto its HTTP status.
// Transient store errors have already been retried at the engine boundary;
// reaching here means the backoff budget is exhausted, so they surface as
// 503 rather than 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, queue.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, queue.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, queue.ErrAlreadyExists), errors.Is(err, queue.ErrDuplicate):
		code = http.StatusConflict
	case store.IsTransient(err):
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("engine error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeError(w, code, err.Error())
}

// Package api exposes the comparison engine over HTTP for hosts that embed
// it as a service rather than a library.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/engine/matchmaker"
	"github.com/okian/versus/internal/engine/outcome"
	"github.com/okian/versus/internal/engine/session"
	"github.com/okian/versus/internal/ranking"
)

// Engine is the session surface the handlers consume. Using an interface
// bundle keeps the handler layer loosely coupled to the session package.
type Engine interface {
	NextGroup(ctx context.Context) (model.ComparisonGroup, error)
	Resolve(ctx context.Context, winners []model.EntityID) (session.Result, error)
	Continue(ctx context.Context) (model.ComparisonGroup, error)
	Undo(ctx context.Context) (int, error)
	Snapshot(ctx context.Context, limit int) []ranking.Entry
	EnqueueRefinement(primary, opponent model.EntityID, reason string) bool
	RequestComparison(id model.EntityID)
	RequestReorder(ctx context.Context, id model.EntityID, newRank int) int
	Stats(id model.EntityID) session.Stats
	TotalComparisons() int
	State() session.State
	Reset(ctx context.Context) error
}

// Server wires HTTP routes for the engine API.
type Server struct {
	engine Engine
}

// NewServer creates an API server over the given engine.
func NewServer(engine Engine) *Server {
	return &Server{engine: engine}
}

// Router builds the route tree. Specific paths, each wrapped with the
// metrics middleware under a stable endpoint label.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	r.Get("/next", MetricsMiddleware(s.handleNext, "next"))
	r.Post("/outcome", MetricsMiddleware(s.handleOutcome, "outcome"))
	r.Get("/snapshot", MetricsMiddleware(s.handleSnapshot, "snapshot"))
	r.Post("/refine", MetricsMiddleware(s.handleRefine, "refine"))
	r.Post("/reorder", MetricsMiddleware(s.handleReorder, "reorder"))
	r.Post("/request", MetricsMiddleware(s.handleRequest, "request"))
	r.Post("/undo", MetricsMiddleware(s.handleUndo, "undo"))
	r.Post("/continue", MetricsMiddleware(s.handleContinue, "continue"))
	r.Post("/reset", MetricsMiddleware(s.handleReset, "reset"))
	r.Get("/stats", MetricsMiddleware(s.handleStats, "stats"))

	return r
}

type groupResponse struct {
	Members  []model.EntityID `json:"members"`
	Strategy string           `json:"strategy"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeEngineError maps engine sentinel errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, outcome.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, "invalid_outcome", err)
	case errors.Is(err, matchmaker.ErrInsufficientPopulation):
		writeError(w, http.StatusConflict, "insufficient_population", err)
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err)
	case errors.Is(err, session.ErrMilestonePending):
		writeError(w, http.StatusConflict, "milestone_pending", err)
	case errors.Is(err, session.ErrNoActiveGroup):
		writeError(w, http.StatusConflict, "no_active_group", err)
	case errors.Is(err, session.ErrNoMilestone):
		writeError(w, http.StatusConflict, "no_milestone", err)
	case errors.Is(err, outcome.ErrNothingToUndo):
		writeError(w, http.StatusConflict, "nothing_to_undo", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

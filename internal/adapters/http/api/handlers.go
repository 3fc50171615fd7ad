package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/versus/internal/domain/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNext handles GET /next.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	group, err := s.engine.NextGroup(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Members: group.Members, Strategy: group.Strategy})
}

type outcomeRequest struct {
	Winners []model.EntityID `json:"winners"`
}

// handleOutcome handles POST /outcome for the outstanding group.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	res, err := s.engine.Resolve(r.Context(), req.Winners)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSnapshot handles GET /snapshot?limit=N.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot(r.Context(), limit))
}

type refineRequest struct {
	Primary  model.EntityID `json:"primary"`
	Opponent model.EntityID `json:"opponent"`
	Reason   string         `json:"reason"`
}

// handleRefine handles POST /refine: queue an explicit comparison.
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(string(req.Primary)) == "" || strings.TrimSpace(string(req.Opponent)) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	queued := s.engine.EnqueueRefinement(req.Primary, req.Opponent, req.Reason)
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

type reorderRequest struct {
	ID   model.EntityID `json:"id"`
	Rank int            `json:"rank"`
}

// handleReorder handles POST /reorder: validate a manual rank edit.
func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.ID == "" || req.Rank < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	queued := s.engine.RequestReorder(r.Context(), req.ID, req.Rank)
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

type requestComparisonRequest struct {
	ID model.EntityID `json:"id"`
}

// handleRequest handles POST /request: flag an entity for the next group.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req requestComparisonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	s.engine.RequestComparison(req.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "flagged"})
}

// handleUndo handles POST /undo.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	reverted, err := s.engine.Undo(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reverted": reverted})
}

// handleContinue handles POST /continue: dismiss a milestone and select.
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	group, err := s.engine.Continue(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Members: group.Members, Strategy: group.Strategy})
}

// handleReset handles POST /reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type statsResponse struct {
	State            string `json:"state"`
	TotalComparisons int    `json:"total_comparisons"`
	Wins             *int   `json:"wins,omitempty"`
	Losses           *int   `json:"losses,omitempty"`
}

// handleStats handles GET /stats and GET /stats?id=X.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		State:            string(s.engine.State()),
		TotalComparisons: s.engine.TotalComparisons(),
	}
	if id := r.URL.Query().Get("id"); id != "" {
		st := s.engine.Stats(model.EntityID(id))
		resp.Wins = &st.Wins
		resp.Losses = &st.Losses
	}
	writeJSON(w, http.StatusOK, resp)
}

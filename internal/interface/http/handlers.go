package http

import (
	"net/http"

	"github.com/cohort-hub/student-dashboard/internal/application/query"
	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
	"github.com/cohort-hub/student-dashboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// handleLeaderboard serves GET /api/v1/leaderboard.
//
// Query parameters:
//   - batch:  repeatable, "<cohort_type>:<cohort_number>". Falls back to
//     the configured default batches when absent.
//   - search: optional case-insensitive substring filter on full name.
//     Filtering never renumbers ranks; entries keep their overall rank.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	batches := s.deps.DefaultBatches
	if raw := params["batch"]; len(raw) > 0 {
		batches = make([]leaderboard.BatchKey, 0, len(raw))
		for _, v := range raw {
			key, err := leaderboard.ParseBatchKey(v)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "invalid batch parameter: "+v)
				return
			}
			batches = append(batches, key)
		}
	}

	result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), query.GetLeaderboardQuery{
		Batches: batches,
		Search:  params.Get("search"),
	})
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordAggregation(err != nil)
	}
	if err != nil {
		if query.IsFetchError(err) {
			// The UI shows this message inline and keeps its last-good
			// rendering; no retry happens here.
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// sessionResponse is the gate's state projection.
type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user,omitempty"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
}

func (s *Server) sessionState() sessionResponse {
	user := s.deps.Gate.CurrentUser()
	if user == nil {
		return sessionResponse{Authenticated: false}
	}
	return sessionResponse{
		Authenticated: true,
		User: &userResponse{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}
}

// handleSession serves GET /api/v1/session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.sessionState())
}

// handleRefreshAuth serves POST /api/v1/auth/refresh. Re-validates the role
// claim; failures resolve to the unauthenticated state, never an error
// status.
func (s *Server) handleRefreshAuth(w http.ResponseWriter, r *http.Request) {
	s.deps.Gate.RefreshAuth(r.Context())
	state := s.sessionState()
	if state.Authenticated && s.deps.Metrics != nil {
		s.deps.Metrics.RecordSessionRefresh()
	}
	s.respondJSON(w, http.StatusOK, state)
}

// handleSignOut serves POST /api/v1/auth/signout.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Gate.SignOut(r.Context()); err != nil {
		// Local state is already cleared; report the provider failure.
		s.log.Warn("sign-out completed with provider error", logger.Err(err))
	}
	s.respondJSON(w, http.StatusOK, s.sessionState())
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// healthResponse reports overall and per-dependency health.
type healthResponse struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks,omitempty"`
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.deps.HealthCheck != nil {
		resp.Checks = s.deps.HealthCheck(r.Context())
		for _, ok := range resp.Checks {
			if !ok {
				resp.Status = "degraded"
				s.respondJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
	}

	s.respondJSON(w, http.StatusOK, resp)
}

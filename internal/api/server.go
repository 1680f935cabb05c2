// Package api is the HTTP surface over the core's review/scheduling/
// placement/verify-update operations, grounded on the teacher's
// internal/api/server.go: same chi router + middleware stack, same
// writeJSON/writeError helpers, metrics mounted behind a toggle rather than
// always-on.
package api

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iqrahapp/iqrah-core/internal/bandit"
	"github.com/iqrahapp/iqrah-core/internal/candidates"
	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/introduction"
	"github.com/iqrahapp/iqrah-core/internal/placement"
	"github.com/iqrahapp/iqrah-core/internal/ports"
	"github.com/iqrahapp/iqrah-core/internal/review"
	"github.com/iqrahapp/iqrah-core/internal/scheduler"
	"github.com/iqrahapp/iqrah-core/internal/verifyupdate"
)

// Server is the iqrah-core HTTP API server. It holds no state of its own —
// every field is a collaborator already wired by cmd/iqrah's composition root.
type Server struct {
	Candidates *candidates.Builder
	Scheduler  *scheduler.Scheduler
	Review     *review.Orchestrator
	Placement  *placement.Service
	Bandit     *bandit.Selector
	Content    verifyupdate.SnapshotSource
	UserState  ports.UserStateRepository
	Profiles   []domain.UserProfile
	Now        ports.Clock

	metricsEnabled bool
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users/{userID}/reviews", s.handlePostReview)
		r.Get("/users/{userID}/session", s.handleGetSession)
		r.Post("/users/{userID}/placement", s.handlePostPlacement)
	})
	r.Post("/content/verify-update", s.handleVerifyUpdate)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ─── handlers ───────────────────────────────────────────────────────────────

type reviewRequest struct {
	NodeID domain.NodeID `json:"node_id"`
	Grade  string        `json:"grade"`
}

// handlePostReview backs C10: POST /v1/users/{userID}/reviews grades one
// node and returns the resulting state (§4.8).
func (s *Server) handlePostReview(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	grade, err := domain.ParseGrade(req.Grade)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.Review.ProcessReview(r.Context(), userID, req.NodeID, grade, domain.DefaultWeights())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleGetSession backs C6+C7+C8: GET /v1/users/{userID}/session builds
// candidates, computes diagnostics, and returns a ranked session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	goalID := r.URL.Query().Get("goal_id")
	if goalID == "" {
		writeError(w, http.StatusBadRequest, "goal_id is required")
		return
	}

	now := s.now()
	cands, err := s.Candidates.Build(r.Context(), userID, goalID, now.Unix(), 3)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	profile := domain.DefaultUserProfile()
	if len(s.Profiles) > 0 && s.Bandit != nil {
		selected, err := s.Bandit.SelectProfile(r.Context(), userID, goalID, s.Profiles, rngAdapter{})
		if err == nil {
			profile = selected
		}
	}

	diag := scheduler.ComputeDiagnostics(cands, now.Unix(), profile.Introduction.MaxWorkingSet)

	expandModeKey := "expand_mode:" + goalID
	priorExpandMode := false
	if raw, ok, err := s.UserState.GetStat(r.Context(), userID, expandModeKey); err == nil && ok {
		priorExpandMode = raw == "true"
	}
	clusterEnergy := introduction.ClusterEnergy(cands)
	decision := introduction.Decide(profile.Introduction, diag, clusterEnergy, priorExpandMode)
	_ = s.UserState.SetStat(r.Context(), userID, expandModeKey, strconv.FormatBool(decision.ExpandMode))

	result, err := s.Scheduler.Generate(r.Context(), userID, cands, profile, now, 20, decision.FinalAllowance, diag)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type placementRequest struct {
	ReadingFluency float64 `json:"reading_fluency"`
	SurahReports   []struct {
		ChapterID        int64   `json:"chapter_id"`
		MemorizationPct  float64 `json:"memorization_pct"`
		UnderstandingPct float64 `json:"understanding_pct"`
	} `json:"surah_reports"`
}

// handlePostPlacement backs initial placement: POST /v1/users/{userID}/placement applies
// an intake questionnaire (§4.6).
func (s *Server) handlePostPlacement(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req placementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answers := placement.IntakeAnswers{ReadingFluency: req.ReadingFluency}
	for _, sr := range req.SurahReports {
		answers.SurahReports = append(answers.SurahReports, placement.SurahReport{
			ChapterID:        sr.ChapterID,
			MemorizationPct:  sr.MemorizationPct,
			UnderstandingPct: sr.UnderstandingPct,
		})
	}

	seed := rand.Uint64()
	summary, err := s.Placement.ApplyIntake(r.Context(), userID, answers, seed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type verifyUpdateRequest struct {
	UserID string `json:"user_id"`
}

// handleVerifyUpdate backs §6.5: POST /content/verify-update reports which
// of a user's known nodes would go missing under the currently loaded
// content snapshot, treated as both the old and new snapshot for a live
// server (the real before/after comparison runs offline, against two
// snapshot files, via cmd/iqrah's verify-update subcommand).
func (s *Server) handleVerifyUpdate(w http.ResponseWriter, r *http.Request) {
	var req verifyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := verifyupdate.Verify(r.Context(), s.Content, s.Content, s.UserState, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ─── helpers ────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": msg}})
}

// writeDomainError maps §7's error-kind taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNodeNotFound), errors.Is(err, domain.ErrGoalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnknownGrade), errors.Is(err, domain.ErrInvalidProfile), errors.Is(err, domain.ErrInvalidSessionMix), errors.Is(err, domain.ErrNegativeElapsed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStoreFailure):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// rngAdapter satisfies ports.RNG with math/rand/v2's package-level source,
// matching the teacher's preference for the stdlib generator over a
// hand-rolled one wherever cryptographic strength isn't required.
type rngAdapter struct{}

func (rngAdapter) Float64() float64 { return rand.Float64() }

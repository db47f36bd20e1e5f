// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/opennotes/notescore/internal/logging"
	"github.com/opennotes/notescore/internal/models"
	"github.com/opennotes/notescore/internal/reputation"
	"github.com/opennotes/notescore/internal/scheduler"
	"github.com/opennotes/notescore/internal/store"
)

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleScoringRun triggers an asynchronous scoring run: 202 when queued,
// 409 when one is already running or pending.
func (s *Server) handleScoringRun(w http.ResponseWriter, _ *http.Request) {
	if err := s.runner.Trigger(); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "scoring run already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, "trigger failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleScoringStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Stats())
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, ok := s.loadNote(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// noteStats is the scoring-facing subset of a note.
type noteStats struct {
	NoteID           string            `json:"note_id"`
	Status           models.NoteStatus `json:"status"`
	HelpfulCount     int               `json:"helpful_count"`
	NotHelpfulCount  int               `json:"not_helpful_count"`
	TotalRatings     int               `json:"total_ratings"`
	HelpfulnessRatio float64           `json:"helpfulness_ratio"`
	VisibilityScore  float64           `json:"visibility_score"`
	IsVisible        bool              `json:"is_visible"`
	LastStatusAt     time.Time         `json:"last_status_at"`
}

func (s *Server) handleNoteStats(w http.ResponseWriter, r *http.Request) {
	note, ok := s.loadNote(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, noteStats{
		NoteID:           note.ID,
		Status:           note.Status,
		HelpfulCount:     note.HelpfulCount,
		NotHelpfulCount:  note.NotHelpfulCount,
		TotalRatings:     note.TotalRatings,
		HelpfulnessRatio: note.HelpfulnessRatio,
		VisibilityScore:  note.VisibilityScore,
		IsVisible:        note.IsVisible,
		LastStatusAt:     note.LastStatusAt,
	})
}

// visibilityResponse pairs the resolver verdict with the request rollup.
type visibilityResponse struct {
	Visibility  *reputation.Visibility     `json:"visibility"`
	Aggregation *models.RequestAggregation `json:"aggregation,omitempty"`
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	now := time.Now().UTC()

	v, err := s.reputation.ResolveVisibility(r.Context(), contentID, now)
	if err != nil {
		logging.Err(err).Str("content_id", contentID).Msg("Visibility resolution failed")
		writeError(w, http.StatusInternalServerError, "visibility resolution failed")
		return
	}

	if v.Visible {
		// Latch the rollup so notification dispatch sees it even if the
		// resolver's answer changes later.
		if err := s.store.MarkThresholdMet(r.Context(), contentID, now); err != nil {
			logging.Err(err).Str("content_id", contentID).Msg("Threshold latch failed")
		}
	}

	agg, err := s.store.GetRequestAggregation(r.Context(), contentID)
	if err != nil {
		logging.Err(err).Str("content_id", contentID).Msg("Aggregation read failed")
		writeError(w, http.StatusInternalServerError, "aggregation read failed")
		return
	}

	writeJSON(w, http.StatusOK, visibilityResponse{Visibility: v, Aggregation: agg})
}

func (s *Server) handleUserMetrics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	m, err := s.reputation.Metrics(r.Context(), userID, time.Now().UTC())
	if err != nil {
		logging.Err(err).Str("user_id", userID).Msg("Metrics computation failed")
		writeError(w, http.StatusInternalServerError, "metrics computation failed")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	contentID := r.URL.Query().Get("content_id")
	if contentID == "" {
		writeError(w, http.StatusBadRequest, "content_id query parameter is required")
		return
	}

	res, err := s.reputation.CheckEligibility(r.Context(), userID, contentID, time.Now().UTC())
	if err != nil {
		logging.Err(err).Str("user_id", userID).Msg("Eligibility check failed")
		writeError(w, http.StatusInternalServerError, "eligibility check failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) loadNote(w http.ResponseWriter, r *http.Request) (*models.Note, bool) {
	noteID := chi.URLParam(r, "noteID")
	note, err := s.store.GetNote(r.Context(), noteID)
	if errors.Is(err, store.ErrNoteNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return nil, false
	}
	if err != nil {
		logging.Err(err).Str("note_id", noteID).Msg("Note read failed")
		writeError(w, http.StatusInternalServerError, "note read failed")
		return nil, false
	}
	return note, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Err(err).Msg("Response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

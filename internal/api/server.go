// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package api serves the operational HTTP surface: health, Prometheus
// metrics, scoring triggers, and read access to note, requestor and
// visibility state.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/logging"
	"github.com/opennotes/notescore/internal/models"
	"github.com/opennotes/notescore/internal/reputation"
	"github.com/opennotes/notescore/internal/scheduler"
)

// Runner is the scheduler surface the API drives.
type Runner interface {
	Trigger() error
	Stats() scheduler.Stats
}

// Reputation is the requestor-facing surface the API reads.
type Reputation interface {
	Metrics(ctx context.Context, requestorID string, now time.Time) (*models.RequestorMetrics, error)
	CheckEligibility(ctx context.Context, requestorID, contentID string, now time.Time) (*reputation.EligibilityResult, error)
	ResolveVisibility(ctx context.Context, contentID string, now time.Time) (*reputation.Visibility, error)
}

// Store is the data-layer slice the API reads.
type Store interface {
	Ping(ctx context.Context) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	GetRequestAggregation(ctx context.Context, contentID string) (*models.RequestAggregation, error)
	MarkThresholdMet(ctx context.Context, contentID string, at time.Time) error
}

// Server is the operational HTTP server. It satisfies suture.Service.
type Server struct {
	cfg        config.ServerConfig
	store      Store
	runner     Runner
	reputation Reputation
}

// NewServer assembles the server; Serve starts listening.
func NewServer(cfg config.ServerConfig, st Store, runner Runner, rep Reputation) *Server {
	return &Server{cfg: cfg, store: st, runner: runner, reputation: rep}
}

// Routes builds the router. Exposed separately so tests drive handlers
// through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleLive)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scoring/run", s.handleScoringRun)
		r.Get("/scoring/stats", s.handleScoringStats)

		r.Get("/notes/{noteID}", s.handleGetNote)
		r.Get("/notes/{noteID}/stats", s.handleNoteStats)

		r.Get("/requests/{contentID}/visibility", s.handleVisibility)

		r.Get("/users/{userID}/metrics", s.handleUserMetrics)
		r.Get("/users/{userID}/eligibility", s.handleEligibility)
	})

	return r
}

// Serve listens until the context is canceled, then drains in-flight
// requests. It satisfies suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	}
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

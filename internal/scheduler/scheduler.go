// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package scheduler owns the periodic scoring run: triggering, overlap
// protection, store health gating, and the note scoring pipeline itself.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/events"
	"github.com/opennotes/notescore/internal/logging"
	"github.com/opennotes/notescore/internal/metrics"
	"github.com/opennotes/notescore/internal/models"
	"github.com/opennotes/notescore/internal/scoring"
	"github.com/opennotes/notescore/internal/store"
)

// Store is the data-layer surface the scoring pipeline consumes.
// *store.DB satisfies it; tests substitute fakes.
type Store interface {
	Ping(ctx context.Context) error
	ListRatingsInWindow(ctx context.Context, cutoff time.Time) ([]models.Rating, error)
	ListNotes(ctx context.Context, limit, offset int) ([]models.Note, error)
	ListRatingsByNote(ctx context.Context, noteID string) ([]models.Rating, error)
	ApplyScoringUpdates(ctx context.Context, updates []store.NoteScoringUpdate) error
	ActiveRequestsByContent(ctx context.Context, contentID string) ([]models.NoteRequest, error)
	DeactivateRequests(ctx context.Context, contentID string) error
	RefreshRequestAggregations(ctx context.Context) error
}

// ReputationInvalidator drops cached requestor metrics so a fresh CRH
// credit is visible on the next read.
type ReputationInvalidator interface {
	Invalidate(requestorID string)
}

// Stats is a point-in-time snapshot of scheduler state, served by the
// operational API.
type Stats struct {
	IsRunning   bool      `json:"is_running"`
	RunCount    int64     `json:"run_count"`
	LastRunTime time.Time `json:"last_run_time"`
	LastError   string    `json:"last_error,omitempty"`
	LastNotes   int       `json:"last_notes_scored"`
}

// Scheduler drives scoring runs from a fixed interval, an optional cron
// expression, and manual triggers. Exactly one run executes at a time;
// triggers that land mid-run are skipped, not queued.
type Scheduler struct {
	store      Store
	reputation ReputationInvalidator
	publisher  events.Publisher

	cfg        config.SchedulerConfig
	factorizer *scoring.Factorizer
	policy     *scoring.Policy
	window     time.Duration

	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
	cron    *cron.Cron

	runMu   sync.Mutex // held for the duration of a run
	trigger chan chan error

	mu        sync.RWMutex
	running   bool
	runCount  int64
	lastRun   time.Time
	lastErr   error
	lastNotes int
}

// New assembles a scheduler. The reputation invalidator and publisher may
// not be nil; pass no-ops if a deployment does not need them.
func New(st Store, rep ReputationInvalidator, pub events.Publisher, cfg config.Config) *Scheduler {
	s := &Scheduler{
		store:      st,
		reputation: rep,
		publisher:  pub,
		cfg:        cfg.Scheduler,
		factorizer: scoring.NewFactorizer(cfg.Scoring),
		policy:     scoring.NewPolicy(cfg.Scoring),
		window:     cfg.Scoring.MaxDaysForScoring,
		trigger:    make(chan chan error, 1),
	}

	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "store-health",
		MaxRequests: 1,
		Timeout:     cfg.Scheduler.HealthInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	if cfg.Scheduler.WriteRateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Scheduler.WriteRateLimit), cfg.Scheduler.WriteRateLimit)
	}
	return s
}

// Serve runs the trigger loop until the context is canceled. It satisfies
// suture.Service; the supervisor restarts it on failure.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.Cron != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.cfg.Cron, func() {
			// Non-blocking: a cron tick landing mid-run is dropped, the
			// overlap guard would skip it anyway.
			select {
			case s.trigger <- nil:
			default:
			}
		}); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.cfg.Cron, err)
		}
		s.cron.Start()
		defer s.cron.Stop()
	}

	logging.Info().
		Dur("interval", s.cfg.Interval).
		Str("cron", s.cfg.Cron).
		Msg("Scoring scheduler started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Scoring scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.execute(ctx, nil)
		case done := <-s.trigger:
			s.execute(ctx, done)
		}
	}
}

// Trigger requests a scoring run without waiting for it. It returns
// ErrRunInProgress when a run is already executing or a trigger is
// already pending; triggers are skipped, never queued behind a run.
func (s *Scheduler) Trigger() error {
	if s.isRunning() {
		logging.Warn().Msg("Manual trigger skipped: scoring run already in progress")
		return ErrRunInProgress
	}
	select {
	case s.trigger <- nil:
		return nil
	default:
		return ErrRunInProgress
	}
}

// RunNow triggers a scoring run and waits for it to finish. It returns
// ErrRunInProgress without waiting when a run is already executing.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if s.isRunning() {
		logging.Warn().Msg("Manual run skipped: scoring run already in progress")
		return ErrRunInProgress
	}
	done := make(chan error, 1)
	select {
	case s.trigger <- done:
	default:
		return ErrRunInProgress
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ErrRunInProgress is returned by RunNow when a run is already executing.
var ErrRunInProgress = fmt.Errorf("scoring run already in progress")

// Stats returns the current scheduler snapshot.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		IsRunning:   s.running,
		RunCount:    s.runCount,
		LastRunTime: s.lastRun,
		LastNotes:   s.lastNotes,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// execute runs one scoring cycle behind the overlap guard and the store
// health breaker, reporting the outcome on done when non-nil.
func (s *Scheduler) execute(ctx context.Context, done chan error) {
	report := func(err error) {
		if done != nil {
			done <- err
		}
	}

	if !s.runMu.TryLock() {
		metrics.RunsTotal.WithLabelValues("skipped_overlap").Inc()
		logging.Warn().Msg("Scoring run skipped: previous run still in progress")
		report(ErrRunInProgress)
		return
	}
	defer s.runMu.Unlock()

	// Mark running before the health check so triggers arriving at any
	// point during the cycle see ErrRunInProgress.
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	if _, err := s.breaker.Execute(func() (any, error) {
		healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return nil, s.store.Ping(healthCtx)
	}); err != nil {
		metrics.RunsTotal.WithLabelValues("skipped_unhealthy").Inc()
		metrics.StoreHealthFailures.Inc()
		logging.Err(err).Msg("Scoring run skipped: store unhealthy")
		s.mu.Lock()
		s.running = false
		s.lastErr = fmt.Errorf("store health check: %w", err)
		s.mu.Unlock()
		report(err)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	scored, err := s.runScoring(runCtx)
	elapsed := time.Since(start)

	metrics.RunDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		metrics.LastRunSuccess.Set(0)
		logging.Err(err).Dur("elapsed", elapsed).Msg("Scoring run failed")
	} else {
		metrics.RunsTotal.WithLabelValues("completed").Inc()
		metrics.LastRunSuccess.Set(1)
		logging.Info().
			Int("notes", scored).
			Dur("elapsed", elapsed).
			Msg("Scoring run completed")
	}

	s.recordRun(scored, err)
	report(err)
}

func (s *Scheduler) recordRun(scored int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.runCount++
	s.lastRun = time.Now().UTC()
	s.lastErr = err
	s.lastNotes = scored
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/opennotes/notescore/internal/events"
	"github.com/opennotes/notescore/internal/logging"
	"github.com/opennotes/notescore/internal/metrics"
	"github.com/opennotes/notescore/internal/models"
	"github.com/opennotes/notescore/internal/scoring"
	"github.com/opennotes/notescore/internal/store"
)

// runScoring is one full scoring cycle: factorize the rating window, then
// walk every note in batches, aggregate, decide, and write back. It returns
// the number of notes scored.
//
// A note that fails mid-batch is logged and skipped; one bad row must not
// starve the rest of the corpus. A failed batch write aborts the run:
// committed batches stand, the next cycle recomputes.
func (s *Scheduler) runScoring(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.window)

	ratings, err := s.store.ListRatingsInWindow(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("load rating window: %w", err)
	}

	result, err := s.factorizer.Train(ctx, ratings)
	if err != nil {
		return 0, fmt.Errorf("factorization: %w", err)
	}
	switch {
	case result.Skipped:
		metrics.FactorizationConverged.WithLabelValues("skipped").Inc()
		logging.Info().Int("ratings", len(ratings)).Msg("Factorization skipped, using ratio fallback")
	case result.Converged:
		metrics.FactorizationConverged.WithLabelValues("converged").Inc()
		metrics.FactorizationIterations.Observe(float64(result.Iterations))
	default:
		metrics.FactorizationConverged.WithLabelValues("not_converged").Inc()
		metrics.FactorizationIterations.Observe(float64(result.Iterations))
		logging.Warn().
			Int("iterations", result.Iterations).
			Float64("loss", result.FinalLoss).
			Msg("Factorization stopped before convergence")
	}

	scored := 0
	var transitions []scoring.StatusTransition

	for offset := 0; ; offset += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return scored, err
		}

		notes, err := s.store.ListNotes(ctx, s.cfg.BatchSize, offset)
		if err != nil {
			return scored, fmt.Errorf("list notes at offset %d: %w", offset, err)
		}
		if len(notes) == 0 {
			break
		}

		updates, batchTransitions := s.scoreBatch(ctx, notes, result, now)

		if s.limiter != nil {
			if err := s.limiter.WaitN(ctx, len(updates)); err != nil {
				return scored, err
			}
		}
		if err := s.store.ApplyScoringUpdates(ctx, updates); err != nil {
			return scored, fmt.Errorf("apply updates at offset %d: %w", offset, err)
		}

		scored += len(updates)
		transitions = append(transitions, batchTransitions...)

		if len(notes) < s.cfg.BatchSize {
			break
		}
	}

	metrics.NotesScored.Add(float64(scored))

	if err := s.handleTransitions(ctx, transitions); err != nil {
		return scored, err
	}

	if err := s.store.RefreshRequestAggregations(ctx); err != nil {
		return scored, fmt.Errorf("refresh request aggregations: %w", err)
	}
	return scored, nil
}

// scoreBatch aggregates and decides one batch of notes in parallel.
// Per-note failures are isolated: logged, counted, and dropped from the
// batch write.
func (s *Scheduler) scoreBatch(ctx context.Context, notes []models.Note, result *scoring.FactorizationResult, now time.Time) ([]store.NoteScoringUpdate, []scoring.StatusTransition) {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(notes) {
		workers = len(notes)
	}

	type outcome struct {
		update     store.NoteScoringUpdate
		transition *scoring.StatusTransition
		ok         bool
	}

	outcomes := make([]outcome, len(notes))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				note := &notes[i]
				func() {
					defer func() {
						if r := recover(); r != nil {
							metrics.ItemFailures.Inc()
							logging.Error().
								Str("note_id", note.ID).
								Interface("panic", r).
								Msg("Note scoring panicked, skipping")
						}
					}()
					update, transition, err := s.scoreNote(ctx, note, result, now)
					if err != nil {
						metrics.ItemFailures.Inc()
						logging.Err(err).Str("note_id", note.ID).Msg("Note scoring failed, skipping")
						return
					}
					outcomes[i] = outcome{update: update, transition: transition, ok: true}
				}()
			}
		}()
	}
feed:
	for i := range notes {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	updates := make([]store.NoteScoringUpdate, 0, len(notes))
	var transitions []scoring.StatusTransition
	for _, o := range outcomes {
		if !o.ok {
			continue
		}
		updates = append(updates, o.update)
		if o.transition != nil {
			transitions = append(transitions, *o.transition)
		}
	}
	return updates, transitions
}

// scoreNote aggregates one note's ratings and applies the status policy.
func (s *Scheduler) scoreNote(ctx context.Context, note *models.Note, result *scoring.FactorizationResult, now time.Time) (store.NoteScoringUpdate, *scoring.StatusTransition, error) {
	ratings, err := s.store.ListRatingsByNote(ctx, note.ID)
	if err != nil {
		return store.NoteScoringUpdate{}, nil, fmt.Errorf("ratings for note %s: %w", note.ID, err)
	}

	stats := scoring.Aggregate(ratings)
	score, haveScore := 0.0, false
	if !result.Skipped {
		score, haveScore = result.NoteScores[note.ID]
	}

	decision := s.policy.Decide(note, stats, score, haveScore, now)

	update := store.NoteScoringUpdate{
		NoteID:           note.ID,
		Status:           decision.Status,
		StatusChanged:    decision.Changed,
		HelpfulCount:     stats.HelpfulCount,
		NotHelpfulCount:  stats.NotHelpfulCount,
		TotalRatings:     stats.TotalRatings,
		HelpfulnessRatio: stats.HelpfulnessRatio,
		VisibilityScore:  decision.Score,
		IsVisible:        decision.IsVisible,
		At:               now,
	}

	var transition *scoring.StatusTransition
	if decision.Changed {
		transition = &scoring.StatusTransition{
			NoteID:    note.ID,
			ContentID: note.ContentID,
			From:      note.Status,
			To:        decision.Status,
			Score:     decision.Score,
			At:        now,
		}
	}
	return update, transition, nil
}

// handleTransitions publishes status events and settles the requestor side
// of CRH transitions: the content's requests are fulfilled, and the cached
// metrics of everyone who asked must be recomputed.
func (s *Scheduler) handleTransitions(ctx context.Context, transitions []scoring.StatusTransition) error {
	crhContents := make(map[string]struct{})

	for i := range transitions {
		tr := &transitions[i]
		metrics.StatusTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()

		event := events.NewNoteStatusEvent(tr.NoteID, tr.ContentID, tr.From, tr.To, tr.Score, tr.At)
		if err := s.publisher.PublishStatusEvent(ctx, event); err != nil {
			// Events are best effort; the store is the source of truth.
			logging.Err(err).Str("note_id", tr.NoteID).Msg("Status event publish failed")
		}

		if tr.To == models.StatusCRH {
			crhContents[tr.ContentID] = struct{}{}
		}
	}

	for contentID := range crhContents {
		requests, err := s.store.ActiveRequestsByContent(ctx, contentID)
		if err != nil {
			return fmt.Errorf("requests for %s: %w", contentID, err)
		}
		for _, r := range requests {
			s.reputation.Invalidate(r.RequestorID)
		}
		if err := s.store.DeactivateRequests(ctx, contentID); err != nil {
			return fmt.Errorf("deactivate requests for %s: %w", contentID, err)
		}
		logging.Info().
			Str("content_id", contentID).
			Int("requests", len(requests)).
			Msg("Requests fulfilled by CRH note")
	}
	return nil
}

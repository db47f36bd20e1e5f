// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scoring

import (
	"time"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/models"
)

// Decision is the policy outcome for one note in one run.
type Decision struct {
	Status models.NoteStatus

	// Changed is true when Status differs from the note's previous status;
	// the caller records last_status_at and emits the transition.
	Changed bool

	// Frozen is true when the note aged past the scoring window and its
	// status was left at the last value. Statistics still refresh.
	Frozen bool

	// Score is the signal the decision was based on (factorization note
	// intercept, or the ratio fallback when factorization was skipped).
	Score float64

	IsVisible bool
}

// StatusTransition describes one note's status change, produced per run and
// consumed by the requestor credit path and the event publisher.
type StatusTransition struct {
	NoteID    string
	ContentID string
	From      models.NoteStatus
	To        models.NoteStatus
	Score     float64
	At        time.Time
}

// Policy maps per-note signals to a discrete status, gated by rating volume
// and note age. Each run decides from scratch; the policy itself never locks
// a status permanently.
type Policy struct {
	cfg config.ScoringConfig
}

// NewPolicy creates a status decision policy, normalizing zero config values
// to the documented defaults.
func NewPolicy(cfg config.ScoringConfig) *Policy {
	if cfg.MinRatingsForStatus <= 0 {
		cfg.MinRatingsForStatus = 5
	}
	if cfg.MaxDaysForScoring <= 0 {
		cfg.MaxDaysForScoring = 30 * 24 * time.Hour
	}
	if cfg.CRHThreshold == 0 && cfg.NRHThreshold == 0 {
		cfg.CRHThreshold = 0.40
		cfg.NRHThreshold = -0.05
	}
	return &Policy{cfg: cfg}
}

// Decide evaluates one note. stats must be the freshly aggregated counts;
// score is the factorization note score, with haveScore false when
// factorization was skipped (the ratio fallback is applied here).
func (p *Policy) Decide(note *models.Note, stats NoteStats, score float64, haveScore bool, now time.Time) Decision {
	if !haveScore {
		score = RatioScore(stats.HelpfulnessRatio)
	}

	// Age freeze bounds recompute cost: consensus on old notes should
	// stabilize, not oscillate. Aggregation still refreshes upstream.
	if note.Age(now) > p.cfg.MaxDaysForScoring {
		return Decision{
			Status:    note.Status,
			Frozen:    true,
			Score:     score,
			IsVisible: note.Status == models.StatusCRH,
		}
	}

	var status models.NoteStatus
	switch {
	case stats.TotalRatings < p.cfg.MinRatingsForStatus:
		status = models.StatusNeedsMoreRatings
	case score >= p.cfg.CRHThreshold:
		status = models.StatusCRH
	case score <= p.cfg.NRHThreshold:
		status = models.StatusNRH
	default:
		status = models.StatusNeedsMoreRatings
	}

	return Decision{
		Status:    status,
		Changed:   status != note.Status,
		Score:     score,
		IsVisible: status == models.StatusCRH,
	}
}

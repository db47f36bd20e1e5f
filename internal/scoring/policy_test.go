// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/models"
)

func testPolicyConfig() config.ScoringConfig {
	cfg := testScoringConfig()
	cfg.MinRatingsForStatus = 5
	cfg.MaxDaysForScoring = 30 * 24 * time.Hour
	cfg.CRHThreshold = 0.40
	cfg.NRHThreshold = -0.05
	return cfg
}

func freshNote(status models.NoteStatus, age time.Duration, now time.Time) *models.Note {
	return &models.Note{
		ID:          "note-1",
		ContentID:   "content-1",
		Status:      status,
		SubmittedAt: now.Add(-age),
	}
}

func TestDecideVolumeGate(t *testing.T) {
	now := time.Now().UTC()
	p := NewPolicy(testPolicyConfig())

	// Fewer than minRatingsForStatus ratings can never produce crh/nrh,
	// whatever the score says.
	note := freshNote(models.StatusPending, time.Hour, now)
	d := p.Decide(note, NoteStats{TotalRatings: 4, HelpfulCount: 4, HelpfulnessRatio: 1.0}, 0.9, true, now)

	assert.Equal(t, models.StatusNeedsMoreRatings, d.Status)
	assert.True(t, d.Changed)
	assert.False(t, d.IsVisible)
}

func TestDecideThresholds(t *testing.T) {
	now := time.Now().UTC()
	p := NewPolicy(testPolicyConfig())
	stats := NoteStats{TotalRatings: 10, HelpfulCount: 6, NotHelpfulCount: 4, HelpfulnessRatio: 0.6}

	tests := []struct {
		name  string
		score float64
		want  models.NoteStatus
	}{
		{"well above crh", 0.9, models.StatusCRH},
		{"exactly crh threshold", 0.40, models.StatusCRH},
		{"between thresholds", 0.2, models.StatusNeedsMoreRatings},
		{"just above nrh", -0.04, models.StatusNeedsMoreRatings},
		{"exactly nrh threshold", -0.05, models.StatusNRH},
		{"well below nrh", -0.8, models.StatusNRH},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note := freshNote(models.StatusPending, time.Hour, now)
			d := p.Decide(note, stats, tt.score, true, now)
			assert.Equal(t, tt.want, d.Status)
		})
	}
}

func TestDecideScenarioFiveRatings(t *testing.T) {
	// 3 helpful / 2 not-helpful: ratio 0.6, status-eligible at the default
	// minimum, and a factorization score of 0.5 clears the CRH bar.
	now := time.Now().UTC()
	p := NewPolicy(testPolicyConfig())

	stats := Aggregate(ratingSet(3, 2))
	assert.InDelta(t, 0.6, stats.HelpfulnessRatio, 1e-4)

	note := freshNote(models.StatusPending, 48*time.Hour, now)
	d := p.Decide(note, stats, 0.5, true, now)

	assert.Equal(t, models.StatusCRH, d.Status)
	assert.True(t, d.Changed)
	assert.True(t, d.IsVisible)
}

func TestDecideAgeFreeze(t *testing.T) {
	now := time.Now().UTC()
	p := NewPolicy(testPolicyConfig())

	// A note past the scoring window keeps its last status even when the
	// current score would flip it.
	note := freshNote(models.StatusCRH, 31*24*time.Hour, now)
	d := p.Decide(note, NoteStats{TotalRatings: 50, HelpfulnessRatio: 0.1}, -0.9, true, now)

	assert.True(t, d.Frozen)
	assert.False(t, d.Changed)
	assert.Equal(t, models.StatusCRH, d.Status)
	assert.True(t, d.IsVisible, "frozen crh note stays visible")
}

func TestDecideRatioFallbackWhenFactorizationSkipped(t *testing.T) {
	now := time.Now().UTC()
	p := NewPolicy(testPolicyConfig())

	// With haveScore=false the policy scores from the ratio alone:
	// ratio 0.9 maps to 0.8, above the CRH threshold.
	note := freshNote(models.StatusNeedsMoreRatings, time.Hour, now)
	stats := NoteStats{TotalRatings: 10, HelpfulCount: 9, NotHelpfulCount: 1, HelpfulnessRatio: 0.9}
	d := p.Decide(note, stats, 0, false, now)

	assert.Equal(t, models.StatusCRH, d.Status)
	assert.InDelta(t, 0.8, d.Score, 1e-9)
}

func TestDecideUnchangedStatusNotMarkedChanged(t *testing.T) {
	now := time.Now().UTC()
	p := NewPolicy(testPolicyConfig())

	note := freshNote(models.StatusCRH, time.Hour, now)
	stats := NoteStats{TotalRatings: 12, HelpfulCount: 10, NotHelpfulCount: 2, HelpfulnessRatio: 0.833}
	d := p.Decide(note, stats, 0.7, true, now)

	assert.Equal(t, models.StatusCRH, d.Status)
	assert.False(t, d.Changed)
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scoring

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/models"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		NumFactors:           1,
		BasePenalty:          0.03,
		InterceptPenaltyMult: 5,
		InitialLearningRate:  0.2,
		FinetuneRateScale:    1.0,
		ConvergenceEpsilon:   1e-7,
		MaxIterations:        1000,
		Patience:             10,
		GradientClip:         1.0,
		Seed:                 42,
	}
}

// consensusRatings builds a matrix where every rater agrees per note:
// notes good-* are rated helpful by all, bad-* not helpful by all.
func consensusRatings(raters, goodNotes, badNotes int) []models.Rating {
	var ratings []models.Rating
	for r := 0; r < raters; r++ {
		rater := fmt.Sprintf("rater-%d", r)
		for n := 0; n < goodNotes; n++ {
			ratings = append(ratings, models.Rating{
				ID:      fmt.Sprintf("g-%d-%d", r, n),
				NoteID:  fmt.Sprintf("good-%d", n),
				RaterID: rater,
				Helpful: true,
			})
		}
		for n := 0; n < badNotes; n++ {
			ratings = append(ratings, models.Rating{
				ID:      fmt.Sprintf("b-%d-%d", r, n),
				NoteID:  fmt.Sprintf("bad-%d", n),
				RaterID: rater,
				Helpful: false,
			})
		}
	}
	return ratings
}

func TestTrainSeparatesConsensus(t *testing.T) {
	f := NewFactorizer(testScoringConfig())

	result, err := f.Train(context.Background(), consensusRatings(8, 3, 3))
	require.NoError(t, err)
	require.False(t, result.Skipped)

	for n := 0; n < 3; n++ {
		good := result.NoteScores[fmt.Sprintf("good-%d", n)]
		bad := result.NoteScores[fmt.Sprintf("bad-%d", n)]
		assert.Greater(t, good, 0.0, "unanimously helpful note should score positive")
		assert.Less(t, bad, 0.0, "unanimously unhelpful note should score negative")
		assert.Greater(t, good, bad)
	}
}

func TestTrainDeterministicForFixedSeed(t *testing.T) {
	ratings := consensusRatings(5, 2, 2)

	first, err := NewFactorizer(testScoringConfig()).Train(context.Background(), ratings)
	require.NoError(t, err)
	second, err := NewFactorizer(testScoringConfig()).Train(context.Background(), ratings)
	require.NoError(t, err)

	require.Equal(t, first.Iterations, second.Iterations)
	assert.Equal(t, first.Converged, second.Converged)
	assert.InDelta(t, first.GlobalIntercept, second.GlobalIntercept, 0)
	for id, score := range first.NoteScores {
		assert.InDelta(t, score, second.NoteScores[id], 0, "note %s", id)
	}
	for id, bias := range first.UserIntercepts {
		assert.InDelta(t, bias, second.UserIntercepts[id], 0, "user %s", id)
	}
}

func TestTrainIdempotentAcrossRuns(t *testing.T) {
	// Two consecutive pipeline runs on an unchanged rating set must agree
	// within epsilon.
	ratings := consensusRatings(6, 4, 2)
	f := NewFactorizer(testScoringConfig())

	first, err := f.Train(context.Background(), ratings)
	require.NoError(t, err)
	second, err := f.Train(context.Background(), ratings)
	require.NoError(t, err)

	for id, score := range first.NoteScores {
		assert.InDelta(t, score, second.NoteScores[id], 1e-9)
	}
}

func TestTrainSkipsDegenerateInput(t *testing.T) {
	tests := []struct {
		name    string
		ratings []models.Rating
	}{
		{"empty", nil},
		{"single rater", []models.Rating{
			{NoteID: "n1", RaterID: "u1", Helpful: true},
			{NoteID: "n2", RaterID: "u1", Helpful: false},
		}},
		{"single note", []models.Rating{
			{NoteID: "n1", RaterID: "u1", Helpful: true},
			{NoteID: "n1", RaterID: "u2", Helpful: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewFactorizer(testScoringConfig()).Train(context.Background(), tt.ratings)
			require.NoError(t, err, "degenerate input is a no-op, not an error")
			assert.True(t, result.Skipped)
			assert.Empty(t, result.NoteScores)
		})
	}
}

func TestTrainReportsNonConvergenceAtIterationCap(t *testing.T) {
	cfg := testScoringConfig()
	cfg.MaxIterations = 2
	cfg.ConvergenceEpsilon = 1e-15
	cfg.Patience = 100

	result, err := NewFactorizer(cfg).Train(context.Background(), consensusRatings(6, 3, 3))
	require.NoError(t, err)
	require.False(t, result.Skipped)

	assert.False(t, result.Converged, "hitting the cap must be flagged, never silent")
	assert.Equal(t, 2, result.Iterations)
}

func TestTrainConvergesOnEasyConsensus(t *testing.T) {
	result, err := NewFactorizer(testScoringConfig()).Train(context.Background(), consensusRatings(10, 4, 4))
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Less(t, result.Iterations, 1000)
}

func TestTrainHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFactorizer(testScoringConfig()).Train(ctx, consensusRatings(6, 3, 3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainBoundedScores(t *testing.T) {
	// Gradient clipping plus L2 damping keeps intercepts in a sane range
	// even under one-sided mass rating.
	var ratings []models.Rating
	for r := 0; r < 50; r++ {
		ratings = append(ratings, models.Rating{
			ID:      fmt.Sprintf("r-%d", r),
			NoteID:  fmt.Sprintf("n-%d", r%2),
			RaterID: fmt.Sprintf("u-%d", r),
			Helpful: true,
		})
	}

	result, err := NewFactorizer(testScoringConfig()).Train(context.Background(), ratings)
	require.NoError(t, err)
	require.False(t, result.Skipped)

	for id, score := range result.NoteScores {
		assert.Less(t, score, 1.5, "note %s", id)
		assert.Greater(t, score, -1.5, "note %s", id)
	}
}

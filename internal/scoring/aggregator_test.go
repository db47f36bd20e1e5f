// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opennotes/notescore/internal/models"
)

func ratingSet(helpful, notHelpful int) []models.Rating {
	ratings := make([]models.Rating, 0, helpful+notHelpful)
	for i := 0; i < helpful; i++ {
		ratings = append(ratings, models.Rating{Helpful: true})
	}
	for i := 0; i < notHelpful; i++ {
		ratings = append(ratings, models.Rating{Helpful: false})
	}
	return ratings
}

func TestAggregateCounts(t *testing.T) {
	tests := []struct {
		name       string
		helpful    int
		notHelpful int
		wantRatio  float64
	}{
		{"empty", 0, 0, 0},
		{"all helpful", 4, 0, 1.0},
		{"all not helpful", 0, 3, 0},
		{"three of five", 3, 2, 0.6},
		{"one of ten", 1, 9, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := Aggregate(ratingSet(tt.helpful, tt.notHelpful))

			assert.Equal(t, tt.helpful, stats.HelpfulCount)
			assert.Equal(t, tt.notHelpful, stats.NotHelpfulCount)
			assert.Equal(t, tt.helpful+tt.notHelpful, stats.TotalRatings)
			assert.Equal(t, stats.HelpfulCount+stats.NotHelpfulCount, stats.TotalRatings)
			assert.InDelta(t, tt.wantRatio, stats.HelpfulnessRatio, 1e-4)
		})
	}
}

func TestAggregateIdempotent(t *testing.T) {
	ratings := ratingSet(7, 3)

	first := Aggregate(ratings)
	second := Aggregate(ratings)

	assert.Equal(t, first, second)
}

func TestAggregateIgnoresWeights(t *testing.T) {
	// Weights shape the factorization loss, not the counted statistics.
	ratings := []models.Rating{
		{Helpful: true, Weight: 3.0},
		{Helpful: false, Weight: 0.1},
	}

	stats := Aggregate(ratings)
	assert.Equal(t, 1, stats.HelpfulCount)
	assert.Equal(t, 1, stats.NotHelpfulCount)
	assert.Equal(t, 2, stats.TotalRatings)
	assert.InDelta(t, 0.5, stats.HelpfulnessRatio, 1e-4)
}

func TestRatioScore(t *testing.T) {
	assert.InDelta(t, 1.0, RatioScore(1.0), 1e-12)
	assert.InDelta(t, -1.0, RatioScore(0.0), 1e-12)
	assert.InDelta(t, 0.0, RatioScore(0.5), 1e-12)
	assert.InDelta(t, 0.2, RatioScore(0.6), 1e-12)
}

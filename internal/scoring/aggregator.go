// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scoring

import "github.com/opennotes/notescore/internal/models"

// NoteStats is the counted helpfulness statistics for one note.
type NoteStats struct {
	HelpfulCount     int
	NotHelpfulCount  int
	TotalRatings     int
	HelpfulnessRatio float64
}

// Aggregate recomputes a note's counting statistics from its full rating
// set. It is pure and idempotent: re-running on unchanged input yields
// identical output, and helpful + not_helpful always equals total.
func Aggregate(ratings []models.Rating) NoteStats {
	var stats NoteStats
	for i := range ratings {
		if ratings[i].Helpful {
			stats.HelpfulCount++
		} else {
			stats.NotHelpfulCount++
		}
	}
	stats.TotalRatings = stats.HelpfulCount + stats.NotHelpfulCount
	if stats.TotalRatings > 0 {
		stats.HelpfulnessRatio = float64(stats.HelpfulCount) / float64(stats.TotalRatings)
	}
	return stats
}

// RatioScore maps a helpfulness ratio in [0,1] onto the factorization score
// scale [-1,+1]. It is the fallback signal when factorization is skipped for
// lack of distinct raters or notes.
func RatioScore(ratio float64) float64 {
	return 2*ratio - 1
}

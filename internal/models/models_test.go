// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoteStatusValid(t *testing.T) {
	tests := []struct {
		status NoteStatus
		want   bool
	}{
		{StatusPending, true},
		{StatusNeedsMoreRatings, true},
		{StatusCRH, true},
		{StatusNRH, true},
		{NoteStatus(""), false},
		{NoteStatus("locked"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Valid(), "status %q", tt.status)
	}
}

func TestNoteStatsConsistent(t *testing.T) {
	n := &Note{HelpfulCount: 3, NotHelpfulCount: 2, TotalRatings: 5}
	assert.True(t, n.StatsConsistent())

	n.TotalRatings = 6
	assert.False(t, n.StatsConsistent())
}

func TestNoteAge(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	n := &Note{SubmittedAt: now.Add(-48 * time.Hour)}
	assert.Equal(t, 48*time.Hour, n.Age(now))
}

func TestRatingTarget(t *testing.T) {
	helpful := &Rating{Helpful: true}
	notHelpful := &Rating{Helpful: false}

	assert.Equal(t, 1.0, helpful.Target())
	assert.Equal(t, -1.0, notHelpful.Target())
}

func TestRatingEffectiveWeight(t *testing.T) {
	assert.Equal(t, DefaultRatingWeight, (&Rating{}).EffectiveWeight())
	assert.Equal(t, 0.5, (&Rating{Weight: 0.5}).EffectiveWeight())
	assert.Equal(t, DefaultRatingWeight, (&Rating{Weight: -1}).EffectiveWeight())
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package models

import "time"

// NoteStatus is the discrete acceptance state of a community note.
type NoteStatus string

const (
	// StatusPending is the initial state of a freshly submitted note.
	StatusPending NoteStatus = "pending"

	// StatusNeedsMoreRatings means the note has not accumulated enough
	// signal to be rated either way.
	StatusNeedsMoreRatings NoteStatus = "needs-more-ratings"

	// StatusCRH means the note is Currently Rated Helpful.
	StatusCRH NoteStatus = "crh"

	// StatusNRH means the note is Currently Rated Not Helpful.
	StatusNRH NoteStatus = "nrh"
)

// Valid reports whether s is one of the known note statuses.
func (s NoteStatus) Valid() bool {
	switch s {
	case StatusPending, StatusNeedsMoreRatings, StatusCRH, StatusNRH:
		return true
	}
	return false
}

// Note is a community-submitted annotation attached to flagged content.
//
// The identity and content fields are created by the ingestion layer on
// submission and never change. The status and statistics fields are owned
// and mutated exclusively by the scoring pipeline.
type Note struct {
	ID             string   `json:"id"`
	ContentID      string   `json:"content_id"` // target content the note annotates
	AuthorID       string   `json:"author_id"`
	Content        string   `json:"content"`
	Classification string   `json:"classification"`
	Sources        []string `json:"sources,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`

	// Mutable fields below, owned by the scoring pipeline.
	Status          NoteStatus `json:"status"`
	LastStatusAt    time.Time  `json:"last_status_at"`
	HelpfulCount    int        `json:"helpful_count"`
	NotHelpfulCount int        `json:"not_helpful_count"`
	TotalRatings    int        `json:"total_ratings"`

	// HelpfulnessRatio is helpful_count / total_ratings, 0 when unrated.
	HelpfulnessRatio float64 `json:"helpfulness_ratio"`

	VisibilityScore float64 `json:"visibility_score"`
	IsVisible       bool    `json:"is_visible"`
}

// Age returns how long ago the note was submitted relative to now.
func (n *Note) Age(now time.Time) time.Duration {
	return now.Sub(n.SubmittedAt)
}

// StatsConsistent reports whether the counted statistics satisfy the
// helpful + not_helpful == total invariant.
func (n *Note) StatsConsistent() bool {
	return n.HelpfulCount+n.NotHelpfulCount == n.TotalRatings
}

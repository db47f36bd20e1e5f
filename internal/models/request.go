// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package models

import "time"

// NoteRequest is a user's request for a community note on a piece of
// flagged content. At most one active request exists per
// (content, requestor) pair.
type NoteRequest struct {
	ID          string    `json:"id"`
	ContentID   string    `json:"content_id"`
	RequestorID string    `json:"requestor_id"`
	Reason      string    `json:"reason,omitempty"`
	Sources     []string  `json:"sources,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
}

// RequestAggregation is the per-content rollup of note requests. It is
// fully recomputed from the requests table each scoring run and consulted
// by the visibility resolver and by notification dispatch (out of scope
// here beyond the flags).
type RequestAggregation struct {
	ContentID        string     `json:"content_id"`
	TotalRequests    int        `json:"total_requests"`
	UniqueRequestors int        `json:"unique_requestors"`
	FirstRequestAt   *time.Time `json:"first_request_at,omitempty"`
	LastRequestAt    *time.Time `json:"last_request_at,omitempty"`

	ThresholdMet   bool       `json:"threshold_met"`
	ThresholdMetAt *time.Time `json:"threshold_met_at,omitempty"`

	ContributorsNotified bool       `json:"contributors_notified"`
	NotifiedAt           *time.Time `json:"notified_at,omitempty"`
}

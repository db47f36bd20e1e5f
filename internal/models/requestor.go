// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package models

import "time"

// RequestorTier buckets requestors by the quality of their request history.
// Higher tiers need fewer co-requestors before pending requests surface.
type RequestorTier string

const (
	// TierDefault is the starting tier for every requestor.
	TierDefault RequestorTier = "default"

	// TierMedium requires a modest hit rate with at least one CRH note.
	TierMedium RequestorTier = "medium"

	// TierHigh requires a sustained hit rate across several CRH notes.
	TierHigh RequestorTier = "high"
)

// RequestorMetrics is the sliding-window reputation snapshot for a single
// requestor. It is derived per scoring run from raw requests and note
// statuses, and cached with bounded validity; it is never a durable source
// of truth.
type RequestorMetrics struct {
	RequestorID string `json:"requestor_id"`

	// TotalEligible counts requests inside the sliding window that are old
	// enough to have plausibly resolved.
	TotalEligible int `json:"total_eligible"`

	// Successful counts eligible requests whose target content carries at
	// least one CRH note.
	Successful int `json:"successful"`

	// CRHNoteCount is the number of CRH notes across the contents of the
	// requestor's eligible requests.
	CRHNoteCount int `json:"crh_note_count"`

	// HitRate is Successful / TotalEligible, 0 when TotalEligible is 0.
	HitRate float64 `json:"hit_rate"`

	Tier RequestorTier `json:"tier"`

	ComputedAt time.Time `json:"computed_at"`
}

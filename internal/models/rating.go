// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package models

import "time"

// DefaultRatingWeight is the weight assigned to a rating unless the rater's
// trust level says otherwise.
const DefaultRatingWeight = 1.0

// Rating is a single rater's helpful / not-helpful verdict on a note.
// At most one rating exists per (note, rater) pair. All fields except
// Weight are immutable once written; Weight is recomputed when the
// rater's trust changes.
type Rating struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"note_id"`
	RaterID   string    `json:"rater_id"`
	Helpful   bool      `json:"helpful"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Weight    float64   `json:"weight"`
}

// Target returns the rating encoded as a factorization target:
// helpful maps to +1, not-helpful to -1.
func (r *Rating) Target() float64 {
	if r.Helpful {
		return 1.0
	}
	return -1.0
}

// EffectiveWeight returns the rating weight, substituting the default
// for unset (zero) weights from older ingestion paths.
func (r *Rating) EffectiveWeight() float64 {
	if r.Weight <= 0 {
		return DefaultRatingWeight
	}
	return r.Weight
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package events publishes note status transitions so downstream consumers
// (notification dispatch, dashboards) can react without polling the store.
package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/opennotes/notescore/internal/models"
)

// SchemaVersion is carried in every event so consumers can reject
// envelopes they do not understand.
const SchemaVersion = 1

// NoteStatusEvent is emitted once per status transition per scoring run.
// Stats-only refreshes do not produce events.
type NoteStatusEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventID       string    `json:"event_id"`
	OccurredAt    time.Time `json:"occurred_at"`

	NoteID    string            `json:"note_id"`
	ContentID string            `json:"content_id"`
	From      models.NoteStatus `json:"from"`
	To        models.NoteStatus `json:"to"`
	Score     float64           `json:"score"`
}

// NewNoteStatusEvent builds an envelope for one transition.
func NewNoteStatusEvent(noteID, contentID string, from, to models.NoteStatus, score float64, at time.Time) *NoteStatusEvent {
	return &NoteStatusEvent{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.NewString(),
		OccurredAt:    at,
		NoteID:        noteID,
		ContentID:     contentID,
		From:          from,
		To:            to,
		Score:         score,
	}
}

// Marshal serializes the event payload.
func (e *NoteStatusEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalNoteStatusEvent parses an event payload.
func UnmarshalNoteStatusEvent(data []byte) (*NoteStatusEvent, error) {
	var e NoteStatusEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/models"
)

func TestNoteStatusEventRoundTrip(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	e := NewNoteStatusEvent("note-1", "content-1", models.StatusPending, models.StatusCRH, 0.52, at)

	assert.Equal(t, SchemaVersion, e.SchemaVersion)
	assert.NotEmpty(t, e.EventID)

	data, err := e.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalNoteStatusEvent(data)
	require.NoError(t, err)
	assert.Equal(t, e.EventID, got.EventID)
	assert.Equal(t, models.StatusCRH, got.To)
	assert.Equal(t, 0.52, got.Score)
	assert.True(t, got.OccurredAt.Equal(at))
}

func TestChannelPublisherDeliversToSubscriber(t *testing.T) {
	cfg := config.EventsConfig{Transport: "channel", Topic: "notes.status"}
	pub, err := NewPublisher(cfg)
	require.NoError(t, err)
	defer pub.Close()

	ch, ok := pub.(*channelPublisher)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := ch.Subscribe(ctx, cfg.Topic)
	require.NoError(t, err)

	event := NewNoteStatusEvent("note-1", "content-1",
		models.StatusNeedsMoreRatings, models.StatusCRH, 0.45, time.Now().UTC())
	require.NoError(t, pub.PublishStatusEvent(ctx, event))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, event.EventID, msg.UUID)
		assert.Equal(t, "note-1", msg.Metadata.Get("note_id"))
		assert.Equal(t, "crh", msg.Metadata.Get("to_status"))

		got, err := UnmarshalNoteStatusEvent(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCRH, got.To)
	case <-ctx.Done():
		t.Fatal("no event delivered before timeout")
	}
}

func TestNewPublisherRejectsUnknownTransport(t *testing.T) {
	_, err := NewPublisher(config.EventsConfig{Transport: "carrier-pigeon"})
	assert.Error(t, err)
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/logging"
	"github.com/opennotes/notescore/internal/metrics"
)

// Publisher emits note status events to whichever transport is configured.
type Publisher interface {
	PublishStatusEvent(ctx context.Context, event *NoteStatusEvent) error
	Close() error
}

// NewPublisher builds the configured transport: the in-process Watermill
// GoChannel by default, JetStream when transport is "nats".
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Transport {
	case "nats":
		return newNATSPublisher(cfg)
	case "", "channel":
		return newChannelPublisher(cfg), nil
	default:
		return nil, fmt.Errorf("unknown events transport %q", cfg.Transport)
	}
}

// channelPublisher is the in-process transport. Single-binary deployments
// run notification dispatch in the same process and subscribe directly.
type channelPublisher struct {
	pubsub *gochannel.GoChannel
	topic  string
}

func newChannelPublisher(cfg config.EventsConfig) *channelPublisher {
	return &channelPublisher{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, newWatermillLogger()),
		topic: cfg.Topic,
	}
}

func (p *channelPublisher) PublishStatusEvent(ctx context.Context, event *NoteStatusEvent) error {
	return publish(ctx, p.pubsub, p.topic, event)
}

// Subscribe exposes the underlying channel for in-process consumers.
func (p *channelPublisher) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, topic)
}

func (p *channelPublisher) Close() error {
	return p.pubsub.Close()
}

// publish serializes and sends one event, recording the outcome.
func publish(ctx context.Context, pub message.Publisher, topic string, event *NoteStatusEvent) error {
	data, err := event.Marshal()
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal status event %s: %w", event.EventID, err)
	}

	msg := message.NewMessage(event.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("note_id", event.NoteID)
	msg.Metadata.Set("content_id", event.ContentID)
	msg.Metadata.Set("to_status", string(event.To))

	if err := pub.Publish(topic, msg); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish status event %s: %w", event.EventID, err)
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	log zerolog.Logger
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{log: logging.With().Str("component", "events").Logger()}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.log.Error().Err(err), fields).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.log.Info(), fields).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.log.Debug(), fields).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.log.Trace(), fields).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &watermillLogger{log: ctx.Logger()}
}

func (l *watermillLogger) event(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}

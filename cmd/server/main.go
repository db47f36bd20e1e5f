// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Command server runs the note scoring service: the periodic scoring
// scheduler, the requestor reputation layer, and the operational HTTP API,
// supervised as one tree.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/opennotes/notescore/internal/api"
	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/events"
	"github.com/opennotes/notescore/internal/logging"
	"github.com/opennotes/notescore/internal/reputation"
	"github.com/opennotes/notescore/internal/scheduler"
	"github.com/opennotes/notescore/internal/store"
	"github.com/opennotes/notescore/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("database", cfg.Database.Path).
		Str("events_transport", cfg.Events.Transport).
		Dur("interval", cfg.Scheduler.Interval).
		Msg("Starting notescore")

	db, err := store.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Err(err).Msg("Store close failed")
		}
	}()

	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Err(err).Msg("Publisher close failed")
		}
	}()

	repService := reputation.NewService(db, cfg.Reputation, cfg.Eligibility)
	sched := scheduler.New(db, repService, publisher, *cfg)
	httpServer := api.NewServer(cfg.Server, db, sched, repService)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddScoringService(sched)
	tree.AddAPIService(httpServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Err(err).Msg("Supervisor exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("Shutdown complete")
}

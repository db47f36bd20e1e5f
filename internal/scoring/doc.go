// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package scoring implements the per-note trust signals: the helpfulness
// aggregator, the matrix factorization engine, and the status decision
// policy.
//
// # Pipeline shape
//
// The aggregator is a pure full recomputation of counting statistics from a
// note's rating set. The factorization engine learns per-user and per-note
// latent parameters over the rating window and emits each note's intercept
// as its predicted helpfulness score. The policy maps those signals, gated
// by rating volume and note age, to a discrete status.
//
// # Determinism
//
// Factorization initializes parameters and shuffles epochs from a fixed
// seed: identical ratings with the same seed produce identical output. Every
// run recomputes from scratch; latent parameters are never carried between
// runs.
package scoring

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package models defines the typed records shared across the scoring core:
// notes, ratings, note requests, request aggregations, and requestor metrics.
//
// These are plain data structures with no behavior beyond small invariant
// helpers. The scoring pipeline owns all mutable fields on Note; everything
// else is written by the ingestion layer and only read here.
package models

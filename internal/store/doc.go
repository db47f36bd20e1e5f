// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package store is the DuckDB-backed rating store adapter. It owns the
// schema for notes, ratings, note requests, request aggregations and users,
// and exposes the narrow read/write surface the scoring pipeline consumes.
//
// Durability, replication and ingestion are explicitly not this package's
// concern; it adapts an embedded analytical database to the repository
// surface the rest of the core is written against. Consumers declare their
// own interfaces over *DB.
package store

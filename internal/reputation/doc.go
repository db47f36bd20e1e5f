// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

// Package reputation derives requestor trust from observed request
// outcomes: the hit-rate model, tier assignment, the anti-gaming
// eligibility gate, and the visibility threshold resolver.
//
// Nothing here is durable state. Metrics are recomputed from the requests
// and notes tables on demand and cached with a bounded TTL; dropping the
// cache is always safe.
package reputation

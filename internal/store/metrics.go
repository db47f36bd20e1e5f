// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package store

import (
	"time"

	"github.com/opennotes/notescore/internal/metrics"
)

// recordQuery records per-operation duration and error counters.
func recordQuery(op string, d time.Duration, err error) {
	metrics.StoreQueryDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

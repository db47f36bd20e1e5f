// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/opennotes/notescore/internal/models"
)

// MetricsStore is the slice of the data layer the hit-rate computation
// reads from.
type MetricsStore interface {
	ListRequestsByRequestor(ctx context.Context, requestorID string, from, to time.Time) ([]models.NoteRequest, error)
	CRHNoteCounts(ctx context.Context, contentIDs []string) (map[string]int, error)
}

// computeMetrics builds a fresh RequestorMetrics snapshot for one
// requestor at the given instant.
//
// The window is the closed interval [now - WindowDays, now - MinRequestAge]:
// a request counts once it is at least MinRequestAge old, and one younger
// than that is too fresh to have plausibly been answered by a note, so it
// does not count against the requestor. A request is successful when its
// content carries at least one CRH note at computation time; several
// requests against the same content each count on their own, but the
// content's CRH notes are counted once.
func (s *Service) computeMetrics(ctx context.Context, requestorID string, now time.Time) (*models.RequestorMetrics, error) {
	from := now.Add(-s.cfg.WindowDays)
	to := now.Add(-s.cfg.MinRequestAge)

	m := &models.RequestorMetrics{
		RequestorID: requestorID,
		Tier:        models.TierDefault,
		ComputedAt:  now,
	}

	requests, err := s.store.ListRequestsByRequestor(ctx, requestorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list requests for %s: %w", requestorID, err)
	}
	m.TotalEligible = len(requests)
	if m.TotalEligible == 0 {
		return m, nil
	}

	contents := make([]string, 0, len(requests))
	seen := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		if _, ok := seen[r.ContentID]; ok {
			continue
		}
		seen[r.ContentID] = struct{}{}
		contents = append(contents, r.ContentID)
	}

	crhCounts, err := s.store.CRHNoteCounts(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("crh counts for %s: %w", requestorID, err)
	}

	for _, r := range requests {
		if crhCounts[r.ContentID] > 0 {
			m.Successful++
		}
	}
	for _, c := range contents {
		m.CRHNoteCount += crhCounts[c]
	}

	m.HitRate = float64(m.Successful) / float64(m.TotalEligible)
	m.Tier = s.determineTier(m)
	return m, nil
}

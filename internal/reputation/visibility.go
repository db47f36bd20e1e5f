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

// Visibility is the resolver's verdict for one piece of content.
type Visibility struct {
	ContentID string `json:"content_id"`

	// Visible reports whether pending note requests for the content
	// should surface to contributors.
	Visible bool `json:"visible"`

	// UniqueRequestors is the number of distinct active requestors.
	UniqueRequestors int `json:"unique_requestors"`

	// Required is the lowest threshold among the requestors' tiers: a
	// single HIGH tier requestor surfaces content a lone DEFAULT tier
	// requestor cannot.
	Required int `json:"required"`
}

// ResolveVisibility decides whether the active note requests on a piece
// of content should surface. Requestors are grouped by tier and each tier
// is judged against its own threshold: the content surfaces when any one
// tier's headcount clears that tier's bar. Tiers never pool — a MEDIUM
// requestor and a DEFAULT requestor together satisfy neither threshold.
func (s *Service) ResolveVisibility(ctx context.Context, contentID string, now time.Time) (*Visibility, error) {
	requests, err := s.store.ActiveRequestsByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("active requests for %s: %w", contentID, err)
	}

	v := &Visibility{ContentID: contentID, Required: s.cfg.DefaultTierVisibility}

	seen := make(map[string]struct{}, len(requests))
	byTier := make(map[models.RequestorTier]int, 3)
	for _, r := range requests {
		if _, ok := seen[r.RequestorID]; ok {
			continue
		}
		seen[r.RequestorID] = struct{}{}

		m, err := s.Metrics(ctx, r.RequestorID, now)
		if err != nil {
			return nil, err
		}
		byTier[m.Tier]++
		if t := s.VisibilityThreshold(m.Tier); t < v.Required {
			v.Required = t
		}
	}

	v.UniqueRequestors = len(seen)
	for tier, count := range byTier {
		if count >= s.VisibilityThreshold(tier) {
			v.Visible = true
			break
		}
	}
	return v, nil
}

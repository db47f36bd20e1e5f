// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package reputation

import "github.com/opennotes/notescore/internal/models"

// determineTier assigns the highest tier whose dual condition the metrics
// satisfy. Both the hit rate AND the CRH note count must clear the bar:
// the rate alone is cheap to fake with a single lucky request, the count
// alone with indiscriminate mass requesting.
func (s *Service) determineTier(m *models.RequestorMetrics) models.RequestorTier {
	if m.HitRate >= s.cfg.HighTierHitRate && m.CRHNoteCount >= s.cfg.HighTierCRHNotes {
		return models.TierHigh
	}
	if m.HitRate >= s.cfg.MediumTierHitRate && m.CRHNoteCount >= s.cfg.MediumTierCRHNotes {
		return models.TierMedium
	}
	return models.TierDefault
}

// VisibilityThreshold returns how many distinct requestors of the given
// tier it takes to surface pending requests for a piece of content.
func (s *Service) VisibilityThreshold(tier models.RequestorTier) int {
	switch tier {
	case models.TierHigh:
		return s.cfg.HighTierVisibility
	case models.TierMedium:
		return s.cfg.MediumTierVisibility
	default:
		return s.cfg.DefaultTierVisibility
	}
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package reputation

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/logging"
	"github.com/opennotes/notescore/internal/metrics"
	"github.com/opennotes/notescore/internal/models"
)

// Store is the full data-layer surface the reputation service consumes.
// *store.DB satisfies it; tests substitute fakes.
type Store interface {
	MetricsStore
	EligibilityStore
}

// Service computes requestor metrics with a TTL-bounded LRU cache in
// front, and answers eligibility and visibility questions. Safe for
// concurrent use.
type Service struct {
	store Store
	cfg   config.ReputationConfig
	elig  config.EligibilityConfig
	cache *lru.LRU[string, *models.RequestorMetrics]
}

// NewService builds a reputation service with the configured cache bounds.
func NewService(st Store, cfg config.ReputationConfig, elig config.EligibilityConfig) *Service {
	return &Service{
		store: st,
		cfg:   cfg,
		elig:  elig,
		cache: lru.NewLRU[string, *models.RequestorMetrics](cfg.MetricsCacheSize, nil, cfg.MetricsCacheTTL),
	}
}

// Metrics returns the requestor's reputation snapshot, served from cache
// when a fresh-enough one exists.
func (s *Service) Metrics(ctx context.Context, requestorID string, now time.Time) (*models.RequestorMetrics, error) {
	if m, ok := s.cache.Get(requestorID); ok {
		metrics.MetricsCacheHits.Inc()
		return m, nil
	}
	metrics.MetricsCacheMisses.Inc()

	m, err := s.computeMetrics(ctx, requestorID, now)
	if err != nil {
		return nil, err
	}
	s.cache.Add(requestorID, m)

	logging.Debug().
		Str("requestor_id", requestorID).
		Int("total_eligible", m.TotalEligible).
		Int("successful", m.Successful).
		Float64("hit_rate", m.HitRate).
		Str("tier", string(m.Tier)).
		Msg("Requestor metrics computed")
	return m, nil
}

// Invalidate drops the cached snapshot for one requestor. The scheduler
// calls this for every requestor of content whose note just turned CRH,
// so the next read reflects the credit immediately.
func (s *Service) Invalidate(requestorID string) {
	s.cache.Remove(requestorID)
}

// Refresh recomputes and re-caches a requestor's metrics unconditionally.
func (s *Service) Refresh(ctx context.Context, requestorID string, now time.Time) (*models.RequestorMetrics, error) {
	s.cache.Remove(requestorID)
	return s.Metrics(ctx, requestorID, now)
}

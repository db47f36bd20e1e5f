// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opennotes/notescore/internal/metrics"
	"github.com/opennotes/notescore/internal/models"
	"github.com/opennotes/notescore/internal/store"
)

// Denial reason codes. These are stable identifiers for metrics and
// clients; the Detail field carries the human-readable limit.
const (
	ReasonUnknownUser      = "unknown_user"
	ReasonAccountTooNew    = "account_too_new"
	ReasonMembershipTooNew = "membership_too_new"
	ReasonDailyLimit       = "daily_limit"
	ReasonHourlyLimit      = "hourly_limit"
	ReasonTooSoon          = "too_soon"
	ReasonDuplicateRequest = "duplicate_active_request"
)

// Denial is one failed eligibility check.
type Denial struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// EligibilityResult is the outcome of the anti-gaming gate. A request may
// fail several checks at once; all denials are reported so clients can
// show the complete picture instead of one limit at a time.
type EligibilityResult struct {
	Eligible bool     `json:"eligible"`
	Denials  []Denial `json:"denials,omitempty"`
}

// EligibilityStore is the slice of the data layer the gate reads from.
type EligibilityStore interface {
	GetUserTimes(ctx context.Context, id string) (createdAt, joinedServerAt time.Time, err error)
	CountRequestsSince(ctx context.Context, requestorID string, since time.Time) (int, error)
	LastRequestAt(ctx context.Context, requestorID string) (*time.Time, error)
	ActiveRequestsByContent(ctx context.Context, contentID string) ([]models.NoteRequest, error)
}

// CheckEligibility runs every anti-gaming check for a prospective note
// request. Violations come back as named denials, never as errors; an
// error return means the store itself failed.
func (s *Service) CheckEligibility(ctx context.Context, requestorID, contentID string, now time.Time) (*EligibilityResult, error) {
	res := &EligibilityResult{Eligible: true}
	deny := func(reason, detail string) {
		res.Eligible = false
		res.Denials = append(res.Denials, Denial{Reason: reason, Detail: detail})
		metrics.EligibilityDenials.WithLabelValues(reason).Inc()
	}

	createdAt, joinedAt, err := s.store.GetUserTimes(ctx, requestorID)
	if errors.Is(err, store.ErrUserNotFound) {
		deny(ReasonUnknownUser, "requestor is not a known user")
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user times for %s: %w", requestorID, err)
	}

	if age := now.Sub(createdAt); age < s.elig.MinAccountAge {
		deny(ReasonAccountTooNew,
			fmt.Sprintf("account age %s is below the %s minimum", age.Round(time.Minute), s.elig.MinAccountAge))
	}
	if age := now.Sub(joinedAt); age < s.elig.MinMembershipAge {
		deny(ReasonMembershipTooNew,
			fmt.Sprintf("membership age %s is below the %s minimum", age.Round(time.Minute), s.elig.MinMembershipAge))
	}

	daily, err := s.store.CountRequestsSince(ctx, requestorID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("daily request count for %s: %w", requestorID, err)
	}
	if daily >= s.elig.MaxRequestsPerDay {
		deny(ReasonDailyLimit,
			fmt.Sprintf("daily limit of %d requests reached", s.elig.MaxRequestsPerDay))
	}

	hourly, err := s.store.CountRequestsSince(ctx, requestorID, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("hourly request count for %s: %w", requestorID, err)
	}
	if hourly >= s.elig.MaxRequestsPerHour {
		deny(ReasonHourlyLimit,
			fmt.Sprintf("hourly limit of %d requests reached", s.elig.MaxRequestsPerHour))
	}

	last, err := s.store.LastRequestAt(ctx, requestorID)
	if err != nil {
		return nil, fmt.Errorf("last request for %s: %w", requestorID, err)
	}
	if last != nil {
		if gap := now.Sub(*last); gap < s.elig.MinRequestSpacing {
			deny(ReasonTooSoon,
				fmt.Sprintf("last request was %s ago, minimum spacing is %s", gap.Round(time.Second), s.elig.MinRequestSpacing))
		}
	}

	active, err := s.store.ActiveRequestsByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("active requests for %s: %w", contentID, err)
	}
	for _, r := range active {
		if r.RequestorID == requestorID {
			deny(ReasonDuplicateRequest, "an active request for this content already exists")
			break
		}
	}

	return res, nil
}

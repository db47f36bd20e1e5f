// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the scoring service. All numeric
// thresholds used by the scoring pipeline live here and are loaded once at
// process start; components receive the relevant section by value.
type Config struct {
	Scoring     ScoringConfig     `koanf:"scoring"`
	Reputation  ReputationConfig  `koanf:"reputation"`
	Eligibility EligibilityConfig `koanf:"eligibility"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	Database    DatabaseConfig    `koanf:"database"`
	Events      EventsConfig      `koanf:"events"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ScoringConfig controls the matrix factorization engine and the status
// decision policy.
type ScoringConfig struct {
	// NumFactors is the latent factor dimension per user and note.
	// Default: 1.
	NumFactors int `koanf:"num_factors" validate:"min=1"`

	// BasePenalty is the L2 regularization strength applied to latent
	// factors. Intercepts are penalized at InterceptPenaltyMult times this
	// value; one-sided mass rating is cheaper to fake via bias than via a
	// correlated latent pattern, so intercepts are damped harder.
	// Default: 0.03.
	BasePenalty float64 `koanf:"base_penalty" validate:"gt=0"`

	// InterceptPenaltyMult scales BasePenalty for the global, user and
	// note intercept penalties. Default: 5.
	InterceptPenaltyMult float64 `koanf:"intercept_penalty_mult" validate:"gte=1"`

	// InitialLearningRate is the SGD step size used until the loss
	// stabilizes. Default: 0.2.
	InitialLearningRate float64 `koanf:"initial_learning_rate" validate:"gt=0"`

	// FinetuneRateScale multiplies InitialLearningRate for the fine-tuning
	// phase after stabilization. Default: 1.0.
	FinetuneRateScale float64 `koanf:"finetune_rate_scale" validate:"gt=0"`

	// ConvergenceEpsilon stops training once per-epoch loss improvement
	// drops below it. Default: 1e-7.
	ConvergenceEpsilon float64 `koanf:"convergence_epsilon" validate:"gt=0"`

	// MaxIterations caps training epochs. Hitting the cap without meeting
	// epsilon marks the result as not converged. Default: 1000.
	MaxIterations int `koanf:"max_iterations" validate:"min=1"`

	// Patience is the number of consecutive epochs without loss
	// improvement before training is abandoned. Default: 10.
	Patience int `koanf:"patience" validate:"min=1"`

	// GradientClip bounds the magnitude of every gradient step, keeping
	// sparse or adversarial input from diverging. Default: 1.0.
	GradientClip float64 `koanf:"gradient_clip" validate:"gt=0"`

	// Seed makes factor initialization and epoch shuffling deterministic:
	// identical ratings with a fixed seed produce identical output.
	// Default: 42.
	Seed int64 `koanf:"seed"`

	// MaxDaysForScoring excludes notes older than this from factorization
	// input, and freezes their status transitions. Default: 30 days.
	MaxDaysForScoring time.Duration `koanf:"max_days_for_scoring" validate:"gt=0"`

	// MinRatingsForStatus is the rating volume a note needs before it can
	// leave needs-more-ratings. Default: 5.
	MinRatingsForStatus int `koanf:"min_ratings_for_status" validate:"min=1"`

	// CRHThreshold is the factorization score at or above which a note
	// becomes Currently Rated Helpful. Default: 0.40.
	CRHThreshold float64 `koanf:"crh_threshold"`

	// NRHThreshold is the score at or below which a note becomes
	// Currently Rated Not Helpful. Default: -0.05.
	NRHThreshold float64 `koanf:"nrh_threshold"`
}

// ReputationConfig controls the requestor hit-rate model, tiering and the
// visibility threshold resolver.
type ReputationConfig struct {
	// WindowDays is the sliding window over which hit rates are computed.
	// Default: 30 days.
	WindowDays time.Duration `koanf:"window_days" validate:"gt=0"`

	// MinRequestAge excludes requests younger than this from the window;
	// counting unresolved requests would bias the rate toward failure.
	// Default: 24h.
	MinRequestAge time.Duration `koanf:"min_request_age" validate:"gte=0"`

	// HighTierHitRate / HighTierCRHNotes are the dual HIGH tier conditions.
	// Defaults: 0.08 and 5.
	HighTierHitRate  float64 `koanf:"high_tier_hit_rate" validate:"gte=0,lte=1"`
	HighTierCRHNotes int     `koanf:"high_tier_crh_notes" validate:"min=0"`

	// MediumTierHitRate / MediumTierCRHNotes are the MEDIUM tier conditions.
	// Defaults: 0.03 and 1.
	MediumTierHitRate  float64 `koanf:"medium_tier_hit_rate" validate:"gte=0,lte=1"`
	MediumTierCRHNotes int     `koanf:"medium_tier_crh_notes" validate:"min=0"`

	// Visibility thresholds: how many distinct requesters of a tier must
	// exist before pending requests surface. Defaults: 1 / 2 / 3.
	HighTierVisibility    int `koanf:"high_tier_visibility" validate:"min=1"`
	MediumTierVisibility  int `koanf:"medium_tier_visibility" validate:"min=1"`
	DefaultTierVisibility int `koanf:"default_tier_visibility" validate:"min=1"`

	// MetricsCacheTTL bounds how stale a cached RequestorMetrics snapshot
	// may get before recomputation. Default: 5m.
	MetricsCacheTTL time.Duration `koanf:"metrics_cache_ttl" validate:"gt=0"`

	// MetricsCacheSize caps the number of cached requestor snapshots.
	// Default: 10000.
	MetricsCacheSize int `koanf:"metrics_cache_size" validate:"min=1"`
}

// EligibilityConfig is the anti-gaming gate checked before a note request
// is accepted. All violations produce named reasons, never errors.
type EligibilityConfig struct {
	// MinAccountAge is the minimum platform account age. Default: 168h (7d).
	MinAccountAge time.Duration `koanf:"min_account_age" validate:"gte=0"`

	// MinMembershipAge is the minimum server-membership age. Default: 72h (3d).
	MinMembershipAge time.Duration `koanf:"min_membership_age" validate:"gte=0"`

	// MaxRequestsPerDay / MaxRequestsPerHour cap request volume. Defaults: 25 / 5.
	MaxRequestsPerDay  int `koanf:"max_requests_per_day" validate:"min=1"`
	MaxRequestsPerHour int `koanf:"max_requests_per_hour" validate:"min=1"`

	// MinRequestSpacing is the minimum gap between consecutive requests
	// from one user. Default: 5m.
	MinRequestSpacing time.Duration `koanf:"min_request_spacing" validate:"gte=0"`
}

// SchedulerConfig controls the periodic scoring run orchestration.
type SchedulerConfig struct {
	// Interval between scoring runs. Default: 1h.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// Cron optionally replaces the fixed interval with a cron expression
	// (e.g. "0 */6 * * *"). Empty disables cron triggering.
	Cron string `koanf:"cron"`

	// RunTimeout abandons a run that exceeds it; committed partial writes
	// stand, the next cycle recomputes. Default: 5m.
	RunTimeout time.Duration `koanf:"run_timeout" validate:"gt=0"`

	// HealthInterval is the store health-check sub-interval. Default: 5m.
	HealthInterval time.Duration `koanf:"health_interval" validate:"gt=0"`

	// BatchSize bounds how many notes are processed per batch. Default: 1000.
	BatchSize int `koanf:"batch_size" validate:"min=1"`

	// Workers is the parallel per-note worker count. 0 = runtime.NumCPU().
	Workers int `koanf:"workers" validate:"min=0"`

	// WriteRateLimit throttles batched status writes per second.
	// 0 = unlimited. Default: 0.
	WriteRateLimit int `koanf:"write_rate_limit" validate:"min=0"`
}

// DatabaseConfig configures the DuckDB-backed store adapter.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty runs in-memory (tests).
	Path string `koanf:"path"`

	// MaxMemory is the DuckDB memory limit, e.g. "2GB". Default: "1GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads for DuckDB. 0 = runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`
}

// EventsConfig configures the note status event publisher.
type EventsConfig struct {
	// Transport selects the publisher: "channel" (in-process Watermill
	// GoChannel, default) or "nats" (JetStream).
	Transport string `koanf:"transport" validate:"oneof=channel nats"`

	// Topic for status change events. Default: "notes.status".
	Topic string `koanf:"topic" validate:"required"`

	// URL of the NATS server, used when Transport is "nats".
	URL string `koanf:"url"`

	// MaxReconnects / ReconnectWait tune the NATS connection.
	MaxReconnects int           `koanf:"max_reconnects" validate:"min=0"`
	ReconnectWait time.Duration `koanf:"reconnect_wait" validate:"gte=0"`
}

// ServerConfig configures the operational HTTP server (health, metrics,
// scoring triggers). This is not the dashboard API, which lives elsewhere.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks tag constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Scoring.NRHThreshold >= c.Scoring.CRHThreshold {
		return fmt.Errorf("scoring: nrh_threshold (%v) must be below crh_threshold (%v)",
			c.Scoring.NRHThreshold, c.Scoring.CRHThreshold)
	}
	if c.Reputation.MediumTierHitRate > c.Reputation.HighTierHitRate {
		return fmt.Errorf("reputation: medium_tier_hit_rate (%v) exceeds high_tier_hit_rate (%v); tiers would not nest",
			c.Reputation.MediumTierHitRate, c.Reputation.HighTierHitRate)
	}
	if c.Reputation.MediumTierCRHNotes > c.Reputation.HighTierCRHNotes {
		return fmt.Errorf("reputation: medium_tier_crh_notes (%d) exceeds high_tier_crh_notes (%d); tiers would not nest",
			c.Reputation.MediumTierCRHNotes, c.Reputation.HighTierCRHNotes)
	}
	if c.Reputation.MinRequestAge >= c.Reputation.WindowDays {
		return fmt.Errorf("reputation: min_request_age (%v) must be inside window_days (%v)",
			c.Reputation.MinRequestAge, c.Reputation.WindowDays)
	}
	if c.Events.Transport == "nats" && c.Events.URL == "" {
		return fmt.Errorf("events: url is required when transport is nats")
	}
	return nil
}

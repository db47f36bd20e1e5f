// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/notescore/config.yaml",
	"/etc/notescore/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns a Config with every threshold at its documented default.
// These are applied first, then overridden by config file and env vars.
func Default() *Config {
	return &Config{
		Scoring: ScoringConfig{
			NumFactors:           1,
			BasePenalty:          0.03,
			InterceptPenaltyMult: 5,
			InitialLearningRate:  0.2,
			FinetuneRateScale:    1.0,
			ConvergenceEpsilon:   1e-7,
			MaxIterations:        1000,
			Patience:             10,
			GradientClip:         1.0,
			Seed:                 42,
			MaxDaysForScoring:    30 * 24 * time.Hour,
			MinRatingsForStatus:  5,
			CRHThreshold:         0.40,
			NRHThreshold:         -0.05,
		},
		Reputation: ReputationConfig{
			WindowDays:            30 * 24 * time.Hour,
			MinRequestAge:         24 * time.Hour,
			HighTierHitRate:       0.08,
			HighTierCRHNotes:      5,
			MediumTierHitRate:     0.03,
			MediumTierCRHNotes:    1,
			HighTierVisibility:    1,
			MediumTierVisibility:  2,
			DefaultTierVisibility: 3,
			MetricsCacheTTL:       5 * time.Minute,
			MetricsCacheSize:      10000,
		},
		Eligibility: EligibilityConfig{
			MinAccountAge:      7 * 24 * time.Hour,
			MinMembershipAge:   3 * 24 * time.Hour,
			MaxRequestsPerDay:  25,
			MaxRequestsPerHour: 5,
			MinRequestSpacing:  5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Interval:       time.Hour,
			Cron:           "",
			RunTimeout:     5 * time.Minute,
			HealthInterval: 5 * time.Minute,
			BatchSize:      1000,
			Workers:        0, // 0 = runtime.NumCPU()
			WriteRateLimit: 0, // unlimited
		},
		Database: DatabaseConfig{
			Path:      "/data/notescore.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Events: EventsConfig{
			Transport:     "channel",
			Topic:         "notes.status",
			URL:           "nats://127.0.0.1:4222",
			MaxReconnects: 60,
			ReconnectWait: 2 * time.Second,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8090,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: built-in documented defaults
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: highest priority
//
// Precedence: ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// NOTESCORE_SCORING_CRH_THRESHOLD -> scoring.crh_threshold
	envProvider := env.Provider("NOTESCORE_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file, env override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// The first underscore-delimited token selects the section; the rest of the
// name is the field.
//
//	NOTESCORE_SCORING_NUM_FACTORS   -> scoring.num_factors
//	NOTESCORE_SCHEDULER_BATCH_SIZE  -> scheduler.batch_size
//	NOTESCORE_DATABASE_PATH         -> database.path
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "NOTESCORE_"))

	sections := []string{
		"scoring", "reputation", "eligibility", "scheduler",
		"database", "events", "server", "logging",
	}
	for _, section := range sections {
		prefix := section + "_"
		if strings.HasPrefix(key, prefix) {
			return section + "." + strings.TrimPrefix(key, prefix)
		}
	}

	// Unknown prefix: ignore by mapping to a path no field uses.
	return ""
}

// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/logging"
)

// Sentinel errors returned by store lookups.
var (
	ErrNoteNotFound = errors.New("store: note not found")
	ErrUserNotFound = errors.New("store: user not found")
)

// DB wraps the DuckDB connection and provides the data access methods the
// scoring pipeline, reputation model and operational API consume.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// New opens (or creates) the database and initializes the schema. An empty
// Path opens an in-memory database, which tests rely on.
func New(cfg config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = "1GB"
	}

	connStr := ""
	if cfg.Path != "" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, numThreads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	// A single writer with a few readers is plenty for batch scoring;
	// DuckDB parallelizes inside queries, not across connections.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(0)

	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Store initialized")
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the store is reachable. The scheduler health-checks through
// this before every run.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Conn exposes the raw connection for tests.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// initSchema creates all tables if they do not exist.
func (db *DB) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			joined_server_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id VARCHAR PRIMARY KEY,
			content_id VARCHAR NOT NULL,
			author_id VARCHAR NOT NULL,
			content VARCHAR NOT NULL,
			classification VARCHAR NOT NULL,
			sources VARCHAR NOT NULL DEFAULT '[]',
			submitted_at TIMESTAMP NOT NULL,
			status VARCHAR NOT NULL DEFAULT 'pending',
			last_status_at TIMESTAMP NOT NULL,
			helpful_count INTEGER NOT NULL DEFAULT 0,
			not_helpful_count INTEGER NOT NULL DEFAULT 0,
			total_ratings INTEGER NOT NULL DEFAULT 0,
			helpfulness_ratio DOUBLE NOT NULL DEFAULT 0,
			visibility_score DOUBLE NOT NULL DEFAULT 0,
			is_visible BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			id VARCHAR PRIMARY KEY,
			note_id VARCHAR NOT NULL,
			rater_id VARCHAR NOT NULL,
			helpful BOOLEAN NOT NULL,
			reason VARCHAR,
			created_at TIMESTAMP NOT NULL,
			weight DOUBLE NOT NULL DEFAULT 1.0,
			UNIQUE (note_id, rater_id)
		)`,
		`CREATE TABLE IF NOT EXISTS requests (
			id VARCHAR PRIMARY KEY,
			content_id VARCHAR NOT NULL,
			requestor_id VARCHAR NOT NULL,
			reason VARCHAR,
			sources VARCHAR NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS request_aggregations (
			content_id VARCHAR PRIMARY KEY,
			total_requests INTEGER NOT NULL DEFAULT 0,
			unique_requestors INTEGER NOT NULL DEFAULT 0,
			first_request_at TIMESTAMP,
			last_request_at TIMESTAMP,
			threshold_met BOOLEAN NOT NULL DEFAULT FALSE,
			threshold_met_at TIMESTAMP,
			contributors_notified BOOLEAN NOT NULL DEFAULT FALSE,
			notified_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS ix_notes_content ON notes (content_id)`,
		`CREATE INDEX IF NOT EXISTS ix_notes_status ON notes (status)`,
		`CREATE INDEX IF NOT EXISTS ix_ratings_note ON ratings (note_id)`,
		`CREATE INDEX IF NOT EXISTS ix_requests_content ON requests (content_id)`,
		`CREATE INDEX IF NOT EXISTS ix_requests_requestor ON requests (requestor_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// observe records duration/error metrics for a store call. Use with a named
// error return:
//
//	defer observe("list_notes", time.Now(), &err)
func observe(op string, start time.Time, errp *error) {
	recordQuery(op, time.Since(start), *errp)
}

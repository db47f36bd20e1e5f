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
	"time"

	"github.com/goccy/go-json"

	"github.com/opennotes/notescore/internal/models"
)

// UpsertUser records (or refreshes) a user's account and server-membership
// timestamps. The eligibility checks read these back.
func (db *DB) UpsertUser(ctx context.Context, id string, createdAt, joinedServerAt time.Time) (err error) {
	defer observe("upsert_user", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO users (id, created_at, joined_server_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			joined_server_at = excluded.joined_server_at`,
		id, createdAt, joinedServerAt)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", id, err)
	}
	return nil
}

// GetUserTimes returns a user's account creation and server join times.
func (db *DB) GetUserTimes(ctx context.Context, id string) (createdAt, joinedServerAt time.Time, err error) {
	defer observe("get_user_times", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx,
		`SELECT created_at, joined_server_at FROM users WHERE id = ?`, id)
	err = row.Scan(&createdAt, &joinedServerAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, time.Time{}, ErrUserNotFound
	}
	return createdAt, joinedServerAt, err
}

// InsertRequest stores one note request. Uniqueness of the active
// (content, requestor) pair is the caller's concern; eligibility checks
// run before this.
func (db *DB) InsertRequest(ctx context.Context, r *models.NoteRequest) (err error) {
	defer observe("insert_request", time.Now(), &err)

	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO requests (id, content_id, requestor_id, reason, sources, created_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ContentID, r.RequestorID, nullable(r.Reason), string(sources), r.CreatedAt, r.IsActive)
	if err != nil {
		return fmt.Errorf("insert request %s: %w", r.ID, err)
	}
	return nil
}

// ListRequestsByRequestor returns a requestor's requests created in the
// closed interval [from, to]: a request aged exactly the minimum request
// age counts. The hit-rate computation feeds on this window. Inactive
// requests are included: fulfillment deactivates a request, and a
// fulfilled request is exactly the success the hit rate measures.
func (db *DB) ListRequestsByRequestor(ctx context.Context, requestorID string, from, to time.Time) (requests []models.NoteRequest, err error) {
	defer observe("list_requests_by_requestor", time.Now(), &err)
	return db.queryRequests(ctx, `
		SELECT id, content_id, requestor_id, COALESCE(reason, ''), sources, created_at, is_active
		FROM requests
		WHERE requestor_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at`, requestorID, from, to)
}

// ActiveRequestsByContent returns all active requests for one content ID.
// The visibility resolver counts these against the requestor's threshold.
func (db *DB) ActiveRequestsByContent(ctx context.Context, contentID string) (requests []models.NoteRequest, err error) {
	defer observe("active_requests_by_content", time.Now(), &err)
	return db.queryRequests(ctx, `
		SELECT id, content_id, requestor_id, COALESCE(reason, ''), sources, created_at, is_active
		FROM requests
		WHERE content_id = ? AND is_active
		ORDER BY created_at`, contentID)
}

// ActiveRequestorIDs returns the distinct requestors with active requests
// created at or after since. The scheduler refreshes metrics for exactly
// this set each run.
func (db *DB) ActiveRequestorIDs(ctx context.Context, since time.Time) (ids []string, err error) {
	defer observe("active_requestor_ids", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT requestor_id FROM requests
		WHERE is_active AND created_at >= ?
		ORDER BY requestor_id`, since)
	if err != nil {
		return nil, fmt.Errorf("active requestor ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountRequestsSince returns how many requests (active or not) the
// requestor made at or after since. Rate limits count withdrawn requests
// too, so deactivation cannot reset them.
func (db *DB) CountRequestsSince(ctx context.Context, requestorID string, since time.Time) (count int, err error) {
	defer observe("count_requests_since", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests
		WHERE requestor_id = ? AND created_at >= ?`, requestorID, since)
	err = row.Scan(&count)
	return count, err
}

// LastRequestAt returns the time of the requestor's most recent request,
// or nil when they have none.
func (db *DB) LastRequestAt(ctx context.Context, requestorID string) (at *time.Time, err error) {
	defer observe("last_request_at", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM requests WHERE requestor_id = ?`, requestorID)
	var last sql.NullTime
	if err = row.Scan(&last); err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// DeactivateRequests marks all active requests for a content ID inactive.
// Called when the content gains a CRH note: the requests are fulfilled.
func (db *DB) DeactivateRequests(ctx context.Context, contentID string) (err error) {
	defer observe("deactivate_requests", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx,
		`UPDATE requests SET is_active = FALSE WHERE content_id = ? AND is_active`, contentID)
	if err != nil {
		return fmt.Errorf("deactivate requests for %s: %w", contentID, err)
	}
	return nil
}

// RefreshRequestAggregations recomputes the per-content request rollups
// from the raw requests table. Threshold and notification flags are
// preserved; counts and timestamps are always rebuilt.
func (db *DB) RefreshRequestAggregations(ctx context.Context) (err error) {
	defer observe("refresh_request_aggregations", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO request_aggregations (content_id, total_requests, unique_requestors,
			first_request_at, last_request_at)
		SELECT content_id, COUNT(*), COUNT(DISTINCT requestor_id),
			MIN(created_at), MAX(created_at)
		FROM requests
		WHERE is_active
		GROUP BY content_id
		ON CONFLICT (content_id) DO UPDATE SET
			total_requests = excluded.total_requests,
			unique_requestors = excluded.unique_requestors,
			first_request_at = excluded.first_request_at,
			last_request_at = excluded.last_request_at`)
	if err != nil {
		return fmt.Errorf("refresh request aggregations: %w", err)
	}
	return nil
}

// GetRequestAggregation returns the rollup for one content ID, or nil when
// no requests exist for it.
func (db *DB) GetRequestAggregation(ctx context.Context, contentID string) (agg *models.RequestAggregation, err error) {
	defer observe("get_request_aggregation", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx, `
		SELECT content_id, total_requests, unique_requestors, first_request_at,
			last_request_at, threshold_met, threshold_met_at,
			contributors_notified, notified_at
		FROM request_aggregations WHERE content_id = ?`, contentID)

	var a models.RequestAggregation
	var first, last, metAt, notifiedAt sql.NullTime
	err = row.Scan(&a.ContentID, &a.TotalRequests, &a.UniqueRequestors,
		&first, &last, &a.ThresholdMet, &metAt, &a.ContributorsNotified, &notifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.FirstRequestAt = timePtr(first)
	a.LastRequestAt = timePtr(last)
	a.ThresholdMetAt = timePtr(metAt)
	a.NotifiedAt = timePtr(notifiedAt)
	return &a, nil
}

// MarkThresholdMet latches the threshold flag for a content ID. The flag
// never clears once set; re-marking is a no-op.
func (db *DB) MarkThresholdMet(ctx context.Context, contentID string, at time.Time) (err error) {
	defer observe("mark_threshold_met", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx, `
		UPDATE request_aggregations
		SET threshold_met = TRUE, threshold_met_at = ?
		WHERE content_id = ? AND NOT threshold_met`, at, contentID)
	if err != nil {
		return fmt.Errorf("mark threshold met for %s: %w", contentID, err)
	}
	return nil
}

func (db *DB) queryRequests(ctx context.Context, query string, args ...any) ([]models.NoteRequest, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var requests []models.NoteRequest
	for rows.Next() {
		var r models.NoteRequest
		var sources string
		if err := rows.Scan(&r.ID, &r.ContentID, &r.RequestorID, &r.Reason,
			&sources, &r.CreatedAt, &r.IsActive); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal sources for request %s: %w", r.ID, err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time
	return &tt
}

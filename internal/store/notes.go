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

// NoteScoringUpdate is one note's batched write-back from a scoring run:
// refreshed statistics plus, when StatusChanged, the new status.
type NoteScoringUpdate struct {
	NoteID           string
	Status           models.NoteStatus
	StatusChanged    bool
	HelpfulCount     int
	NotHelpfulCount  int
	TotalRatings     int
	HelpfulnessRatio float64
	VisibilityScore  float64
	IsVisible        bool
	At               time.Time
}

// InsertNote stores a freshly submitted note. Called by the ingestion layer
// and by tests; the scoring pipeline never creates notes.
func (db *DB) InsertNote(ctx context.Context, n *models.Note) (err error) {
	defer observe("insert_note", time.Now(), &err)

	sources, err := json.Marshal(n.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	status := n.Status
	if status == "" {
		status = models.StatusPending
	}
	lastStatusAt := n.LastStatusAt
	if lastStatusAt.IsZero() {
		lastStatusAt = n.SubmittedAt
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO notes (id, content_id, author_id, content, classification,
			sources, submitted_at, status, last_status_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ContentID, n.AuthorID, n.Content, n.Classification,
		string(sources), n.SubmittedAt, string(status), lastStatusAt)
	if err != nil {
		return fmt.Errorf("insert note %s: %w", n.ID, err)
	}
	return nil
}

// InsertRating stores one rating. The (note, rater) pair is unique; a second
// rating from the same rater is rejected by the schema.
func (db *DB) InsertRating(ctx context.Context, r *models.Rating) (err error) {
	defer observe("insert_rating", time.Now(), &err)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO ratings (id, note_id, rater_id, helpful, reason, created_at, weight)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.NoteID, r.RaterID, r.Helpful, nullable(r.Reason), r.CreatedAt, r.EffectiveWeight())
	if err != nil {
		return fmt.Errorf("insert rating %s: %w", r.ID, err)
	}
	return nil
}

// GetNote fetches a single note by ID.
func (db *DB) GetNote(ctx context.Context, id string) (note *models.Note, err error) {
	defer observe("get_note", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, content_id, author_id, content, classification, sources,
			submitted_at, status, last_status_at, helpful_count, not_helpful_count,
			total_ratings, helpfulness_ratio, visibility_score, is_visible
		FROM notes WHERE id = ?`, id)

	note, err = scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	return note, err
}

// ListNotes pages through all notes in stable ID order. The scheduler walks
// this in bounded batches.
func (db *DB) ListNotes(ctx context.Context, limit, offset int) (notes []models.Note, err error) {
	defer observe("list_notes", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, content_id, author_id, content, classification, sources,
			submitted_at, status, last_status_at, helpful_count, not_helpful_count,
			total_ratings, helpfulness_ratio, visibility_score, is_visible
		FROM notes ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, scanErr := scanNote(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// ListRatingsByNote returns a note's full rating set.
func (db *DB) ListRatingsByNote(ctx context.Context, noteID string) (ratings []models.Rating, err error) {
	defer observe("list_ratings_by_note", time.Now(), &err)
	return db.queryRatings(ctx, `
		SELECT id, note_id, rater_id, helpful, COALESCE(reason, ''), created_at, weight
		FROM ratings WHERE note_id = ? ORDER BY created_at`, noteID)
}

// ListRatingsInWindow returns all ratings on notes submitted at or after the
// cutoff: the factorization input matrix.
func (db *DB) ListRatingsInWindow(ctx context.Context, cutoff time.Time) (ratings []models.Rating, err error) {
	defer observe("list_ratings_in_window", time.Now(), &err)
	return db.queryRatings(ctx, `
		SELECT r.id, r.note_id, r.rater_id, r.helpful, COALESCE(r.reason, ''), r.created_at, r.weight
		FROM ratings r
		JOIN notes n ON n.id = r.note_id
		WHERE n.submitted_at >= ?
		ORDER BY r.created_at`, cutoff)
}

// ApplyScoringUpdates writes a batch of scoring results in one transaction.
// last_status_at moves only on actual transitions.
func (db *DB) ApplyScoringUpdates(ctx context.Context, updates []NoteScoringUpdate) (err error) {
	defer observe("apply_scoring_updates", time.Now(), &err)

	if len(updates) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scoring update tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE notes SET
			status = ?,
			last_status_at = CASE WHEN ? THEN ? ELSE last_status_at END,
			helpful_count = ?,
			not_helpful_count = ?,
			total_ratings = ?,
			helpfulness_ratio = ?,
			visibility_score = ?,
			is_visible = ?
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare scoring update: %w", err)
	}
	defer stmt.Close()

	for i := range updates {
		u := &updates[i]
		if _, err = stmt.ExecContext(ctx,
			string(u.Status), u.StatusChanged, u.At,
			u.HelpfulCount, u.NotHelpfulCount, u.TotalRatings,
			u.HelpfulnessRatio, u.VisibilityScore, u.IsVisible,
			u.NoteID); err != nil {
			return fmt.Errorf("update note %s: %w", u.NoteID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit scoring updates: %w", err)
	}
	return nil
}

// CRHNoteCounts returns, per content ID, how many CRH notes it carries.
// Contents without CRH notes are absent from the map.
func (db *DB) CRHNoteCounts(ctx context.Context, contentIDs []string) (counts map[string]int, err error) {
	defer observe("crh_note_counts", time.Now(), &err)

	counts = make(map[string]int, len(contentIDs))
	if len(contentIDs) == 0 {
		return counts, nil
	}

	query, args := inClause(`
		SELECT content_id, COUNT(*) FROM notes
		WHERE status = 'crh' AND content_id IN (%s)
		GROUP BY content_id`, contentIDs)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("crh note counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count int
		if err = rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// queryRatings runs a rating query and scans the result set.
func (db *DB) queryRatings(ctx context.Context, query string, args ...any) ([]models.Rating, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.ID, &r.NoteID, &r.RaterID, &r.Helpful, &r.Reason, &r.CreatedAt, &r.Weight); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.Note, error) {
	var n models.Note
	var sources string
	var status string
	if err := row.Scan(&n.ID, &n.ContentID, &n.AuthorID, &n.Content, &n.Classification,
		&sources, &n.SubmittedAt, &status, &n.LastStatusAt, &n.HelpfulCount,
		&n.NotHelpfulCount, &n.TotalRatings, &n.HelpfulnessRatio,
		&n.VisibilityScore, &n.IsVisible); err != nil {
		return nil, err
	}
	n.Status = models.NoteStatus(status)
	if err := json.Unmarshal([]byte(sources), &n.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources for note %s: %w", n.ID, err)
	}
	return &n, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// inClause expands an IN (%s) placeholder list for the given IDs.
func inClause(query string, ids []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}
	return fmt.Sprintf(query, placeholders), args
}

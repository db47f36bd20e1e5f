// NoteScore - Community Note Trust Scoring and Requestor Reputation
// Copyright 2026 OpenNotes Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opennotes/notescore

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennotes/notescore/internal/config"
	"github.com/opennotes/notescore/internal/events"
	"github.com/opennotes/notescore/internal/models"
	"github.com/opennotes/notescore/internal/store"
)

type fakeStore struct {
	mu sync.Mutex

	notes    []models.Note
	ratings  map[string][]models.Rating // by note ID
	requests map[string][]models.NoteRequest

	failRatingsFor string
	pingErr        error

	runStarted chan struct{} // signaled when a run enters the pipeline
	runRelease chan struct{} // the run blocks here until closed

	updates     []store.NoteScoringUpdate
	deactivated []string
	refreshed   int
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) ListRatingsInWindow(context.Context, time.Time) ([]models.Rating, error) {
	if f.runStarted != nil {
		f.runStarted <- struct{}{}
	}
	if f.runRelease != nil {
		<-f.runRelease
	}
	var all []models.Rating
	for _, rs := range f.ratings {
		all = append(all, rs...)
	}
	return all, nil
}

func (f *fakeStore) ListNotes(_ context.Context, limit, offset int) ([]models.Note, error) {
	if offset >= len(f.notes) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.notes) {
		end = len(f.notes)
	}
	return f.notes[offset:end], nil
}

func (f *fakeStore) ListRatingsByNote(_ context.Context, noteID string) ([]models.Rating, error) {
	if noteID == f.failRatingsFor {
		return nil, fmt.Errorf("synthetic failure for %s", noteID)
	}
	return f.ratings[noteID], nil
}

func (f *fakeStore) ApplyScoringUpdates(_ context.Context, updates []store.NoteScoringUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updates...)
	return nil
}

func (f *fakeStore) ActiveRequestsByContent(_ context.Context, contentID string) ([]models.NoteRequest, error) {
	return f.requests[contentID], nil
}

func (f *fakeStore) DeactivateRequests(_ context.Context, contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, contentID)
	return nil
}

func (f *fakeStore) RefreshRequestAggregations(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return nil
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeInvalidator) Invalidate(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.NoteStatusEvent
	err    error
}

func (f *fakePublisher) PublishStatusEvent(_ context.Context, e *events.NoteStatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func note(id, content string, status models.NoteStatus, age time.Duration) models.Note {
	now := time.Now().UTC()
	return models.Note{
		ID: id, ContentID: content, AuthorID: "author",
		Content: "context", Classification: "misinformed_or_potentially_misleading",
		SubmittedAt: now.Add(-age), Status: status, LastStatusAt: now.Add(-age),
	}
}

func ratingsFor(noteID string, helpful, notHelpful int) []models.Rating {
	var out []models.Rating
	for i := 0; i < helpful+notHelpful; i++ {
		out = append(out, models.Rating{
			ID:      fmt.Sprintf("%s-r%d", noteID, i),
			NoteID:  noteID,
			RaterID: "rater-shared", // one rater keeps factorization skipped
			Helpful: i < helpful,
			Weight:  1.0,
		})
	}
	return out
}

func newTestScheduler(f *fakeStore) (*Scheduler, *fakeInvalidator, *fakePublisher) {
	inv := &fakeInvalidator{}
	pub := &fakePublisher{}
	return New(f, inv, pub, *config.Default()), inv, pub
}

func TestRunScoringPipeline(t *testing.T) {
	f := &fakeStore{
		notes: []models.Note{
			note("note-helpful", "c-1", models.StatusPending, 48*time.Hour),
			note("note-thin", "c-2", models.StatusPending, 48*time.Hour),
		},
		ratings: map[string][]models.Rating{
			"note-helpful": ratingsFor("note-helpful", 4, 1), // ratio 0.8 -> fallback score 0.6
			"note-thin":    ratingsFor("note-thin", 1, 0),
		},
		requests: map[string][]models.NoteRequest{
			"c-1": {
				{ID: "q-1", ContentID: "c-1", RequestorID: "alice", IsActive: true},
				{ID: "q-2", ContentID: "c-1", RequestorID: "bob", IsActive: true},
			},
		},
	}
	s, inv, pub := newTestScheduler(f)

	scored, err := s.runScoring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, scored)

	byID := make(map[string]store.NoteScoringUpdate)
	for _, u := range f.updates {
		byID[u.NoteID] = u
	}

	helpful := byID["note-helpful"]
	assert.Equal(t, models.StatusCRH, helpful.Status)
	assert.True(t, helpful.StatusChanged)
	assert.True(t, helpful.IsVisible)
	assert.InDelta(t, 0.8, helpful.HelpfulnessRatio, 1e-9)

	thin := byID["note-thin"]
	assert.Equal(t, models.StatusNeedsMoreRatings, thin.Status)
	assert.True(t, thin.StatusChanged)
	assert.False(t, thin.IsVisible)

	// CRH settlement: the content's requestors get invalidated, the
	// requests fulfilled, aggregations refreshed.
	assert.ElementsMatch(t, []string{"alice", "bob"}, inv.ids)
	assert.Equal(t, []string{"c-1"}, f.deactivated)
	assert.Equal(t, 1, f.refreshed)

	// One event per transition.
	require.Len(t, pub.events, 2)
	for _, e := range pub.events {
		assert.Equal(t, models.StatusPending, e.From)
	}
}

func TestRunScoringIsolatesItemFailures(t *testing.T) {
	f := &fakeStore{
		notes: []models.Note{
			note("good", "c-1", models.StatusPending, 48*time.Hour),
			note("bad", "c-2", models.StatusPending, 48*time.Hour),
		},
		ratings: map[string][]models.Rating{
			"good": ratingsFor("good", 5, 0),
		},
		failRatingsFor: "bad",
	}
	s, _, _ := newTestScheduler(f)

	scored, err := s.runScoring(context.Background())
	require.NoError(t, err, "a single bad note must not fail the run")
	assert.Equal(t, 1, scored)
	require.Len(t, f.updates, 1)
	assert.Equal(t, "good", f.updates[0].NoteID)
}

func TestRunScoringIdempotent(t *testing.T) {
	f := &fakeStore{
		notes: []models.Note{note("n-1", "c-1", models.StatusCRH, 48*time.Hour)},
		ratings: map[string][]models.Rating{
			"n-1": ratingsFor("n-1", 4, 1),
		},
	}
	s, _, pub := newTestScheduler(f)

	_, err := s.runScoring(context.Background())
	require.NoError(t, err)

	// Status already crh and the signal says crh: no transition, no event.
	require.Len(t, f.updates, 1)
	assert.False(t, f.updates[0].StatusChanged)
	assert.Empty(t, pub.events)
}

func TestExecuteSkipsOverlappingRun(t *testing.T) {
	f := &fakeStore{}
	s, _, _ := newTestScheduler(f)

	s.runMu.Lock()
	defer s.runMu.Unlock()

	done := make(chan error, 1)
	s.execute(context.Background(), done)
	assert.ErrorIs(t, <-done, ErrRunInProgress)
}

func TestExecuteSkipsUnhealthyStore(t *testing.T) {
	f := &fakeStore{pingErr: errors.New("store down")}
	s, _, _ := newTestScheduler(f)

	done := make(chan error, 1)
	s.execute(context.Background(), done)
	require.Error(t, <-done)

	st := s.Stats()
	assert.Zero(t, st.RunCount, "a skipped run is not a run")
	assert.Contains(t, st.LastError, "store down")
}

func TestTriggerRejectedMidRun(t *testing.T) {
	f := &fakeStore{
		notes:      []models.Note{note("n-1", "c-1", models.StatusPending, 48*time.Hour)},
		ratings:    map[string][]models.Rating{"n-1": ratingsFor("n-1", 5, 0)},
		runStarted: make(chan struct{}),
		runRelease: make(chan struct{}),
	}
	s, _, _ := newTestScheduler(f)
	s.cfg.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- s.Serve(ctx) }()

	require.NoError(t, s.Trigger())
	<-f.runStarted // first run is now inside the pipeline

	// A trigger landing mid-run is rejected, never queued behind the run.
	assert.ErrorIs(t, s.Trigger(), ErrRunInProgress)

	runCtx, runCancel := context.WithTimeout(ctx, time.Second)
	defer runCancel()
	assert.ErrorIs(t, s.RunNow(runCtx), ErrRunInProgress)

	close(f.runRelease)
	require.Eventually(t, func() bool {
		st := s.Stats()
		return !st.IsRunning && st.RunCount == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), s.Stats().RunCount, "rejected triggers must not produce a second run")

	cancel()
	assert.ErrorIs(t, <-serveDone, context.Canceled)
}

func TestRunNowThroughServe(t *testing.T) {
	f := &fakeStore{
		notes:   []models.Note{note("n-1", "c-1", models.StatusPending, 48*time.Hour)},
		ratings: map[string][]models.Rating{"n-1": ratingsFor("n-1", 5, 0)},
	}
	s, _, _ := newTestScheduler(f)
	s.cfg.Interval = time.Hour // keep the ticker out of the test

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- s.Serve(ctx) }()

	runCtx, runCancel := context.WithTimeout(ctx, 10*time.Second)
	defer runCancel()
	require.NoError(t, s.RunNow(runCtx))

	st := s.Stats()
	assert.Equal(t, int64(1), st.RunCount)
	assert.Equal(t, 1, st.LastNotes)
	assert.False(t, st.IsRunning)
	assert.Empty(t, st.LastError)

	cancel()
	assert.ErrorIs(t, <-serveDone, context.Canceled)
}

func TestStatsReflectsFailedRun(t *testing.T) {
	f := &fakeStore{
		notes:   []models.Note{note("n-1", "c-1", models.StatusPending, 48*time.Hour)},
		ratings: map[string][]models.Rating{"n-1": ratingsFor("n-1", 4, 1)},
	}
	s, _, pub := newTestScheduler(f)
	pub.err = errors.New("broker down")

	done := make(chan error, 1)
	s.execute(context.Background(), done)

	// Publish failures are best effort and do not fail the run.
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), s.Stats().RunCount)
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu       sync.Mutex
	calls    map[string]int
	failures int
	err      error
	done     chan string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{calls: make(map[string]int), done: make(chan string, 16)}
}

func (q *fakeQueue) PromoteAll(_ context.Context, eventID string) ([]model.WaitlistEntry, error) {
	q.mu.Lock()
	q.calls[eventID]++
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return nil, q.err
	}
	q.mu.Unlock()
	q.done <- eventID
	return []model.WaitlistEntry{{EventID: eventID, Status: model.WaitlistInvited}}, nil
}

func (q *fakeQueue) callCount(eventID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[eventID]
}

func TestPromoter_ScheduleDeduplicatesAndDropsWhenFull(t *testing.T) {
	p := NewPromoter(newFakeQueue(), logger.Discard(), 2, 1)

	assert.True(t, p.Schedule("a"))
	assert.True(t, p.Schedule("a"))
	assert.True(t, p.Schedule("b"))
	assert.False(t, p.Schedule("c"))
	assert.Len(t, p.jobs, 2)
}

func TestPromoter_RunRetriesUnavailable(t *testing.T) {
	q := newFakeQueue()
	q.failures = 2
	q.err = apperrors.Unavailable(errors.New("db down"))

	p := NewPromoter(q, logger.Discard(), 4, 5)
	p.baseDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.True(t, p.Schedule("ev-1"))
	select {
	case id := <-q.done:
		assert.Equal(t, "ev-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("promotion did not complete")
	}
	assert.Equal(t, 3, q.callCount("ev-1"))
}

func TestPromoter_PermanentErrorNotRetried(t *testing.T) {
	q := newFakeQueue()
	q.failures = 1
	q.err = apperrors.ErrEventNotFound

	p := NewPromoter(q, logger.Discard(), 4, 5)
	p.baseDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.True(t, p.Schedule("ev-1"))
	require.True(t, p.Schedule("ev-2"))
	select {
	case id := <-q.done:
		assert.Equal(t, "ev-2", id)
	case <-time.After(2 * time.Second):
		t.Fatal("promotion did not complete")
	}
	assert.Equal(t, 1, q.callCount("ev-1"))
}

func TestPromoter_RunStopsOnCancel(t *testing.T) {
	p := NewPromoter(newFakeQueue(), logger.Discard(), 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx))
}

type fakeExpirer struct {
	n     int
	err   error
	limit int
}

func (e *fakeExpirer) ExpireOverdue(_ context.Context, limit int) (int, error) {
	e.limit = limit
	return e.n, e.err
}

type fakeFinder struct {
	ids []string
	err error
}

func (f *fakeFinder) EventsAwaitingPromotion(context.Context, int) ([]string, error) {
	return f.ids, f.err
}

type recordingScheduler struct {
	ids []string
}

func (s *recordingScheduler) Schedule(eventID string) bool {
	s.ids = append(s.ids, eventID)
	return true
}

func TestSweeper_Sweep(t *testing.T) {
	exp := &fakeExpirer{n: 3}
	sched := &recordingScheduler{}
	s := NewSweeper(exp, &fakeFinder{ids: []string{"a", "b"}}, sched, logger.Discard(), time.Minute, 50)

	s.Sweep(context.Background())

	assert.Equal(t, 50, exp.limit)
	assert.Equal(t, []string{"a", "b"}, sched.ids)
}

func TestSweeper_ExpiryFailureStillSchedules(t *testing.T) {
	sched := &recordingScheduler{}
	s := NewSweeper(&fakeExpirer{err: errors.New("boom")}, &fakeFinder{ids: []string{"a"}}, sched, logger.Discard(), time.Minute, 10)

	s.Sweep(context.Background())

	assert.Equal(t, []string{"a"}, sched.ids)
}

func TestSweeper_FinderFailure(t *testing.T) {
	sched := &recordingScheduler{}
	s := NewSweeper(&fakeExpirer{}, &fakeFinder{err: errors.New("boom")}, sched, logger.Discard(), time.Minute, 10)

	s.Sweep(context.Background())

	assert.Empty(t, sched.ids)
}

type fakeLapser struct {
	ids   []string
	err   error
	ttl   time.Duration
	calls int
}

func (l *fakeLapser) LapseOffers(_ context.Context, ttl time.Duration, _ int) ([]string, error) {
	l.calls++
	l.ttl = ttl
	return l.ids, l.err
}

func TestSweeper_LapsedOffersScheduled(t *testing.T) {
	lapser := &fakeLapser{ids: []string{"c"}}
	sched := &recordingScheduler{}
	s := NewSweeper(&fakeExpirer{}, &fakeFinder{ids: []string{"a"}}, sched, logger.Discard(), time.Minute, 10).
		WithOfferLapse(lapser, 48*time.Hour)

	s.Sweep(context.Background())

	assert.Equal(t, 48*time.Hour, lapser.ttl)
	assert.Equal(t, []string{"c", "a"}, sched.ids)
}

func TestSweeper_OfferLapseDisabledByZeroTTL(t *testing.T) {
	lapser := &fakeLapser{ids: []string{"c"}}
	sched := &recordingScheduler{}
	s := NewSweeper(&fakeExpirer{}, &fakeFinder{}, sched, logger.Discard(), time.Minute, 10).
		WithOfferLapse(lapser, 0)

	s.Sweep(context.Background())

	assert.Zero(t, lapser.calls)
	assert.Empty(t, sched.ids)
}

package admission_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/admission"
	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type fixture struct {
	store  *memstore.Store
	clock  *fakeClock
	notes  *recordingNotifier
	gate   *admission.CapacityGate
	queue  *admission.WaitlistQueue
	ledger *admission.InvitationLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memstore.New(),
		clock: &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		notes: &recordingNotifier{},
	}
	deps := admission.Deps{
		Store:    f.store,
		Clock:    f.clock,
		Notifier: f.notes,
		Log:      logger.Discard(),
		Retry:    admission.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}
	f.gate = admission.NewCapacityGate(deps, nil)
	f.queue = admission.NewWaitlistQueue(deps, f.gate)
	f.ledger = admission.NewInvitationLedger(deps, f.gate, f.queue, 24*time.Hour)
	return f
}

func capacity(n int) *int { return &n }

func (f *fixture) newEvent(t *testing.T, capacity *int) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, f.store.CreateEvent(context.Background(), &model.Event{
		ID:        id,
		Name:      "Meetup",
		Capacity:  capacity,
		CreatedAt: f.clock.Now(),
	}))
	return id
}

func (f *fixture) event(t *testing.T, id string) *model.Event {
	t.Helper()
	e, err := f.store.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) confirmed(t *testing.T, eventID string) []model.MembershipRecord {
	t.Helper()
	all, err := f.store.ListMemberships(context.Background(), eventID)
	require.NoError(t, err)
	var out []model.MembershipRecord
	for _, m := range all {
		if m.Status == model.MembershipConfirmed {
			out = append(out, m)
		}
	}
	return out
}

func (f *fixture) entry(t *testing.T, eventID, email string) model.WaitlistEntry {
	t.Helper()
	all, err := f.store.ListWaitlist(context.Background(), eventID)
	require.NoError(t, err)
	var found *model.WaitlistEntry
	for i := range all {
		if all[i].InviteeEmail == email {
			found = &all[i]
		}
	}
	require.NotNil(t, found, "no waitlist entry for %s", email)
	return *found
}

// requireContiguous asserts that active positions are exactly 1..N.
func (f *fixture) requireContiguous(t *testing.T, eventID string) int {
	t.Helper()
	all, err := f.store.ListWaitlist(context.Background(), eventID)
	require.NoError(t, err)
	var positions []int
	for _, e := range all {
		if e.Status.Active() {
			positions = append(positions, e.Position)
		}
	}
	sort.Ints(positions)
	for i, p := range positions {
		require.Equal(t, i+1, p, "positions %v are not contiguous", positions)
	}
	return len(positions)
}

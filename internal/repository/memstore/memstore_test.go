package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, capacity int) (*Store, string) {
	t.Helper()
	s := New()
	c := capacity
	require.NoError(t, s.CreateEvent(context.Background(), &model.Event{ID: "ev-1", Name: "Launch", Capacity: &c}))
	return s, "ev-1"
}

func TestInEvent_RollsBackOnError(t *testing.T) {
	s, id := seed(t, 2)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InEvent(ctx, id, func(tx repository.Tx) error {
		ok, err := tx.TryIncrementAdmitted(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.InsertMembership(ctx, &model.MembershipRecord{
			ID: "m-1", EventID: id, InviteeEmail: "a@example.com", Status: model.MembershipConfirmed,
		}))
		require.NoError(t, tx.InsertEntry(ctx, &model.WaitlistEntry{
			ID: "w-1", EventID: id, InviteeEmail: "b@example.com", Position: 1, Status: model.WaitlistWaiting,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	ev, err := s.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, ev.AdmittedCount)

	members, err := s.ListMemberships(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, members)

	entries, err := s.ListWaitlist(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInEvent_CommitFaultRollsBack(t *testing.T) {
	s, id := seed(t, 1)
	ctx := context.Background()
	s.SetFault(func(op string) error {
		if op == "commit" {
			return repository.ErrTransient
		}
		return nil
	})

	err := s.InEvent(ctx, id, func(tx repository.Tx) error {
		_, err := tx.TryIncrementAdmitted(ctx)
		return err
	})
	require.ErrorIs(t, err, repository.ErrTransient)

	s.SetFault(nil)
	ev, err := s.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, ev.AdmittedCount)
}

func TestInEvent_UnknownEvent(t *testing.T) {
	s := New()
	err := s.InEvent(context.Background(), "nope", func(repository.Tx) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTryIncrementAdmitted_StopsAtCapacity(t *testing.T) {
	s, id := seed(t, 1)
	ctx := context.Background()

	var results []bool
	for i := 0; i < 2; i++ {
		require.NoError(t, s.InEvent(ctx, id, func(tx repository.Tx) error {
			ok, err := tx.TryIncrementAdmitted(ctx)
			results = append(results, ok)
			return err
		}))
	}
	assert.Equal(t, []bool{true, false}, results)
}

func TestUniqueConstraints(t *testing.T) {
	s, id := seed(t, 5)
	ctx := context.Background()

	err := s.InEvent(ctx, id, func(tx repository.Tx) error {
		require.NoError(t, tx.InsertMembership(ctx, &model.MembershipRecord{
			ID: "m-1", EventID: id, InviteeEmail: "a@example.com", Status: model.MembershipConfirmed,
		}))
		err := tx.InsertMembership(ctx, &model.MembershipRecord{
			ID: "m-2", EventID: id, InviteeEmail: "a@example.com", Status: model.MembershipConfirmed,
		})
		assert.ErrorIs(t, err, repository.ErrConflict)

		require.NoError(t, tx.InsertInvitation(ctx, &model.Invitation{
			ID: "i-1", EventID: id, InviteeEmail: "b@example.com", Token: "tok-1", Status: model.InvitationPending,
		}))
		err = tx.InsertInvitation(ctx, &model.Invitation{
			ID: "i-2", EventID: id, InviteeEmail: "b@example.com", Token: "tok-2", Status: model.InvitationPending,
		})
		assert.ErrorIs(t, err, repository.ErrConflict)
		return nil
	})
	require.NoError(t, err)
}

func TestShiftPositionsAfter(t *testing.T) {
	s, id := seed(t, 1)
	ctx := context.Background()

	require.NoError(t, s.InEvent(ctx, id, func(tx repository.Tx) error {
		for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			e := &model.WaitlistEntry{
				ID: email, EventID: id, InviteeEmail: email, Position: i + 1,
				Status: model.WaitlistWaiting, JoinedAt: time.Unix(int64(i), 0),
			}
			if err := tx.InsertEntry(ctx, e); err != nil {
				return err
			}
		}
		if err := tx.SetEntryStatus(ctx, "a@example.com", model.WaitlistRemoved); err != nil {
			return err
		}
		return tx.ShiftPositionsAfter(ctx, 1)
	}))

	require.NoError(t, s.InEvent(ctx, id, func(tx repository.Tx) error {
		active, err := tx.ActiveEntries(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "b@example.com", active[0].InviteeEmail)
		assert.Equal(t, 1, active[0].Position)
		assert.Equal(t, 2, active[1].Position)
		return nil
	}))
}

func TestOverdueInvitations(t *testing.T) {
	s, id := seed(t, 1)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InEvent(ctx, id, func(tx repository.Tx) error {
		for i, d := range []time.Duration{-2 * time.Hour, -time.Hour, time.Hour} {
			inv := &model.Invitation{
				ID:           string(rune('a' + i)),
				EventID:      id,
				InviteeEmail: string(rune('a'+i)) + "@example.com",
				Token:        string(rune('a'+i)) + "-token",
				Status:       model.InvitationPending,
				ExpiresAt:    now.Add(d),
			}
			if err := tx.InsertInvitation(ctx, inv); err != nil {
				return err
			}
		}
		return nil
	}))

	overdue, err := s.OverdueInvitations(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "a", overdue[0].ID)

	limited, err := s.OverdueInvitations(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

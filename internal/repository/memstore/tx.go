package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
)

type memTx struct {
	s     *Store
	event *model.Event
	undo  []func()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) Event() *model.Event {
	return t.event
}

func (t *memTx) TryIncrementAdmitted(_ context.Context) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	ev := t.s.events[t.event.ID]
	if !ev.HasRoom() {
		return false, nil
	}
	prev := ev
	ev.AdmittedCount++
	t.s.events[ev.ID] = ev
	t.undo = append(t.undo, func() { t.s.events[prev.ID] = prev })
	t.event.AdmittedCount = ev.AdmittedCount
	return true, nil
}

func (t *memTx) DecrementAdmitted(_ context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	ev := t.s.events[t.event.ID]
	if ev.AdmittedCount == 0 {
		return nil
	}
	prev := ev
	ev.AdmittedCount--
	t.s.events[ev.ID] = ev
	t.undo = append(t.undo, func() { t.s.events[prev.ID] = prev })
	t.event.AdmittedCount = ev.AdmittedCount
	return nil
}

func (t *memTx) ConfirmedMembership(_ context.Context, email string) (*model.MembershipRecord, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, m := range t.s.memberships {
		if m.EventID == t.event.ID && m.InviteeEmail == email && m.Status == model.MembershipConfirmed {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) InsertMembership(_ context.Context, m *model.MembershipRecord) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.memberships[m.ID]; ok {
		return repository.ErrConflict
	}
	if m.Status == model.MembershipConfirmed {
		for _, other := range t.s.memberships {
			if other.EventID == m.EventID && other.InviteeEmail == m.InviteeEmail && other.Status == model.MembershipConfirmed {
				return repository.ErrConflict
			}
		}
	}
	t.s.memberships[m.ID] = *m
	id := m.ID
	t.undo = append(t.undo, func() { delete(t.s.memberships, id) })
	return nil
}

func (t *memTx) RemoveMembership(_ context.Context, id string, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	m, ok := t.s.memberships[id]
	if !ok || m.Status != model.MembershipConfirmed || m.EventID != t.event.ID {
		return repository.ErrNotFound
	}
	prev := m
	m.Status = model.MembershipRemoved
	m.RemovedAt = &at
	t.s.memberships[id] = m
	t.undo = append(t.undo, func() { t.s.memberships[id] = prev })
	return nil
}

func (t *memTx) ActiveEntry(_ context.Context, email string) (*model.WaitlistEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, e := range t.s.entries {
		if e.EventID == t.event.ID && e.InviteeEmail == email && e.Status.Active() {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) ActiveEntries(_ context.Context) ([]model.WaitlistEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []model.WaitlistEntry
	for _, e := range t.s.entries {
		if e.EventID == t.event.ID && e.Status.Active() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *memTx) InsertEntry(_ context.Context, e *model.WaitlistEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.entries[e.ID]; ok {
		return repository.ErrConflict
	}
	for _, other := range t.s.entries {
		if other.EventID == e.EventID && other.InviteeEmail == e.InviteeEmail && other.Status.Active() {
			return repository.ErrConflict
		}
	}
	t.s.seq++
	e.Seq = t.s.seq
	t.s.entries[e.ID] = *e
	id := e.ID
	t.undo = append(t.undo, func() { delete(t.s.entries, id) })
	return nil
}

func (t *memTx) SetEntryStatus(_ context.Context, id string, status model.WaitlistStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.entries[id]
	if !ok || e.EventID != t.event.ID {
		return repository.ErrNotFound
	}
	prev := e
	e.Status = status
	e.OfferedAt = nil
	t.s.entries[id] = e
	t.undo = append(t.undo, func() { t.s.entries[id] = prev })
	return nil
}

func (t *memTx) OfferEntry(_ context.Context, id string, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.entries[id]
	if !ok || e.EventID != t.event.ID || e.Status != model.WaitlistWaiting {
		return repository.ErrNotFound
	}
	prev := e
	e.Status = model.WaitlistInvited
	e.OfferedAt = &at
	t.s.entries[id] = e
	t.undo = append(t.undo, func() { t.s.entries[id] = prev })
	return nil
}

func (t *memTx) RequeueEntry(_ context.Context, id string, position int) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.entries[id]
	if !ok || e.EventID != t.event.ID {
		return repository.ErrNotFound
	}
	prev := e
	e.Status = model.WaitlistWaiting
	e.OfferedAt = nil
	e.Position = position
	t.s.entries[id] = e
	t.undo = append(t.undo, func() { t.s.entries[id] = prev })
	return nil
}

func (t *memTx) ShiftPositionsAfter(_ context.Context, position int) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, e := range t.s.entries {
		if e.EventID != t.event.ID || !e.Status.Active() || e.Position <= position {
			continue
		}
		prev := e
		e.Position--
		t.s.entries[id] = e
		t.undo = append(t.undo, func() { t.s.entries[prev.ID] = prev })
	}
	return nil
}

func (t *memTx) PendingInvitation(_ context.Context, email string) (*model.Invitation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, inv := range t.s.invitations {
		if inv.EventID == t.event.ID && inv.InviteeEmail == email && inv.Status == model.InvitationPending {
			return &inv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) InvitationForUpdate(_ context.Context, id string) (*model.Invitation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	inv, ok := t.s.invitations[id]
	if !ok || inv.EventID != t.event.ID {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (t *memTx) InsertInvitation(_ context.Context, inv *model.Invitation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.invitations[inv.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := t.s.byToken[inv.Token]; ok {
		return repository.ErrConflict
	}
	for _, other := range t.s.invitations {
		if other.EventID == inv.EventID && other.InviteeEmail == inv.InviteeEmail && other.Status == model.InvitationPending {
			return repository.ErrConflict
		}
	}
	t.s.invitations[inv.ID] = *inv
	t.s.byToken[inv.Token] = inv.ID
	id, token := inv.ID, inv.Token
	t.undo = append(t.undo, func() {
		delete(t.s.invitations, id)
		delete(t.s.byToken, token)
	})
	return nil
}

func (t *memTx) ResolveInvitation(_ context.Context, id string, status model.InvitationStatus, respondedAt *time.Time) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	inv, ok := t.s.invitations[id]
	if !ok || inv.Status != model.InvitationPending {
		return false, nil
	}
	prev := inv
	inv.Status = status
	inv.RespondedAt = respondedAt
	t.s.invitations[id] = inv
	t.undo = append(t.undo, func() { t.s.invitations[id] = prev })
	return true, nil
}

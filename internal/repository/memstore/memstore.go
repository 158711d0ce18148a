// Package memstore is an in-memory repository.Store.
//
// InEvent holds a mutex per event, so admissions for one event are serialised
// and different events proceed in parallel, like the row lock in PostgreSQL.
// Writes made inside a failed InEvent are undone from a journal. Readers
// outside InEvent may observe uncommitted writes; nothing in the admission
// core depends on that isolation level.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
)

// Fault is consulted at the start and at the commit point of every InEvent
// call; a non-nil return aborts the transaction with that error.
type Fault func(op string) error

// Store implements repository.Store in memory.
type Store struct {
	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	events      map[string]model.Event
	invitations map[string]model.Invitation
	byToken     map[string]string
	entries     map[string]model.WaitlistEntry
	memberships map[string]model.MembershipRecord
	seq         int64
	fault       Fault
}

var _ repository.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		locks:       make(map[string]*sync.Mutex),
		events:      make(map[string]model.Event),
		invitations: make(map[string]model.Invitation),
		byToken:     make(map[string]string),
		entries:     make(map[string]model.WaitlistEntry),
		memberships: make(map[string]model.MembershipRecord),
	}
}

// SetFault installs f; nil clears it.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *Store) checkFault(op string) error {
	s.mu.Lock()
	f := s.fault
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f(op)
}

func (s *Store) eventLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func copyEvent(e model.Event) *model.Event {
	if e.Capacity != nil {
		c := *e.Capacity
		e.Capacity = &c
	}
	return &e
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return repository.ErrConflict
	}
	s.events[e.ID] = *copyEvent(*e)
	return nil
}

// GetEvent returns a single event or repository.ErrNotFound.
func (s *Store) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyEvent(e), nil
}

// ListEvents returns all events, newest first.
func (s *Store) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *copyEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// InvitationByToken looks an invitation up by token.
func (s *Store) InvitationByToken(_ context.Context, token string) (*model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	inv := s.invitations[id]
	return &inv, nil
}

// OverdueInvitations returns PENDING invitations past their deadline.
func (s *Store) OverdueInvitations(_ context.Context, now time.Time, limit int) ([]model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Invitation
	for _, inv := range s.invitations {
		if inv.Status == model.InvitationPending && inv.ExpiresAt.Before(now) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListWaitlist returns every entry of an event in creation order.
func (s *Store) ListWaitlist(_ context.Context, eventID string) ([]model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WaitlistEntry
	for _, e := range s.entries {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ListMemberships returns every membership record of an event.
func (s *Store) ListMemberships(_ context.Context, eventID string) ([]model.MembershipRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MembershipRecord
	for _, m := range s.memberships {
		if m.EventID == eventID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// StaleOffers returns INVITED entries offered before cutoff.
func (s *Store) StaleOffers(_ context.Context, cutoff time.Time, limit int) ([]model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WaitlistEntry
	for _, e := range s.entries {
		if e.Status == model.WaitlistInvited && e.OfferedAt != nil && e.OfferedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferedAt.Before(*out[j].OfferedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// EventsAwaitingPromotion returns events with WAITING entries and unoffered
// free seats.
func (s *Store) EventsAwaitingPromotion(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	waiting := make(map[string]bool)
	invited := make(map[string]int)
	for _, e := range s.entries {
		switch e.Status {
		case model.WaitlistWaiting:
			waiting[e.EventID] = true
		case model.WaitlistInvited:
			invited[e.EventID]++
		case model.WaitlistRegistered, model.WaitlistRemoved:
		}
	}
	var ids []string
	for id := range waiting {
		ev := s.events[id]
		if ev.Unlimited() || ev.Remaining() > invited[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// InEvent runs fn with the event's mutex held.
func (s *Store) InEvent(ctx context.Context, eventID string, fn func(tx repository.Tx) error) error {
	lock := s.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkFault("begin"); err != nil {
		return err
	}

	s.mu.Lock()
	ev, ok := s.events[eventID]
	s.mu.Unlock()
	if !ok {
		return repository.ErrNotFound
	}

	tx := &memTx{s: s, event: copyEvent(ev)}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := s.checkFault("commit"); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

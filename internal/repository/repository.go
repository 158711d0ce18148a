// Package repository is the persistence boundary of the admission core.
//
// Store exposes plain reads plus InEvent, which runs a callback inside one
// transaction holding the event's row lock. Every mutation of admission or
// waitlist state goes through a Tx obtained that way, so all writes for one
// event are serialised while different events never contend.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness rule.
var ErrConflict = errors.New("conflict")

// ErrTransient marks failures that may succeed on retry: serialization
// failures, deadlocks, lock timeouts, dropped connections.
var ErrTransient = errors.New("transient store failure")

// Store is implemented by PGStore and by memstore.Store.
type Store interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)

	InvitationByToken(ctx context.Context, token string) (*model.Invitation, error)
	// OverdueInvitations returns PENDING invitations whose deadline is
	// before now, oldest deadline first.
	OverdueInvitations(ctx context.Context, now time.Time, limit int) ([]model.Invitation, error)

	// ListWaitlist returns every entry of the event in creation order.
	ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error)
	ListMemberships(ctx context.Context, eventID string) ([]model.MembershipRecord, error)

	// StaleOffers returns INVITED entries offered before cutoff, oldest
	// offer first.
	StaleOffers(ctx context.Context, cutoff time.Time, limit int) ([]model.WaitlistEntry, error)

	// EventsAwaitingPromotion returns ids of events that have WAITING
	// entries and at least one free seat not already offered.
	EventsAwaitingPromotion(ctx context.Context, limit int) ([]string, error)

	// InEvent locks the event and runs fn in a single transaction. If fn
	// returns an error the transaction is rolled back. Returns ErrNotFound
	// if the event does not exist.
	InEvent(ctx context.Context, eventID string, fn func(tx Tx) error) error
}

// Tx is the set of operations available while an event is locked.
type Tx interface {
	// Event is the locked event; its AdmittedCount reflects the counter
	// changes made through this Tx.
	Event() *model.Event
	// TryIncrementAdmitted bumps the admitted counter if capacity allows
	// and reports whether it did.
	TryIncrementAdmitted(ctx context.Context) (bool, error)
	// DecrementAdmitted lowers the admitted counter, never below zero.
	DecrementAdmitted(ctx context.Context) error

	ConfirmedMembership(ctx context.Context, email string) (*model.MembershipRecord, error)
	InsertMembership(ctx context.Context, m *model.MembershipRecord) error
	RemoveMembership(ctx context.Context, id string, at time.Time) error

	ActiveEntry(ctx context.Context, email string) (*model.WaitlistEntry, error)
	// ActiveEntries returns WAITING and INVITED entries ordered by position.
	ActiveEntries(ctx context.Context) ([]model.WaitlistEntry, error)
	InsertEntry(ctx context.Context, e *model.WaitlistEntry) error
	// SetEntryStatus changes an entry's status and clears its offer time.
	SetEntryStatus(ctx context.Context, id string, status model.WaitlistStatus) error
	// OfferEntry marks an entry INVITED as of at.
	OfferEntry(ctx context.Context, id string, at time.Time) error
	// RequeueEntry puts an entry back to WAITING at position.
	RequeueEntry(ctx context.Context, id string, position int) error
	// ShiftPositionsAfter decrements the position of every active entry
	// behind position.
	ShiftPositionsAfter(ctx context.Context, position int) error

	PendingInvitation(ctx context.Context, email string) (*model.Invitation, error)
	InvitationForUpdate(ctx context.Context, id string) (*model.Invitation, error)
	InsertInvitation(ctx context.Context, inv *model.Invitation) error
	// ResolveInvitation moves a PENDING invitation to status and reports
	// whether it did; an invitation that already left PENDING is untouched.
	ResolveInvitation(ctx context.Context, id string, status model.InvitationStatus, respondedAt *time.Time) (bool, error)
}

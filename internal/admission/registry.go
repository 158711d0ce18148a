package admission

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
)

// MembershipRegistry is the source of truth for confirmed participation.
// It runs inside a caller's transaction and never touches the counter.
type MembershipRegistry struct {
	clock Clock
}

// NewMembershipRegistry creates a MembershipRegistry.
func NewMembershipRegistry(clock Clock) *MembershipRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MembershipRegistry{clock: clock}
}

// Find returns the CONFIRMED record for email, or nil.
func (r *MembershipRegistry) Find(ctx context.Context, tx repository.Tx, email string) (*model.MembershipRecord, error) {
	m, err := tx.ConfirmedMembership(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find membership", err)
	}
	return m, nil
}

// IsConfirmed reports whether email holds a CONFIRMED record.
func (r *MembershipRegistry) IsConfirmed(ctx context.Context, tx repository.Tx, email string) (bool, error) {
	m, err := r.Find(ctx, tx, email)
	return m != nil, err
}

// Confirm creates a CONFIRMED record for email. If one already exists it is
// returned unchanged and created is false.
func (r *MembershipRegistry) Confirm(ctx context.Context, tx repository.Tx, email, role string) (rec *model.MembershipRecord, created bool, err error) {
	existing, err := r.Find(ctx, tx, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if role == "" {
		role = model.RoleAttendee
	}
	rec = &model.MembershipRecord{
		ID:           newID(),
		EventID:      tx.Event().ID,
		InviteeEmail: email,
		Status:       model.MembershipConfirmed,
		Role:         role,
		CreatedAt:    r.clock.Now(),
	}
	if err := tx.InsertMembership(ctx, rec); err != nil {
		return nil, false, storeErr("insert membership", err)
	}
	return rec, true, nil
}

// Remove marks the CONFIRMED record for email REMOVED. Returns
// apperrors.ErrNotConfirmed when there is none.
func (r *MembershipRegistry) Remove(ctx context.Context, tx repository.Tx, email string) (*model.MembershipRecord, error) {
	existing, err := r.Find(ctx, tx, email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.ErrNotConfirmed
	}

	now := r.clock.Now()
	if err := tx.RemoveMembership(ctx, existing.ID, now); err != nil {
		return nil, storeErr("remove membership", err)
	}
	existing.Status = model.MembershipRemoved
	existing.RemovedAt = &now
	return existing, nil
}

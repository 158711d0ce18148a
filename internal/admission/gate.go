package admission

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/sirupsen/logrus"
)

// CapacityGate is the only component that moves an event's admitted
// counter. It decides admit versus queue.
type CapacityGate struct {
	deps     Deps
	registry *MembershipRegistry
}

// NewCapacityGate creates a CapacityGate.
func NewCapacityGate(deps Deps, registry *MembershipRegistry) *CapacityGate {
	deps = deps.withDefaults()
	if registry == nil {
		registry = NewMembershipRegistry(deps.Clock)
	}
	return &CapacityGate{deps: deps, registry: registry}
}

// Registry returns the membership registry the gate writes to.
func (g *CapacityGate) Registry() *MembershipRegistry {
	return g.registry
}

// Admit decides admission for email in its own transaction.
func (g *CapacityGate) Admit(ctx context.Context, eventID, email string) (model.Decision, error) {
	var d model.Decision
	err := g.deps.atomically(ctx, eventID, func(tx repository.Tx) error {
		var err error
		d, err = g.AdmitTx(ctx, tx, email)
		return err
	})
	if err != nil {
		return model.Decision{}, err
	}
	g.Observe(eventID, email, d)
	return d, nil
}

// AdmitTx decides admission inside an existing event transaction. An email
// that is already confirmed gets the existing record back and the counter
// is left alone. An admitted email's active waitlist entry is marked
// REGISTERED in the same transaction.
func (g *CapacityGate) AdmitTx(ctx context.Context, tx repository.Tx, email string) (model.Decision, error) {
	existing, err := g.registry.Find(ctx, tx, email)
	if err != nil {
		return model.Decision{}, err
	}
	if existing != nil {
		if err := settleEntry(ctx, tx, email); err != nil {
			return model.Decision{}, err
		}
		return model.Decision{Kind: model.DecisionAdmitted, Membership: existing, Existing: true}, nil
	}

	ok, err := tx.TryIncrementAdmitted(ctx)
	if err != nil {
		return model.Decision{}, storeErr("increment admitted", err)
	}
	if !ok {
		return model.Decision{Kind: model.DecisionQueued}, nil
	}

	rec, _, err := g.registry.Confirm(ctx, tx, email, model.RoleAttendee)
	if err != nil {
		return model.Decision{}, err
	}
	if err := settleEntry(ctx, tx, email); err != nil {
		return model.Decision{}, err
	}
	return model.Decision{Kind: model.DecisionAdmitted, Membership: rec}, nil
}

// CanOffer reports whether a seat is free that has not already been offered
// to one of invited waitlist entries.
func (g *CapacityGate) CanOffer(tx repository.Tx, invited int) bool {
	ev := tx.Event()
	return ev.Unlimited() || ev.Remaining() > invited
}

// Observe records a committed decision.
func (g *CapacityGate) Observe(eventID, email string, d model.Decision) {
	if d.Existing {
		return
	}
	g.deps.Metrics.ObserveDecision(d.Kind.String())
	g.deps.Log.WithFields(logrus.Fields{
		"event_id": eventID,
		"email":    email,
		"decision": d.Kind.String(),
	}).Info("admission decided")
}

// Release removes email's membership and frees its seat. Releasing an
// identity that is not confirmed changes nothing and returns NotConfirmed.
// Offering the seat to the waitlist is left to the caller.
func (g *CapacityGate) Release(ctx context.Context, eventID, email string) (model.ReleaseOutcome, *model.MembershipRecord, error) {
	var (
		outcome model.ReleaseOutcome
		removed *model.MembershipRecord
	)
	err := g.deps.atomically(ctx, eventID, func(tx repository.Tx) error {
		outcome, removed = 0, nil

		rec, err := g.registry.Remove(ctx, tx, email)
		if errors.Is(err, apperrors.ErrNotConfirmed) {
			outcome = model.NotConfirmed
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.DecrementAdmitted(ctx); err != nil {
			return storeErr("decrement admitted", err)
		}
		outcome, removed = model.Released, rec
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	g.deps.Metrics.ObserveRelease(outcome.String())
	g.deps.Log.WithFields(logrus.Fields{
		"event_id": eventID,
		"email":    email,
		"outcome":  outcome.String(),
	}).Info("seat release")
	return outcome, removed, nil
}

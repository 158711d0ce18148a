package admission

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
)

const tokenLength = 32

// InvitationLedger owns the invitation lifecycle:
//
//	PENDING → ACCEPTED | DECLINED | EXPIRED
//
// Terminal states are final. Accepting runs the capacity gate and, when the
// event is full, the waitlist join in the same event transaction as the
// status change.
type InvitationLedger struct {
	deps  Deps
	gate  *CapacityGate
	queue *WaitlistQueue
	ttl   time.Duration
}

// NewInvitationLedger creates an InvitationLedger. ttl is the validity of
// invitations sent without an explicit deadline.
func NewInvitationLedger(deps Deps, gate *CapacityGate, queue *WaitlistQueue, ttl time.Duration) *InvitationLedger {
	return &InvitationLedger{deps: deps.withDefaults(), gate: gate, queue: queue, ttl: ttl}
}

// Send creates a PENDING invitation. A PENDING invitation for the same
// invitee whose deadline already passed is expired first; a live one makes
// Send fail with apperrors.ErrDuplicateInvitation.
func (l *InvitationLedger) Send(ctx context.Context, eventID, email string, expiresAt *time.Time) (*model.Invitation, error) {
	now := l.deps.Clock.Now()
	deadline := now.Add(l.ttl)
	if expiresAt != nil {
		deadline = expiresAt.UTC()
	}
	if !deadline.After(now) {
		return nil, apperrors.ValidationWithDetails("validation failed", map[string]string{
			"expires_at": "must be in the future",
		})
	}

	var inv *model.Invitation
	err := l.deps.atomically(ctx, eventID, func(tx repository.Tx) error {
		inv = nil

		pending, err := tx.PendingInvitation(ctx, email)
		switch {
		case err == nil:
			if !pending.ExpiredAt(now) {
				return apperrors.ErrDuplicateInvitation
			}
			if _, err := tx.ResolveInvitation(ctx, pending.ID, model.InvitationExpired, nil); err != nil {
				return storeErr("expire stale invitation", err)
			}
		case !errors.Is(err, repository.ErrNotFound):
			return storeErr("find pending invitation", err)
		}

		token, err := gonanoid.New(tokenLength)
		if err != nil {
			return storeErr("generate token", err)
		}
		inv = &model.Invitation{
			ID:           newID(),
			EventID:      eventID,
			InviteeEmail: email,
			Token:        token,
			Status:       model.InvitationPending,
			ExpiresAt:    deadline,
			CreatedAt:    now,
		}
		if err := tx.InsertInvitation(ctx, inv); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperrors.ErrDuplicateInvitation
			}
			return storeErr("insert invitation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.deps.Log.WithFields(logrus.Fields{
		"event_id": eventID,
		"email":    email,
		"token":    logger.TokenHint(inv.Token),
	}).Info("invitation sent")
	l.deps.Notifier.Notify(ctx, notify.Notification{
		Recipient: email,
		Kind:      notify.KindInvitation,
		EventID:   eventID,
		Payload: map[string]any{
			"token":      inv.Token,
			"expires_at": inv.ExpiresAt,
		},
	})
	return inv, nil
}

// Accept responds yes to the invitation identified by token. The invitee is
// either admitted or placed on the waitlist; both count as accepted.
//
// An expired invitation never reaches the capacity gate: it is marked
// EXPIRED and apperrors.ErrInvitationExpired is returned.
func (l *InvitationLedger) Accept(ctx context.Context, token string) (model.AcceptOutcome, error) {
	inv, err := l.lookup(ctx, token)
	if err != nil {
		return model.AcceptOutcome{}, err
	}

	var (
		out     model.AcceptOutcome
		d       model.Decision
		expired bool
	)
	err = l.deps.atomically(ctx, inv.EventID, func(tx repository.Tx) error {
		out, d, expired = model.AcceptOutcome{}, model.Decision{}, false

		cur, now, err := l.respondable(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			expired = true
			return nil
		}

		d, err = l.gate.AdmitTx(ctx, tx, cur.InviteeEmail)
		if err != nil {
			return err
		}
		switch d.Kind {
		case model.DecisionAdmitted:
			out = model.AcceptOutcome{
				Outcome:    model.OutcomeAdmitted,
				EventID:    cur.EventID,
				Email:      cur.InviteeEmail,
				Membership: d.Membership,
			}
		case model.DecisionQueued:
			joined, err := l.queue.JoinTx(ctx, tx, cur.InviteeEmail, "")
			if err != nil {
				return err
			}
			out = model.AcceptOutcome{
				Outcome:  model.OutcomeQueued,
				EventID:  cur.EventID,
				Email:    cur.InviteeEmail,
				Position: joined.Entry.Position,
			}
		}
		return l.resolve(ctx, tx, cur.ID, model.InvitationAccepted, &now)
	})
	if err != nil {
		return model.AcceptOutcome{}, err
	}
	if expired {
		l.deps.Metrics.ObserveExpired(1)
		return model.AcceptOutcome{}, apperrors.ErrInvitationExpired
	}

	l.gate.Observe(inv.EventID, inv.InviteeEmail, d)
	l.deps.Notifier.Notify(ctx, notify.Notification{
		Recipient: inv.InviteeEmail,
		Kind:      notify.KindInvitationAccepted,
		EventID:   inv.EventID,
		Payload: map[string]any{
			"outcome":  out.Outcome,
			"position": out.Position,
		},
	})
	return out, nil
}

// Decline responds no. It never touches capacity or the waitlist.
func (l *InvitationLedger) Decline(ctx context.Context, token string) error {
	inv, err := l.lookup(ctx, token)
	if err != nil {
		return err
	}

	var expired bool
	err = l.deps.atomically(ctx, inv.EventID, func(tx repository.Tx) error {
		expired = false

		cur, now, err := l.respondable(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			expired = true
			return nil
		}
		return l.resolve(ctx, tx, cur.ID, model.InvitationDeclined, &now)
	})
	if err != nil {
		return err
	}
	if expired {
		l.deps.Metrics.ObserveExpired(1)
		return apperrors.ErrInvitationExpired
	}

	l.deps.Log.WithFields(logrus.Fields{
		"event_id": inv.EventID,
		"email":    inv.InviteeEmail,
	}).Info("invitation declined")
	l.deps.Notifier.Notify(ctx, notify.Notification{
		Recipient: inv.InviteeEmail,
		Kind:      notify.KindInvitationDeclined,
		EventID:   inv.EventID,
	})
	return nil
}

// ExpireOverdue flips up to limit overdue PENDING invitations to EXPIRED
// and returns how many it changed. An invitation accepted concurrently is
// left alone.
func (l *InvitationLedger) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := l.deps.Clock.Now()
	overdue, err := l.deps.Store.OverdueInvitations(ctx, now, limit)
	if err != nil {
		return 0, storeErr("list overdue invitations", err)
	}

	expired := 0
	for _, inv := range overdue {
		if ctx.Err() != nil {
			break
		}
		var changed bool
		err := l.deps.atomically(ctx, inv.EventID, func(tx repository.Tx) error {
			var err error
			changed, err = tx.ResolveInvitation(ctx, inv.ID, model.InvitationExpired, nil)
			if err != nil {
				return storeErr("expire invitation", err)
			}
			return nil
		})
		if err != nil {
			l.deps.Log.WithField("event_id", inv.EventID).WithError(err).Warn("failed to expire invitation")
			continue
		}
		if changed {
			expired++
		}
	}
	l.deps.Metrics.ObserveExpired(expired)
	return expired, ctx.Err()
}

func (l *InvitationLedger) lookup(ctx context.Context, token string) (*model.Invitation, error) {
	inv, err := l.deps.Store.InvitationByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrInvitationNotFound
	}
	if err != nil {
		if errors.Is(err, repository.ErrTransient) {
			return nil, apperrors.Unavailable(err)
		}
		return nil, storeErr("get invitation", err)
	}
	return inv, nil
}

// respondable re-reads the invitation under the event lock. It returns nil
// without error when the invitation was just expired by this call; the
// caller must commit so the EXPIRED write sticks.
func (l *InvitationLedger) respondable(ctx context.Context, tx repository.Tx, id string) (*model.Invitation, time.Time, error) {
	now := l.deps.Clock.Now()
	cur, err := tx.InvitationForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, now, apperrors.ErrInvitationNotFound
	}
	if err != nil {
		return nil, now, storeErr("lock invitation", err)
	}

	if cur.Status.Terminal() {
		if cur.Status == model.InvitationExpired {
			return nil, now, apperrors.ErrInvitationExpired
		}
		return nil, now, apperrors.ErrAlreadyResponded
	}

	if cur.ExpiredAt(now) {
		if _, err := tx.ResolveInvitation(ctx, cur.ID, model.InvitationExpired, nil); err != nil {
			return nil, now, storeErr("expire invitation", err)
		}
		return nil, now, nil
	}
	return cur, now, nil
}

func (l *InvitationLedger) resolve(ctx context.Context, tx repository.Tx, id string, status model.InvitationStatus, at *time.Time) error {
	ok, err := tx.ResolveInvitation(ctx, id, status, at)
	if err != nil {
		return storeErr("resolve invitation", err)
	}
	if !ok {
		return apperrors.ErrAlreadyResponded
	}
	return nil
}

package admission

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/sirupsen/logrus"
)

// WaitlistQueue keeps the ordered queue of entrants who were not admitted.
//
// Active entries (WAITING and INVITED) of one event always hold positions
// 1..N without gaps. Join appends; Leave and the entrant's admission close
// the gap they leave behind. All of it runs under the event lock.
//
// Promotion is a two-step handshake: Promote moves the head WAITING entry
// to INVITED and notifies it; the seat is only taken when the entrant calls
// ConfirmOffer. An offer left unanswered for longer than the offer TTL is
// withdrawn by LapseOffers and the entrant goes to the back of the queue.
type WaitlistQueue struct {
	deps Deps
	gate *CapacityGate
}

// NewWaitlistQueue creates a WaitlistQueue.
func NewWaitlistQueue(deps Deps, gate *CapacityGate) *WaitlistQueue {
	return &WaitlistQueue{deps: deps.withDefaults(), gate: gate}
}

// Join adds email to the waitlist. Joining twice returns the existing entry
// with Created false.
func (q *WaitlistQueue) Join(ctx context.Context, eventID, email, name string, notifyEntrant bool) (model.JoinResult, error) {
	var res model.JoinResult
	err := q.deps.atomically(ctx, eventID, func(tx repository.Tx) error {
		confirmed, err := q.gate.Registry().IsConfirmed(ctx, tx, email)
		if err != nil {
			return err
		}
		if confirmed {
			return apperrors.ErrAlreadyMember
		}
		res, err = q.JoinTx(ctx, tx, email, name)
		return err
	})
	if err != nil {
		return model.JoinResult{}, err
	}

	if res.Created {
		q.deps.Log.WithFields(logrus.Fields{
			"event_id": eventID,
			"email":    email,
			"position": res.Entry.Position,
		}).Info("joined waitlist")
		if notifyEntrant {
			q.deps.Notifier.Notify(ctx, notify.Notification{
				Recipient: email,
				Kind:      notify.KindWaitlistJoined,
				EventID:   eventID,
				Payload:   map[string]any{"position": res.Entry.Position},
			})
		}
	}
	return res, nil
}

// JoinTx appends email inside an existing event transaction.
func (q *WaitlistQueue) JoinTx(ctx context.Context, tx repository.Tx, email, name string) (model.JoinResult, error) {
	existing, err := tx.ActiveEntry(ctx, email)
	if err == nil {
		return model.JoinResult{Entry: *existing}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.JoinResult{}, storeErr("find waitlist entry", err)
	}

	active, err := tx.ActiveEntries(ctx)
	if err != nil {
		return model.JoinResult{}, storeErr("list active entries", err)
	}
	position := 1
	if n := len(active); n > 0 {
		position = active[n-1].Position + 1
	}

	entry := model.WaitlistEntry{
		ID:           newID(),
		EventID:      tx.Event().ID,
		InviteeEmail: email,
		Name:         name,
		Position:     position,
		Status:       model.WaitlistWaiting,
		JoinedAt:     q.deps.Clock.Now(),
	}
	if err := tx.InsertEntry(ctx, &entry); err != nil {
		return model.JoinResult{}, storeErr("insert waitlist entry", err)
	}
	return model.JoinResult{Entry: entry, Created: true}, nil
}

// Leave removes email's active entry and closes the gap behind it. The
// returned entry carries the status it had before removal.
func (q *WaitlistQueue) Leave(ctx context.Context, eventID, email string) (model.WaitlistEntry, error) {
	var left model.WaitlistEntry
	err := q.deps.atomically(ctx, eventID, func(tx repository.Tx) error {
		entry, err := tx.ActiveEntry(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrEntryNotFound
		}
		if err != nil {
			return storeErr("find waitlist entry", err)
		}
		if err := deactivateEntry(ctx, tx, entry, model.WaitlistRemoved); err != nil {
			return err
		}
		left = *entry
		return nil
	})
	if err != nil {
		return model.WaitlistEntry{}, err
	}

	q.deps.Log.WithFields(logrus.Fields{
		"event_id": eventID,
		"email":    email,
		"position": left.Position,
	}).Info("left waitlist")
	return left, nil
}

// deactivateEntry moves an active entry out of the queue and repairs positions.
func deactivateEntry(ctx context.Context, tx repository.Tx, entry *model.WaitlistEntry, status model.WaitlistStatus) error {
	if err := tx.SetEntryStatus(ctx, entry.ID, status); err != nil {
		return storeErr("update waitlist entry", err)
	}
	if err := tx.ShiftPositionsAfter(ctx, entry.Position); err != nil {
		return storeErr("repair waitlist positions", err)
	}
	return nil
}

// settleEntry retires email's active entry once email holds a seat, so a
// member never keeps a place in the queue or an outstanding offer.
func settleEntry(ctx context.Context, tx repository.Tx, email string) error {
	entry, err := tx.ActiveEntry(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("find waitlist entry", err)
	}
	return deactivateEntry(ctx, tx, entry, model.WaitlistRegistered)
}

// Promote offers a free seat to the WAITING entry with the smallest
// position. It returns nil when nobody is waiting or every free seat is
// already on offer, so running it repeatedly is harmless.
func (q *WaitlistQueue) Promote(ctx context.Context, eventID string) (*model.WaitlistEntry, error) {
	var promoted *model.WaitlistEntry
	err := q.deps.atomically(ctx, eventID, func(tx repository.Tx) error {
		promoted = nil

		active, err := tx.ActiveEntries(ctx)
		if err != nil {
			return storeErr("list active entries", err)
		}
		var (
			head    *model.WaitlistEntry
			invited int
		)
		for i := range active {
			switch active[i].Status {
			case model.WaitlistInvited:
				invited++
			case model.WaitlistWaiting:
				if head == nil {
					head = &active[i]
				}
			case model.WaitlistRegistered, model.WaitlistRemoved:
			}
		}
		if head == nil || !q.gate.CanOffer(tx, invited) {
			return nil
		}

		now := q.deps.Clock.Now()
		if err := tx.OfferEntry(ctx, head.ID, now); err != nil {
			return storeErr("offer seat", err)
		}
		head.Status = model.WaitlistInvited
		head.OfferedAt = &now
		promoted = head
		return nil
	})
	if err != nil || promoted == nil {
		return nil, err
	}

	q.deps.Metrics.ObservePromotion()
	q.deps.Log.WithFields(logrus.Fields{
		"event_id": eventID,
		"email":    promoted.InviteeEmail,
		"position": promoted.Position,
	}).Info("waitlist entry offered a seat")
	q.deps.Notifier.Notify(ctx, notify.Notification{
		Recipient: promoted.InviteeEmail,
		Kind:      notify.KindWaitlistOffer,
		EventID:   eventID,
		Payload:   map[string]any{"position": promoted.Position},
	})
	return promoted, nil
}

// PromoteAll calls Promote until it makes no further offer.
func (q *WaitlistQueue) PromoteAll(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	var offered []model.WaitlistEntry
	for {
		e, err := q.Promote(ctx, eventID)
		if err != nil {
			return offered, err
		}
		if e == nil {
			return offered, nil
		}
		offered = append(offered, *e)
	}
}

// LapseOffers withdraws up to limit offers that have gone unanswered for
// longer than ttl. Each entrant goes back to WAITING at the end of the queue
// so the seat can be offered to the next one. It returns the ids of events
// that had an offer withdrawn.
func (q *WaitlistQueue) LapseOffers(ctx context.Context, ttl time.Duration, limit int) ([]string, error) {
	cutoff := q.deps.Clock.Now().Add(-ttl)
	stale, err := q.deps.Store.StaleOffers(ctx, cutoff, limit)
	if err != nil {
		return nil, storeErr("list stale offers", err)
	}

	var events []string
	seen := make(map[string]bool)
	for _, candidate := range stale {
		if ctx.Err() != nil {
			break
		}
		var (
			lapsed   bool
			position int
		)
		err := q.deps.atomically(ctx, candidate.EventID, func(tx repository.Tx) error {
			lapsed = false

			entry, err := tx.ActiveEntry(ctx, candidate.InviteeEmail)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return storeErr("find waitlist entry", err)
			}
			// Answered, withdrawn or re-offered since it was listed.
			if entry.ID != candidate.ID || entry.Status != model.WaitlistInvited ||
				entry.OfferedAt == nil || !entry.OfferedAt.Before(cutoff) {
				return nil
			}

			active, err := tx.ActiveEntries(ctx)
			if err != nil {
				return storeErr("list active entries", err)
			}
			if err := tx.ShiftPositionsAfter(ctx, entry.Position); err != nil {
				return storeErr("repair waitlist positions", err)
			}
			position = len(active)
			if err := tx.RequeueEntry(ctx, entry.ID, position); err != nil {
				return storeErr("requeue waitlist entry", err)
			}
			lapsed = true
			return nil
		})
		if err != nil {
			q.deps.Log.WithField("event_id", candidate.EventID).WithError(err).Warn("failed to lapse waitlist offer")
			continue
		}
		if !lapsed {
			continue
		}

		q.deps.Log.WithFields(logrus.Fields{
			"event_id": candidate.EventID,
			"email":    candidate.InviteeEmail,
			"position": position,
		}).Info("waitlist offer lapsed")
		q.deps.Notifier.Notify(ctx, notify.Notification{
			Recipient: candidate.InviteeEmail,
			Kind:      notify.KindWaitlistOfferLapsed,
			EventID:   candidate.EventID,
			Payload:   map[string]any{"position": position},
		})
		if !seen[candidate.EventID] {
			seen[candidate.EventID] = true
			events = append(events, candidate.EventID)
		}
	}
	return events, ctx.Err()
}

// ConfirmOffer completes the promotion handshake for an INVITED entry. If
// the seat was taken in the meantime the entry goes back to WAITING at its
// current position.
func (q *WaitlistQueue) ConfirmOffer(ctx context.Context, eventID, email string) (model.AcceptOutcome, error) {
	var (
		out model.AcceptOutcome
		d   model.Decision
	)
	err := q.deps.atomically(ctx, eventID, func(tx repository.Tx) error {
		entry, err := tx.ActiveEntry(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrEntryNotFound
		}
		if err != nil {
			return storeErr("find waitlist entry", err)
		}
		if entry.Status != model.WaitlistInvited {
			return apperrors.ErrNotOffered
		}

		d, err = q.gate.AdmitTx(ctx, tx, email)
		if err != nil {
			return err
		}
		switch d.Kind {
		case model.DecisionAdmitted:
			out = model.AcceptOutcome{Outcome: model.OutcomeAdmitted, EventID: eventID, Email: email, Membership: d.Membership}
		case model.DecisionQueued:
			if err := tx.SetEntryStatus(ctx, entry.ID, model.WaitlistWaiting); err != nil {
				return storeErr("return entry to queue", err)
			}
			out = model.AcceptOutcome{Outcome: model.OutcomeQueued, EventID: eventID, Email: email, Position: entry.Position}
		}
		return nil
	})
	if err != nil {
		return model.AcceptOutcome{}, err
	}

	q.gate.Observe(eventID, email, d)
	if out.Admitted() {
		q.deps.Notifier.Notify(ctx, notify.Notification{
			Recipient: email,
			Kind:      notify.KindMembershipConfirmed,
			EventID:   eventID,
		})
	}
	return out, nil
}

// Waitlist sort keys.
const (
	SortByPosition = "position"
	SortByJoinedAt = "joined_at"
	SortByName     = "name"
	SortByEmail    = "email"
)

// Waitlist status filters beyond the entry statuses themselves.
const (
	FilterActive = "active"
	FilterAll    = "all"
)

// List returns the event's waitlist filtered by status and ordered by
// sortBy. Empty values mean active entries by position.
func (q *WaitlistQueue) List(ctx context.Context, eventID string, query model.WaitlistQuery) ([]model.WaitlistEntry, error) {
	if _, err := q.deps.Store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, storeErr("get event", err)
	}
	all, err := q.deps.Store.ListWaitlist(ctx, eventID)
	if err != nil {
		return nil, storeErr("list waitlist", err)
	}

	keep, err := statusFilter(query.Status)
	if err != nil {
		return nil, err
	}
	entries := make([]model.WaitlistEntry, 0, len(all))
	for _, e := range all {
		if keep(e.Status) {
			entries = append(entries, e)
		}
	}

	less, err := sortFunc(query.SortBy, entries)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, less)
	return entries, nil
}

func statusFilter(label string) (func(model.WaitlistStatus) bool, error) {
	switch strings.ToLower(label) {
	case "", FilterActive:
		return model.WaitlistStatus.Active, nil
	case FilterAll:
		return func(model.WaitlistStatus) bool { return true }, nil
	}
	want, ok := model.ParseWaitlistStatus(label)
	if !ok {
		return nil, apperrors.Validation("unknown waitlist status filter: " + label)
	}
	return func(s model.WaitlistStatus) bool { return s == want }, nil
}

// sortFunc orders by the given key, falling back to creation order.
func sortFunc(key string, e []model.WaitlistEntry) (func(i, j int) bool, error) {
	bySeq := func(i, j int) bool { return e[i].Seq < e[j].Seq }
	switch key {
	case "", SortByPosition:
		return func(i, j int) bool {
			ai, aj := e[i].Status.Active(), e[j].Status.Active()
			if ai != aj {
				return ai
			}
			if ai && e[i].Position != e[j].Position {
				return e[i].Position < e[j].Position
			}
			if !e[i].JoinedAt.Equal(e[j].JoinedAt) {
				return e[i].JoinedAt.Before(e[j].JoinedAt)
			}
			return bySeq(i, j)
		}, nil
	case SortByJoinedAt:
		return func(i, j int) bool {
			if !e[i].JoinedAt.Equal(e[j].JoinedAt) {
				return e[i].JoinedAt.Before(e[j].JoinedAt)
			}
			return bySeq(i, j)
		}, nil
	case SortByName:
		return func(i, j int) bool {
			ni, nj := strings.ToLower(e[i].Name), strings.ToLower(e[j].Name)
			if ni != nj {
				return ni < nj
			}
			return bySeq(i, j)
		}, nil
	case SortByEmail:
		return func(i, j int) bool {
			if e[i].InviteeEmail != e[j].InviteeEmail {
				return e[i].InviteeEmail < e[j].InviteeEmail
			}
			return bySeq(i, j)
		}, nil
	}
	return nil, apperrors.Validation("unknown waitlist sort key: " + key)
}

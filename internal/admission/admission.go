// Package admission decides, under a hard capacity limit, whether an invitee
// is admitted or queued, and manages invitations and the waitlist as seats
// are taken and freed.
//
// Every state change for one event happens inside repository.Store.InEvent,
// so admissions, releases and waitlist repairs for that event are
// linearised. Transient store failures are retried here with exponential
// backoff and surface as apperrors.ErrAdmissionUnavailable once the budget
// is spent.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Notifier receives notifications after the state change they describe has
// committed. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.Notification) {}

// RetryPolicy bounds retries of transient store failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 25 * time.Millisecond}

// Deps are the collaborators shared by all admission components.
type Deps struct {
	Store    repository.Store
	Clock    Clock
	Notifier Notifier
	Log      logrus.FieldLogger
	Metrics  *metrics.Metrics
	Retry    RetryPolicy
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		d.Log = l
	}
	if d.Retry.MaxAttempts <= 0 {
		d.Retry = DefaultRetryPolicy
	}
	return d
}

// atomically runs fn inside InEvent for eventID, retrying transient
// failures. fn may run more than once and must reset anything it captures.
func (d Deps) atomically(ctx context.Context, eventID string, fn func(tx repository.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.Retry.BaseDelay
	b.MaxInterval = 20 * d.Retry.BaseDelay

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := d.Store.InEvent(ctx, eventID, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, repository.ErrTransient):
			if attempt < d.Retry.MaxAttempts {
				d.Metrics.ObserveRetry()
				d.Log.WithFields(logrus.Fields{
					"event_id": eventID,
					"attempt":  attempt,
				}).WithError(err).Warn("transient store failure, retrying")
			}
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(d.Retry.MaxAttempts)))
	if err == nil {
		return nil
	}

	var appErr *apperrors.Error
	switch {
	case errors.Is(err, repository.ErrTransient):
		d.Metrics.ObserveUnavailable()
		return apperrors.Unavailable(err)
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		// fn never leaks a bare ErrNotFound, so this is the event lookup.
		return apperrors.ErrEventNotFound
	}
	return err
}

func newID() string {
	return uuid.NewString()
}

// storeErr converts an unexpected repository error for return to callers.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrTransient) {
		return err
	}
	return apperrors.ErrInternal.WithCause(fmt.Errorf("%s: %w", op, err))
}

package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// InvitationExpirer flips overdue PENDING invitations to EXPIRED.
type InvitationExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// PromotionFinder lists events with waiting entrants and unoffered seats.
type PromotionFinder interface {
	EventsAwaitingPromotion(ctx context.Context, limit int) ([]string, error)
}

// OfferLapser withdraws waitlist offers left unanswered for longer than ttl
// and returns the affected event ids.
type OfferLapser interface {
	LapseOffers(ctx context.Context, ttl time.Duration, limit int) ([]string, error)
}

// Scheduler accepts promotion requests.
type Scheduler interface {
	Schedule(eventID string) bool
}

// Sweeper periodically expires overdue invitations, withdraws stale
// waitlist offers, and re-schedules promotion for events whose offers were
// dropped or missed.
type Sweeper struct {
	expirer   InvitationExpirer
	lapser    OfferLapser
	offerTTL  time.Duration
	finder    PromotionFinder
	scheduler Scheduler
	log       logrus.FieldLogger
	interval  time.Duration
	batch     int
}

// NewSweeper creates a Sweeper.
func NewSweeper(expirer InvitationExpirer, finder PromotionFinder, scheduler Scheduler, log logrus.FieldLogger, interval time.Duration, batch int) *Sweeper {
	return &Sweeper{
		expirer:   expirer,
		finder:    finder,
		scheduler: scheduler,
		log:       log,
		interval:  interval,
		batch:     batch,
	}
}

// WithOfferLapse enables withdrawal of waitlist offers older than ttl.
// A non-positive ttl leaves offers open indefinitely.
func (s *Sweeper) WithOfferLapse(lapser OfferLapser, ttl time.Duration) *Sweeper {
	if ttl > 0 {
		s.lapser, s.offerTTL = lapser, ttl
	}
	return s
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.expirer.ExpireOverdue(ctx, s.batch)
	if err != nil && ctx.Err() == nil {
		s.log.WithError(err).Error("failed to expire overdue invitations")
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired overdue invitations")
	}

	if s.lapser != nil {
		lapsed, err := s.lapser.LapseOffers(ctx, s.offerTTL, s.batch)
		if err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("failed to lapse stale waitlist offers")
		}
		for _, id := range lapsed {
			s.scheduler.Schedule(id)
		}
		if len(lapsed) > 0 {
			s.log.WithField("events", len(lapsed)).Info("withdrew stale waitlist offers")
		}
	}

	ids, err := s.finder.EventsAwaitingPromotion(ctx, s.batch)
	if err != nil {
		if ctx.Err() == nil {
			s.log.WithError(err).Error("failed to list events awaiting promotion")
		}
		return
	}
	for _, id := range ids {
		s.scheduler.Schedule(id)
	}
	if len(ids) > 0 {
		s.log.WithField("events", len(ids)).Debug("scheduled waitlist promotion")
	}
}

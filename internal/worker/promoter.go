// Package worker runs the background loops of the admission service: the
// promoter that offers freed seats to the waitlist and the sweeper that
// expires overdue invitations.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// WaitlistPromoter offers free seats of an event to its waitlist.
type WaitlistPromoter interface {
	PromoteAll(ctx context.Context, eventID string) ([]model.WaitlistEntry, error)
}

// Promoter serialises promotion requests through a bounded queue. Scheduling
// an event that is already queued is a no-op.
type Promoter struct {
	queue       WaitlistPromoter
	log         logrus.FieldLogger
	maxAttempts int
	baseDelay   time.Duration

	jobs    chan string
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewPromoter creates a Promoter with room for size queued events.
func NewPromoter(queue WaitlistPromoter, log logrus.FieldLogger, size, maxAttempts int) *Promoter {
	if size <= 0 {
		size = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Promoter{
		queue:       queue,
		log:         log,
		maxAttempts: maxAttempts,
		baseDelay:   100 * time.Millisecond,
		jobs:        make(chan string, size),
		pending:     make(map[string]struct{}),
	}
}

// Schedule queues eventID for promotion without blocking. It reports whether
// the event was queued; a full queue drops the request and the sweeper picks
// the event up later.
func (p *Promoter) Schedule(eventID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[eventID]; ok {
		return true
	}
	select {
	case p.jobs <- eventID:
		p.pending[eventID] = struct{}{}
		return true
	default:
		p.log.WithField("event_id", eventID).Warn("promotion queue full, dropping request")
		return false
	}
}

// Run processes scheduled events until ctx is cancelled.
func (p *Promoter) Run(ctx context.Context) error {
	p.log.Info("promoter started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info("promoter stopped")
			return nil
		case eventID := <-p.jobs:
			p.mu.Lock()
			delete(p.pending, eventID)
			p.mu.Unlock()
			p.promote(ctx, eventID)
		}
	}
}

func (p *Promoter) promote(ctx context.Context, eventID string) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay

	offered, err := backoff.Retry(ctx, func() ([]model.WaitlistEntry, error) {
		offered, err := p.queue.PromoteAll(ctx, eventID)
		if err != nil && !errors.Is(err, apperrors.ErrAdmissionUnavailable) {
			return offered, backoff.Permanent(err)
		}
		return offered, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.maxAttempts)))

	entry := p.log.WithField("event_id", eventID)
	if err != nil {
		if ctx.Err() == nil {
			entry.WithError(err).Error("waitlist promotion failed")
		}
		return
	}
	if len(offered) > 0 {
		entry.WithField("offers", len(offered)).Info("waitlist promotion completed")
	}
}

// Package notify delivers admission notifications to external channels.
//
// Delivery is fire-and-forget: Dispatcher sends in the background, and a
// failed send is logged and counted but never reported to the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Kind identifies the template a downstream mailer should use.
type Kind string

const (
	KindInvitation          Kind = "invitation"
	KindInvitationAccepted  Kind = "invitation_accepted"
	KindInvitationDeclined  Kind = "invitation_declined"
	KindWaitlistJoined      Kind = "waitlist_joined"
	KindWaitlistOffer       Kind = "waitlist_offer"
	KindWaitlistOfferLapsed Kind = "waitlist_offer_lapsed"
	KindMembershipConfirmed Kind = "membership_confirmed"
	KindMembershipCancelled Kind = "membership_cancelled"
)

// Notification is one message to one recipient.
type Notification struct {
	Recipient string         `json:"recipient"`
	Kind      Kind           `json:"kind"`
	EventID   string         `json:"event_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sender delivers a notification to a channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	Close() error
}

const defaultSendTimeout = 10 * time.Second

// Dispatcher sends notifications asynchronously.
type Dispatcher struct {
	sender  Sender
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wraps sender.
func NewDispatcher(sender Sender, log logrus.FieldLogger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		log:     log,
		metrics: m,
		timeout: defaultSendTimeout,
	}
}

// Notify schedules n for delivery and returns immediately. Cancellation of
// ctx does not abort the send.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.sender.Send(sendCtx, n); err != nil {
			d.metrics.ObserveNotificationFailure(string(n.Kind))
			d.log.WithFields(logrus.Fields{
				"kind":     n.Kind,
				"event_id": n.EventID,
			}).WithError(err).Warn("notification delivery failed")
		}
	}()
}

// Wait blocks until every scheduled notification has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight sends and closes the sender.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return d.sender.Close()
}

// LogSender writes notifications to the log. It is the default driver when
// no broker is configured.
type LogSender struct {
	log logrus.FieldLogger
}

// NewLogSender creates a LogSender.
func NewLogSender(log logrus.FieldLogger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.WithFields(logrus.Fields{
		"kind":      n.Kind,
		"event_id":  n.EventID,
		"recipient": n.Recipient,
	}).Info("notification")
	return nil
}

func (s *LogSender) Close() error { return nil }

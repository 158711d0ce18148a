// Package service implements the exposed admission operations: input
// validation, orchestration of the admission components, and follow-up work
// such as scheduling waitlist promotion.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/admission"
	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission/internal/validation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Scheduler runs waitlist promotion for an event at some later point.
type Scheduler interface {
	Schedule(eventID string) bool
}

type nopScheduler struct{}

func (nopScheduler) Schedule(string) bool { return false }

// Dependencies are the collaborators of AdmissionService.
type Dependencies struct {
	Store     repository.Store
	Gate      *admission.CapacityGate
	Queue     *admission.WaitlistQueue
	Ledger    *admission.InvitationLedger
	Notifier  admission.Notifier
	Scheduler Scheduler
	Clock     admission.Clock
	Log       logrus.FieldLogger
}

// AdmissionService is the facade handlers talk to.
type AdmissionService struct {
	store     repository.Store
	gate      *admission.CapacityGate
	queue     *admission.WaitlistQueue
	ledger    *admission.InvitationLedger
	notifier  admission.Notifier
	scheduler Scheduler
	clock     admission.Clock
	log       logrus.FieldLogger
	validate  *validation.Validator
}

// NewAdmissionService constructs an AdmissionService with its dependencies.
func NewAdmissionService(deps Dependencies) *AdmissionService {
	s := &AdmissionService{
		store:     deps.Store,
		gate:      deps.Gate,
		queue:     deps.Queue,
		ledger:    deps.Ledger,
		notifier:  deps.Notifier,
		scheduler: deps.Scheduler,
		clock:     deps.Clock,
		log:       deps.Log,
		validate:  validation.New(),
	}
	if s.scheduler == nil {
		s.scheduler = nopScheduler{}
	}
	if s.clock == nil {
		s.clock = admission.SystemClock{}
	}
	if s.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		s.log = l
	}
	return s
}

// ─── Events ──────────────────────────────────────────────────────────────────

// CreateEvent validates the request and stores a new event.
func (s *AdmissionService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	event := &model.Event{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, s.storeFailure("create event", err)
	}
	s.log.WithFields(logrus.Fields{"event_id": event.ID, "capacity": capacityField(event)}).Info("event created")
	return event, nil
}

// ListEvents returns all events.
func (s *AdmissionService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, s.storeFailure("list events", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *AdmissionService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := s.eventID(id); err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, s.storeFailure("get event", err)
	}
	return event, nil
}

// ListMembers returns the event's membership records, confirmed and removed.
func (s *AdmissionService) ListMembers(ctx context.Context, eventID string) ([]model.MembershipRecord, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMemberships(ctx, eventID)
	if err != nil {
		return nil, s.storeFailure("list memberships", err)
	}
	return members, nil
}

// ─── Invitations ─────────────────────────────────────────────────────────────

// SendInvitation issues a PENDING invitation.
func (s *AdmissionService) SendInvitation(ctx context.Context, eventID string, req model.SendInvitationRequest) (*model.Invitation, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.eventID(eventID); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.ledger.Send(ctx, eventID, req.Email, req.ExpiresAt)
}

// AcceptInvitation admits or queues the invitee behind token.
func (s *AdmissionService) AcceptInvitation(ctx context.Context, token string) (model.AcceptOutcome, error) {
	if err := s.token(token); err != nil {
		return model.AcceptOutcome{}, err
	}
	return s.ledger.Accept(ctx, strings.TrimSpace(token))
}

// DeclineInvitation declines the invitation behind token.
func (s *AdmissionService) DeclineInvitation(ctx context.Context, token string) error {
	if err := s.token(token); err != nil {
		return err
	}
	return s.ledger.Decline(ctx, strings.TrimSpace(token))
}

// ─── Waitlist ────────────────────────────────────────────────────────────────

// JoinWaitlist queues an entrant directly. A new entry triggers promotion in
// case the event has seats nobody was offered yet.
func (s *AdmissionService) JoinWaitlist(ctx context.Context, eventID string, req model.JoinWaitlistRequest) (model.JoinResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.eventID(eventID); err != nil {
		return model.JoinResult{}, err
	}
	if err := s.validate.Struct(req); err != nil {
		return model.JoinResult{}, err
	}

	res, err := s.queue.Join(ctx, eventID, req.Email, req.Name, req.Notify)
	if err != nil {
		return model.JoinResult{}, err
	}
	if res.Created {
		s.scheduler.Schedule(eventID)
	}
	return res, nil
}

// LeaveWaitlist removes an entrant. Leaving while holding an offer hands the
// offer to the next entrant.
func (s *AdmissionService) LeaveWaitlist(ctx context.Context, eventID, email string) error {
	email = normalizeEmail(email)
	if err := s.eventID(eventID); err != nil {
		return err
	}
	if err := s.email(email); err != nil {
		return err
	}

	left, err := s.queue.Leave(ctx, eventID, email)
	if err != nil {
		return err
	}
	if left.Status == model.WaitlistInvited {
		s.scheduler.Schedule(eventID)
	}
	return nil
}

// GetWaitlist lists the waitlist of an event.
func (s *AdmissionService) GetWaitlist(ctx context.Context, eventID string, query model.WaitlistQuery) ([]model.WaitlistEntry, error) {
	query.SortBy = strings.ToLower(strings.TrimSpace(query.SortBy))
	query.Status = strings.ToLower(strings.TrimSpace(query.Status))
	if err := s.eventID(eventID); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(query); err != nil {
		return nil, err
	}
	return s.queue.List(ctx, eventID, query)
}

// ConfirmWaitlistOffer completes a promotion for an INVITED entrant.
func (s *AdmissionService) ConfirmWaitlistOffer(ctx context.Context, eventID, email string) (model.AcceptOutcome, error) {
	email = normalizeEmail(email)
	if err := s.eventID(eventID); err != nil {
		return model.AcceptOutcome{}, err
	}
	if err := s.email(email); err != nil {
		return model.AcceptOutcome{}, err
	}
	return s.queue.ConfirmOffer(ctx, eventID, email)
}

// PromoteWaitlist offers every free seat of the event right away and returns
// the entries that received an offer.
func (s *AdmissionService) PromoteWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	if err := s.eventID(eventID); err != nil {
		return nil, err
	}
	offered, err := s.queue.PromoteAll(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if offered == nil {
		offered = []model.WaitlistEntry{}
	}
	return offered, nil
}

// ─── Memberships ─────────────────────────────────────────────────────────────

// CancelMembership releases the member's seat and schedules promotion of the
// waitlist. Promotion is not part of the release transaction.
func (s *AdmissionService) CancelMembership(ctx context.Context, eventID, email string) error {
	email = normalizeEmail(email)
	if err := s.eventID(eventID); err != nil {
		return err
	}
	if err := s.email(email); err != nil {
		return err
	}

	outcome, _, err := s.gate.Release(ctx, eventID, email)
	if err != nil {
		return err
	}
	if outcome == model.NotConfirmed {
		return apperrors.ErrNotConfirmed
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, notify.Notification{
			Recipient: email,
			Kind:      notify.KindMembershipCancelled,
			EventID:   eventID,
		})
	}
	if !s.scheduler.Schedule(eventID) {
		s.log.WithField("event_id", eventID).Debug("promotion not scheduled, sweeper will reconcile")
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *AdmissionService) eventID(id string) error {
	return s.validate.Var("event_id", id, "required,max=64")
}

func (s *AdmissionService) email(email string) error {
	return s.validate.Var("email", email, "required,email,max=254")
}

func (s *AdmissionService) token(token string) error {
	return s.validate.Var("token", strings.TrimSpace(token), "required,max=128")
}

func (s *AdmissionService) storeFailure(op string, err error) error {
	if errors.Is(err, repository.ErrTransient) {
		return apperrors.Unavailable(err)
	}
	s.log.WithError(err).WithField("op", op).Error("store failure")
	return apperrors.ErrInternal.WithCause(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func capacityField(e *model.Event) any {
	if e.Unlimited() {
		return "unlimited"
	}
	return *e.Capacity
}

// SyncScheduler promotes inline. It suits tests and single-shot tools where
// no Promoter is running.
type SyncScheduler struct {
	Queue   *admission.WaitlistQueue
	Timeout time.Duration
	Log     logrus.FieldLogger
}

// Schedule runs PromoteAll for eventID before returning.
func (s SyncScheduler) Schedule(eventID string) bool {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := s.Queue.PromoteAll(ctx, eventID); err != nil {
		if s.Log != nil {
			s.Log.WithField("event_id", eventID).WithError(err).Warn("inline promotion failed")
		}
		return false
	}
	return true
}

// Package model defines the core domain types for event admission.
package model

import (
	"strings"
	"time"
)

// Event is owned outside the admission core; only AdmittedCount is mutated
// here, and only under the per-event lock.
type Event struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Capacity      *int      `json:"capacity"`
	AdmittedCount int       `json:"admitted_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Unlimited reports whether the event has no capacity limit.
func (e *Event) Unlimited() bool {
	return e.Capacity == nil
}

// HasRoom reports whether one more attendee can be admitted.
func (e *Event) HasRoom() bool {
	return e.Capacity == nil || e.AdmittedCount < *e.Capacity
}

// Remaining returns the number of free seats, or -1 for unlimited events.
func (e *Event) Remaining() int {
	if e.Capacity == nil {
		return -1
	}
	if r := *e.Capacity - e.AdmittedCount; r > 0 {
		return r
	}
	return 0
}

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

// Valid reports whether s is a known invitation status.
func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationDeclined, InvitationExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s InvitationStatus) Terminal() bool {
	switch s {
	case InvitationAccepted, InvitationDeclined, InvitationExpired:
		return true
	case InvitationPending:
		return false
	}
	return false
}

// Invitation is a single-use, expiring offer to attend an event.
type Invitation struct {
	ID           string           `json:"id"`
	EventID      string           `json:"event_id"`
	InviteeEmail string           `json:"invitee_email"`
	Token        string           `json:"token,omitempty"`
	Status       InvitationStatus `json:"status"`
	ExpiresAt    time.Time        `json:"expires_at"`
	RespondedAt  *time.Time       `json:"responded_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ExpiredAt reports whether the invitation deadline has passed at now.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// WaitlistStatus is the state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting    WaitlistStatus = "WAITING"
	WaitlistInvited    WaitlistStatus = "INVITED"
	WaitlistRegistered WaitlistStatus = "REGISTERED"
	WaitlistRemoved    WaitlistStatus = "REMOVED"
)

// Valid reports whether s is a known waitlist status.
func (s WaitlistStatus) Valid() bool {
	switch s {
	case WaitlistWaiting, WaitlistInvited, WaitlistRegistered, WaitlistRemoved:
		return true
	}
	return false
}

// Active reports whether entries in this state hold a queue position.
func (s WaitlistStatus) Active() bool {
	switch s {
	case WaitlistWaiting, WaitlistInvited:
		return true
	case WaitlistRegistered, WaitlistRemoved:
		return false
	}
	return false
}

// ParseWaitlistStatus converts a case-insensitive label to a status.
func ParseWaitlistStatus(label string) (WaitlistStatus, bool) {
	s := WaitlistStatus(strings.ToUpper(strings.TrimSpace(label)))
	return s, s.Valid()
}

// WaitlistEntry is a queued entrant. Position is meaningful only while the
// entry is active.
type WaitlistEntry struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	InviteeEmail string         `json:"invitee_email"`
	Name         string         `json:"name,omitempty"`
	Position     int            `json:"position"`
	Status       WaitlistStatus `json:"status"`
	JoinedAt     time.Time      `json:"joined_at"`
	OfferedAt    *time.Time     `json:"offered_at,omitempty"`
	Seq          int64          `json:"-"`
}

// MembershipStatus is the state of a membership record.
type MembershipStatus string

const (
	MembershipConfirmed MembershipStatus = "CONFIRMED"
	MembershipRemoved   MembershipStatus = "REMOVED"
)

// Valid reports whether s is a known membership status.
func (s MembershipStatus) Valid() bool {
	return s == MembershipConfirmed || s == MembershipRemoved
}

// Default roles assigned on admission.
const (
	RoleAttendee = "attendee"
)

// MembershipRecord is the durable record of confirmed participation.
type MembershipRecord struct {
	ID           string           `json:"id"`
	EventID      string           `json:"event_id"`
	InviteeEmail string           `json:"invitee_email"`
	Status       MembershipStatus `json:"status"`
	Role         string           `json:"role"`
	CreatedAt    time.Time        `json:"created_at"`
	RemovedAt    *time.Time       `json:"removed_at,omitempty"`
}

// DecisionKind is the result of a capacity check.
type DecisionKind int

const (
	DecisionAdmitted DecisionKind = iota + 1
	DecisionQueued
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAdmitted:
		return "admitted"
	case DecisionQueued:
		return "queued"
	}
	return "unknown"
}

// Decision is what the capacity gate returns for one admit call.
// Membership is set only when Kind is DecisionAdmitted.
type Decision struct {
	Kind       DecisionKind
	Membership *MembershipRecord
	// Existing is true when the identity was already confirmed and no
	// counter was touched.
	Existing bool
}

// ReleaseOutcome is the result of releasing a seat.
type ReleaseOutcome int

const (
	Released ReleaseOutcome = iota + 1
	NotConfirmed
)

func (o ReleaseOutcome) String() string {
	switch o {
	case Released:
		return "released"
	case NotConfirmed:
		return "not_confirmed"
	}
	return "unknown"
}

// Outcome labels used in AcceptOutcome.
const (
	OutcomeAdmitted = "admitted"
	OutcomeQueued   = "queued"
)

// AcceptOutcome is returned when an invitee accepts an invitation or a
// waitlist offer. Position is set only for queued outcomes.
type AcceptOutcome struct {
	Outcome    string            `json:"outcome"`
	EventID    string            `json:"event_id"`
	Email      string            `json:"email"`
	Position   int               `json:"position,omitempty"`
	Membership *MembershipRecord `json:"membership,omitempty"`
}

// Admitted reports whether the outcome granted a seat.
func (o AcceptOutcome) Admitted() bool {
	return o.Outcome == OutcomeAdmitted
}

// JoinResult is returned by a waitlist join.
type JoinResult struct {
	Entry   WaitlistEntry `json:"entry"`
	Created bool          `json:"created"`
}

// ─── Request payloads ────────────────────────────────────────────────────────

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Capacity    *int   `json:"capacity" validate:"omitempty,gt=0,lte=100000"`
}

// SendInvitationRequest is the payload for inviting someone to an event.
type SendInvitationRequest struct {
	Email     string     `json:"email" validate:"required,email,max=254"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// JoinWaitlistRequest is the payload for joining a waitlist directly.
type JoinWaitlistRequest struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	Name   string `json:"name" validate:"max=200"`
	Notify bool   `json:"notify"`
}

// WaitlistQuery selects and orders waitlist entries.
type WaitlistQuery struct {
	SortBy string `validate:"omitempty,oneof=position joined_at name email"`
	Status string `validate:"omitempty,oneof=active all waiting invited registered removed"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the machine code and message of a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

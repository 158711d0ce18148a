// Package apperrors defines the error taxonomy of the admission core.
//
// Services return these errors (possibly wrapped); handlers match them with
// errors.Is, which compares by Code, and render HTTPStatus.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodeExpired              Code = "EXPIRED"
	CodeAlreadyResponded     Code = "ALREADY_RESPONDED"
	CodeNotConfirmed         Code = "NOT_CONFIRMED"
	CodeNotOffered           Code = "NOT_OFFERED"
	CodeValidation           Code = "VALIDATION"
	CodeAdmissionUnavailable Code = "ADMISSION_UNAVAILABLE"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeInternal             Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code for c.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyResponded, CodeNotConfirmed, CodeNotOffered:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAdmissionUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with per-field details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Unavailable wraps a persistence failure that survived the retry budget.
func Unavailable(cause error) *Error {
	return ErrAdmissionUnavailable.WithCause(cause)
}

// Sentinel errors for use with errors.Is.
var (
	ErrEventNotFound        = New(CodeNotFound, "event not found")
	ErrInvitationNotFound   = New(CodeNotFound, "invitation not found")
	ErrEntryNotFound        = New(CodeNotFound, "waitlist entry not found")
	ErrDuplicateInvitation  = New(CodeConflict, "a pending invitation already exists for this invitee")
	ErrAlreadyMember        = New(CodeConflict, "invitee is already a confirmed member of this event")
	ErrInvitationExpired    = New(CodeExpired, "invitation has expired")
	ErrAlreadyResponded     = New(CodeAlreadyResponded, "invitation has already been responded to")
	ErrNotConfirmed         = New(CodeNotConfirmed, "invitee is not a confirmed member of this event")
	ErrNotOffered           = New(CodeNotOffered, "waitlist entry has not been offered a seat")
	ErrValidation           = New(CodeValidation, "validation error")
	ErrAdmissionUnavailable = New(CodeAdmissionUnavailable, "admission is temporarily unavailable, retry later")
	ErrRateLimited          = New(CodeRateLimited, "too many requests")
	ErrInternal             = New(CodeInternal, "internal error")
)

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

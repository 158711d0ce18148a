// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// AdmissionHandler holds all HTTP handlers for the admission API.
type AdmissionHandler struct {
	svc *service.AdmissionService
	log logrus.FieldLogger
}

// NewAdmissionHandler constructs an AdmissionHandler.
func NewAdmissionHandler(svc *service.AdmissionService, log logrus.FieldLogger) *AdmissionHandler {
	return &AdmissionHandler{svc: svc, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err in the error envelope. Errors outside the apperrors
// taxonomy become a bare 500 so internals never leak to clients.
func (h *AdmissionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.ErrInternal.WithCause(err)
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request error")
	}
	writeJSON(w, status, errorBody(appErr))
}

func errorBody(e *apperrors.Error) model.ErrorResponse {
	return model.ErrorResponse{Error: model.ErrorBody{
		Code:    string(e.Code),
		Message: e.Message,
		Details: e.Details,
	}}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Validation("invalid request body: " + err.Error())
	}
	return nil
}

func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a new event; capacity may be omitted for an unlimited event.
func (h *AdmissionHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *AdmissionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *AdmissionHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ListMembers handles GET /events/{id}/members
func (h *AdmissionHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if members == nil {
		members = []model.MembershipRecord{}
	}

	writeJSON(w, http.StatusOK, members)
}

// CancelMembership handles DELETE /events/{id}/members/{email}
// Frees the member's seat; the waitlist is promoted in the background.
func (h *AdmissionHandler) CancelMembership(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelMembership(r.Context(), pathParam(r, "id"), pathParam(r, "email")); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ─── Invitations ──────────────────────────────────────────────────────────────

// SendInvitation handles POST /events/{id}/invitations
// The response carries the token; delivery to the invitee goes through the
// configured notification driver.
func (h *AdmissionHandler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	var req model.SendInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	inv, err := h.svc.SendInvitation(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

// AcceptInvitation handles POST /invitations/{token}/accept
func (h *AdmissionHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.AcceptInvitation(r.Context(), pathParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// DeclineInvitation handles POST /invitations/{token}/decline
func (h *AdmissionHandler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeclineInvitation(r.Context(), pathParam(r, "token")); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.InvitationDeclined)})
}

// ─── Waitlist ─────────────────────────────────────────────────────────────────

// GetWaitlist handles GET /events/{id}/waitlist?sort=&status=
func (h *AdmissionHandler) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.svc.GetWaitlist(r.Context(), pathParam(r, "id"), model.WaitlistQuery{
		SortBy: q.Get("sort"),
		Status: q.Get("status"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.WaitlistEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// JoinWaitlist handles POST /events/{id}/waitlist
// Responds 201 for a new entry and 200 when the entrant was already queued.
func (h *AdmissionHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req model.JoinWaitlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.JoinWaitlist(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// LeaveWaitlist handles DELETE /events/{id}/waitlist/{email}
func (h *AdmissionHandler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.LeaveWaitlist(r.Context(), pathParam(r, "id"), pathParam(r, "email")); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ConfirmWaitlistOffer handles POST /events/{id}/waitlist/{email}/confirm
func (h *AdmissionHandler) ConfirmWaitlistOffer(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ConfirmWaitlistOffer(r.Context(), pathParam(r, "id"), pathParam(r, "email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// PromoteWaitlist handles POST /events/{id}/waitlist/promote
// Offers every free seat immediately instead of waiting for the promoter.
func (h *AdmissionHandler) PromoteWaitlist(w http.ResponseWriter, r *http.Request) {
	offered, err := h.svc.PromoteWaitlist(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"offered": offered})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

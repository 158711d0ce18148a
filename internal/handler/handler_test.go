package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/admission"
	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository/memstore"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	t      *testing.T
	server *httptest.Server
}

func newAPI(t *testing.T) *api {
	t.Helper()
	return newAPIWith(t, RouterConfig{})
}

func newAPIWith(t *testing.T, cfg RouterConfig) *api {
	t.Helper()
	log := logger.Discard()
	m := metrics.New()
	store := memstore.New()
	deps := admission.Deps{Store: store, Log: log, Metrics: m}
	gate := admission.NewCapacityGate(deps, nil)
	queue := admission.NewWaitlistQueue(deps, gate)
	ledger := admission.NewInvitationLedger(deps, gate, queue, time.Hour)
	svc := service.NewAdmissionService(service.Dependencies{
		Store:     store,
		Gate:      gate,
		Queue:     queue,
		Ledger:    ledger,
		Scheduler: service.SyncScheduler{Queue: queue},
		Log:       log,
	})

	cfg.Metrics = m.Handler()
	srv := httptest.NewServer(NewRouter(NewAdmissionHandler(svc, log), log, cfg))
	t.Cleanup(srv.Close)
	return &api{t: t, server: srv}
}

func (a *api) do(method, path string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *api) createEvent(capacity *int) model.Event {
	a.t.Helper()
	var ev model.Event
	status := a.do(http.MethodPost, "/events", map[string]any{"name": "Launch", "capacity": capacity}, &ev)
	require.Equal(a.t, http.StatusCreated, status)
	return ev
}

func (a *api) invite(eventID, email string) model.Invitation {
	a.t.Helper()
	var inv model.Invitation
	status := a.do(http.MethodPost, "/events/"+eventID+"/invitations", map[string]any{"email": email}, &inv)
	require.Equal(a.t, http.StatusCreated, status)
	return inv
}

func intPtr(n int) *int { return &n }

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(a.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsEndpoints(t *testing.T) {
	a := newAPI(t)

	var list []model.Event
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events", nil, &list))
	assert.Empty(t, list)

	ev := a.createEvent(intPtr(10))

	var got model.Event
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID, nil, &got))
	assert.Equal(t, ev.ID, got.ID)

	var errBody model.ErrorResponse
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/events/unknown", nil, &errBody))
	assert.Equal(t, "NOT_FOUND", errBody.Error.Code)
}

func TestCreateEvent_Rejections(t *testing.T) {
	a := newAPI(t)

	var errBody model.ErrorResponse
	status := a.do(http.MethodPost, "/events", map[string]any{"name": "x", "capacity": 0}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", errBody.Error.Code)
	assert.NotNil(t, errBody.Error.Details)

	status = a.do(http.MethodPost, "/events", map[string]any{"name": "x", "venue": "moon"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestInvitationFlow(t *testing.T) {
	a := newAPI(t)
	ev := a.createEvent(intPtr(1))

	first := a.invite(ev.ID, "a@example.com")
	second := a.invite(ev.ID, "b@example.com")
	assert.NotEmpty(t, first.Token)

	var errBody model.ErrorResponse
	status := a.do(http.MethodPost, "/events/"+ev.ID+"/invitations", map[string]any{"email": "a@example.com"}, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errBody.Error.Code)

	var out model.AcceptOutcome
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/invitations/"+first.Token+"/accept", nil, &out))
	assert.Equal(t, model.OutcomeAdmitted, out.Outcome)

	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/invitations/"+second.Token+"/accept", nil, &out))
	assert.Equal(t, model.OutcomeQueued, out.Outcome)
	assert.Equal(t, 1, out.Position)

	status = a.do(http.MethodPost, "/invitations/"+first.Token+"/decline", nil, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_RESPONDED", errBody.Error.Code)

	status = a.do(http.MethodPost, "/invitations/unknown-token/accept", nil, &errBody)
	assert.Equal(t, http.StatusNotFound, status)

	var waitlist []model.WaitlistEntry
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID+"/waitlist", nil, &waitlist))
	require.Len(t, waitlist, 1)
	assert.Equal(t, "b@example.com", waitlist[0].InviteeEmail)

	// Cancelling a's seat offers it to b, who then confirms.
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/events/"+ev.ID+"/members/a@example.com", nil, nil))

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID+"/waitlist?status=invited", nil, &waitlist))
	require.Len(t, waitlist, 1)

	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/events/"+ev.ID+"/waitlist/b@example.com/confirm", nil, &out))
	assert.Equal(t, model.OutcomeAdmitted, out.Outcome)

	var members []model.MembershipRecord
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID+"/members", nil, &members))
	assert.Len(t, members, 2)

	status = a.do(http.MethodDelete, "/events/"+ev.ID+"/members/a@example.com", nil, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NOT_CONFIRMED", errBody.Error.Code)
}

func TestDeclineInvitation(t *testing.T) {
	a := newAPI(t)
	ev := a.createEvent(nil)
	inv := a.invite(ev.ID, "a@example.com")

	var body map[string]string
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/invitations/"+inv.Token+"/decline", nil, &body))
	assert.Equal(t, "DECLINED", body["status"])
}

func TestWaitlistEndpoints(t *testing.T) {
	a := newAPI(t)
	ev := a.createEvent(intPtr(1))

	// Fill the only seat so direct joins stay WAITING.
	inv := a.invite(ev.ID, "member@example.com")
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/invitations/"+inv.Token+"/accept", nil, nil))

	var res model.JoinResult
	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/events/"+ev.ID+"/waitlist", map[string]any{"email": "a@example.com", "name": "Ada"}, &res))
	assert.Equal(t, 1, res.Entry.Position)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/events/"+ev.ID+"/waitlist", map[string]any{"email": "a@example.com"}, &res))
	assert.False(t, res.Created)
	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/events/"+ev.ID+"/waitlist", map[string]any{"email": "b@example.com", "name": "Bob"}, &res))

	var errBody model.ErrorResponse
	status := a.do(http.MethodPost, "/events/"+ev.ID+"/waitlist", map[string]any{"email": "member@example.com"}, &errBody)
	assert.Equal(t, http.StatusConflict, status)

	status = a.do(http.MethodPost, "/events/"+ev.ID+"/waitlist/a@example.com/confirm", nil, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NOT_OFFERED", errBody.Error.Code)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/events/"+ev.ID+"/waitlist/a@example.com", nil, nil))
	status = a.do(http.MethodDelete, "/events/"+ev.ID+"/waitlist/a@example.com", nil, &errBody)
	assert.Equal(t, http.StatusNotFound, status)

	var entries []model.WaitlistEntry
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID+"/waitlist?status=all&sort=name", nil, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "a@example.com", entries[0].InviteeEmail)
	assert.Equal(t, model.WaitlistRemoved, entries[0].Status)

	status = a.do(http.MethodGet, "/events/"+ev.ID+"/waitlist?sort=shoe_size", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)

	var promoted struct {
		Offered []model.WaitlistEntry `json:"offered"`
	}
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/events/"+ev.ID+"/waitlist/promote", nil, &promoted))
	assert.Empty(t, promoted.Offered)
}

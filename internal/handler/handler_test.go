package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-gate/internal/ledger"
	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/parking"
	"github.com/iliyamo/parking-gate/internal/repository"
	"github.com/iliyamo/parking-gate/internal/repository/memory"
	"github.com/iliyamo/parking-gate/internal/slot"
)

type fakeDecider struct {
	got model.GateEvent
	err error
}

func (f *fakeDecider) Handle(_ context.Context, ev model.GateEvent) (model.Decision, error) {
	f.got = ev
	d := model.Decision{EventID: ev.ID, CredentialID: ev.CredentialID, Direction: ev.Direction, Reason: parking.Code(f.err)}
	if f.err == nil {
		d.Allowed, d.Command = true, model.CommandOpen
	} else {
		d.Command = model.CommandUnauthorized
	}
	return d, f.err
}

type fakePublisher struct {
	sent []model.Decision
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, d model.Decision) error {
	p.sent = append(p.sent, d)
	return p.err
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPostEventJSON(t *testing.T) {
	engine := &fakeDecider{}
	pub := &fakePublisher{}
	e := echo.New()
	e.POST("/v1/gate/events", NewGateHandler(engine, pub, 0).PostEvent)

	rec := postJSON(e, "/v1/gate/events", `{"credential_id":"1","direction":"ENTRY","occurred_at":"2024-05-01T08:00:00Z","event_id":"ev-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var d model.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.True(t, d.Allowed)
	assert.Equal(t, "ev-1", d.EventID)

	assert.Equal(t, model.DirectionEntry, engine.got.Direction)
	assert.Equal(t, model.SourceHTTP, engine.got.Source)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), engine.got.OccurredAt.UTC())
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "entry:open", pub.sent[0].Wire())
}

func TestPostEventLegacyForm(t *testing.T) {
	engine := &fakeDecider{}
	e := echo.New()
	e.POST("/rfid", NewGateHandler(engine, nil, 0).PostEvent)

	form := url.Values{"rfid": {"1"}, "gate": {"exit"}}
	req := httptest.NewRequest(http.MethodPost, "/rfid", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", engine.got.CredentialID)
	assert.Equal(t, model.DirectionExit, engine.got.Direction)
	assert.NotEmpty(t, engine.got.ID)
}

func TestPostEventDenialStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{parking.ErrUnknownCredential, http.StatusNotFound},
		{parking.ErrOwnerNotPermitted, http.StatusForbidden},
		{parking.ErrFacilityFull, http.StatusConflict},
		{parking.ErrDuplicateEntry, http.StatusConflict},
		{parking.ErrNoActiveSession, http.StatusConflict},
		{parking.ErrInvalidEvent, http.StatusBadRequest},
		{parking.ErrClockSkew, http.StatusUnprocessableEntity},
		{parking.Unavailable(errors.New("timeout")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(parking.Code(tt.err), func(t *testing.T) {
			pub := &fakePublisher{}
			e := echo.New()
			e.POST("/v1/gate/events", NewGateHandler(&fakeDecider{err: tt.err}, pub, 0).PostEvent)

			rec := postJSON(e, "/v1/gate/events", `{"credential_id":"1","direction":"entry"}`)
			assert.Equal(t, tt.status, rec.Code)
			var d model.Decision
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
			assert.False(t, d.Allowed)
			assert.Equal(t, parking.Code(tt.err), d.Reason)
			require.Len(t, pub.sent, 1)
		})
	}
}

func TestPostEventBadInput(t *testing.T) {
	engine := &fakeDecider{}
	e := echo.New()
	e.POST("/v1/gate/events", NewGateHandler(engine, nil, 0).PostEvent)

	assert.Equal(t, http.StatusBadRequest, postJSON(e, "/v1/gate/events", `{"credential_id":`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(e, "/v1/gate/events", `{"credential_id":"1","direction":"entry","occurred_at":"yesterday"}`).Code)
	assert.Empty(t, engine.got.CredentialID)
}

func TestPublishFailureDoesNotChangeResponse(t *testing.T) {
	e := echo.New()
	e.POST("/v1/gate/events", NewGateHandler(&fakeDecider{}, &fakePublisher{err: errors.New("broker down")}, 0).PostEvent)
	assert.Equal(t, http.StatusOK, postJSON(e, "/v1/gate/events", `{"credential_id":"1","direction":"entry"}`).Code)
}

type stalledPublisher struct {
	hadDeadline bool
}

func (p *stalledPublisher) Publish(ctx context.Context, _ model.Decision) error {
	_, p.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledBrokerDoesNotHoldResponse(t *testing.T) {
	pub := &stalledPublisher{}
	e := echo.New()
	e.POST("/v1/gate/events", NewGateHandler(&fakeDecider{}, pub, 50*time.Millisecond).PostEvent)

	start := time.Now()
	rec := postJSON(e, "/v1/gate/events", `{"credential_id":"1","direction":"entry"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, pub.hadDeadline)
}

func TestInvalidDirectionIsNotPublished(t *testing.T) {
	pub := &fakePublisher{}
	e := echo.New()
	e.POST("/v1/gate/events", NewGateHandler(&fakeDecider{err: parking.ErrInvalidEvent}, pub, 0).PostEvent)

	for _, body := range []string{
		`{"credential_id":"1","direction":"sideways"}`,
		`{"credential_id":"1"}`,
	} {
		rec := postJSON(e, "/v1/gate/events", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		var d model.Decision
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
		assert.Equal(t, parking.Code(parking.ErrInvalidEvent), d.Reason)
	}
	assert.Empty(t, pub.sent)
}

func TestStatusOfUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
	assert.Equal(t, http.StatusOK, statusOf(nil))
}

type downStore struct{ err error }

func (s downStore) Ping(context.Context) error { return s.err }

func TestHealthAndReady(t *testing.T) {
	e := echo.New()
	up := NewHealthHandler(downStore{})
	down := NewHealthHandler(downStore{err: errors.New("dial tcp: refused")})
	e.GET("/healthz", up.Health)
	e.GET("/readyz", up.Ready)
	e.GET("/readyz-down", down.Ready)

	for path, status := range map[string]int{"/healthz": 200, "/readyz": 200, "/readyz-down": 503} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, status, rec.Code, path)
	}
}

// hungCredentials never answers until its context ends.
type hungCredentials struct{ repository.CredentialRepository }

func (hungCredentials) GetByID(ctx context.Context, _ string) (model.Credential, error) {
	<-ctx.Done()
	return model.Credential{}, ctx.Err()
}

func (hungCredentials) List(ctx context.Context) ([]model.Credential, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCredentialCallsAreBounded(t *testing.T) {
	creds := repository.WithTimeout(hungCredentials{}, 50*time.Millisecond)
	store := memory.New()
	admin := NewAdminHandler(slot.NewRegistry(store.Slots(), 2, 0, nil, nil), ledger.New(store, ledger.Options{}), creds)

	e := echo.New()
	e.POST("/v1/auth/login", NewAuthHandler(creds, "secret", 5).Login)
	e.GET("/v1/admin/credentials", admin.ListCredentials)

	start := time.Now()
	rec := postJSON(e, "/v1/auth/login", `{"credential_id":"1","role":"user"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/credentials", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Less(t, time.Since(start), 2*time.Second)
}

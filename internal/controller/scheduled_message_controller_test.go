package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/logger"
	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/service"
)

type stubScheduler struct {
	err error

	userID string
	one    service.ScheduleInput
	bulk   service.BulkInput
	patch  model.ScheduledMessagePatch
	id     string
}

func (s *stubScheduler) ScheduleOne(ctx context.Context, userID string, in service.ScheduleInput) (*model.ScheduledMessage, error) {
	s.userID, s.one = userID, in
	if s.err != nil {
		return nil, s.err
	}
	return &model.ScheduledMessage{ID: "m-1", UserID: userID, ToEmail: in.ToEmail.UnwrapOr(""), Status: model.StatusPending}, nil
}

func (s *stubScheduler) ScheduleBulk(ctx context.Context, userID string, in service.BulkInput) ([]*model.ScheduledMessage, error) {
	s.userID, s.bulk = userID, in
	if s.err != nil {
		return nil, s.err
	}
	out := []*model.ScheduledMessage{}
	for i, m := range in.Messages {
		if m.ToEmail.IsSome() {
			out = append(out, &model.ScheduledMessage{ID: "m-" + string(rune('a'+i)), ToEmail: m.ToEmail.UnwrapOr("")})
		}
	}
	return out, nil
}

func (s *stubScheduler) Get(ctx context.Context, userID, id string) (*model.ScheduledMessage, error) {
	s.userID, s.id = userID, id
	if s.err != nil {
		return nil, s.err
	}
	return &model.ScheduledMessage{ID: id, UserID: userID}, nil
}

func (s *stubScheduler) Update(ctx context.Context, userID, id string, patch model.ScheduledMessagePatch) (*model.ScheduledMessage, error) {
	s.userID, s.id, s.patch = userID, id, patch
	if s.err != nil {
		return nil, s.err
	}
	return &model.ScheduledMessage{ID: id, UserID: userID}, nil
}

func (s *stubScheduler) Delete(ctx context.Context, userID, id string) error {
	s.userID, s.id = userID, id
	return s.err
}

type stubDispatcher struct {
	err error
	loc *time.Location
}

func (d *stubDispatcher) SendNow(ctx context.Context, id, userID string) (*model.ScheduledMessage, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &model.ScheduledMessage{ID: id, UserID: userID, Status: model.StatusSent, IsFollowedUp: true}, nil
}

func (d *stubDispatcher) ListDueToday(ctx context.Context, userID string, loc *time.Location) ([]*model.ScheduledMessage, error) {
	d.loc = loc
	if d.err != nil {
		return nil, d.err
	}
	return []*model.ScheduledMessage{
		{ID: "m-1", ToEmail: "a@x.com"},
		{ID: "m-2", ToEmail: "Lead", Unresolved: true},
	}, nil
}

type okPinger struct{ err error }

func (p okPinger) PingContext(ctx context.Context) error { return p.err }

func newTestRouter(s *stubScheduler, d *stubDispatcher) http.Handler {
	log := logger.Discard()
	return NewRouter(
		&ScheduledMessageController{Scheduler: s, Dispatcher: d, Location: time.UTC, Log: log},
		&CampaignController{CampaignService: &service.CampaignService{CampaignRepo: newFakeCampaignRepo(0)}, Log: log},
		&HealthController{DB: okPinger{}, Log: log},
		log,
	)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var asUser = map[string]string{HeaderUserID: "user-1"}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestScheduledMessages_RequireUser(t *testing.T) {
	h := newTestRouter(&stubScheduler{}, &stubDispatcher{})

	rec := do(t, h, http.MethodGet, "/scheduled-messages/due-today", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.CodeUnauthorized, decodeError(t, rec).Code)
}

func TestCreate(t *testing.T) {
	s := &stubScheduler{}
	h := newTestRouter(s, &stubDispatcher{})

	rec := do(t, h, http.MethodPost, "/scheduled-messages", `{
		"account_id": "acct-1",
		"conversation_id": "",
		"to_email": "a@x.com",
		"subject": "Hi",
		"send_at": "2026-03-02T09:00:00Z"
	}`, asUser)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", s.userID)
	assert.Equal(t, fn.Some("acct-1"), s.one.AccountID)
	assert.True(t, s.one.ConversationID.IsNone())
	assert.Equal(t, fn.Some(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)), s.one.SendAt)

	var msg map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, "a@x.com", msg["to_email"])
	assert.Nil(t, msg["account_id"])
}

func TestCreate_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{appErrors.ErrMissingSendAt, http.StatusBadRequest, appErrors.CodeMissingSendAt},
		{appErrors.ErrUnresolvedRecipient, http.StatusBadRequest, appErrors.CodeUnresolvedRecipient},
		{appErrors.ErrAccountNotFound, http.StatusBadRequest, appErrors.CodeAccountNotFound},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, appErrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newTestRouter(&stubScheduler{err: tt.err}, &stubDispatcher{})

			rec := do(t, h, http.MethodPost, "/scheduled-messages", `{"to_email":"a@x.com"}`, asUser)

			assert.Equal(t, tt.status, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, tt.code, detail.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", detail.Message)
			}
		})
	}
}

func TestCreate_MalformedBody(t *testing.T) {
	h := newTestRouter(&stubScheduler{}, &stubDispatcher{})

	rec := do(t, h, http.MethodPost, "/scheduled-messages", `{"send_at": "tomorrow"}`, asUser)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.CodeInvalidInput, decodeError(t, rec).Code)
}

func TestCreateBulk(t *testing.T) {
	s := &stubScheduler{}
	h := newTestRouter(s, &stubDispatcher{})

	rec := do(t, h, http.MethodPost, "/scheduled-messages/bulk", `{
		"account_id": "acct-1",
		"send_at": "2026-03-02T09:00:00Z",
		"messages": [
			{"to_email": "one@x.com", "subject": "1"},
			{"subject": "2"},
			{"to_email": "three@x.com", "subject": "3"}
		]
	}`, asUser)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, s.bulk.Messages, 3)

	var body struct {
		Count int              `json:"count"`
		Data  []map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Data, 2)
}

func TestDueToday_UsesCallerTimezone(t *testing.T) {
	d := &stubDispatcher{}
	h := newTestRouter(&stubScheduler{}, d)

	rec := do(t, h, http.MethodGet, "/scheduled-messages/due-today", "",
		map[string]string{HeaderUserID: "user-1", HeaderTimezone: "Africa/Nairobi"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Africa/Nairobi", d.loc.String())

	var msgs []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, true, msgs[1]["unresolved"])
	_, flagged := msgs[0]["unresolved"]
	assert.False(t, flagged)
}

func TestDueToday_DefaultAndInvalidTimezone(t *testing.T) {
	d := &stubDispatcher{}
	h := newTestRouter(&stubScheduler{}, d)

	rec := do(t, h, http.MethodGet, "/scheduled-messages/due-today", "", asUser)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.UTC, d.loc)

	rec = do(t, h, http.MethodGet, "/scheduled-messages/due-today", "",
		map[string]string{HeaderUserID: "user-1", HeaderTimezone: "Mars/Olympus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdate_DistinguishesNullFromAbsent(t *testing.T) {
	s := &stubScheduler{}
	h := newTestRouter(s, &stubDispatcher{})

	rec := do(t, h, http.MethodPatch, "/scheduled-messages/m-9", `{"cc_email": null, "subject": "New"}`, asUser)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m-9", s.id)
	assert.Equal(t, fn.Some(fn.None[string]()), s.patch.CcEmail)
	assert.Equal(t, fn.Some("New"), s.patch.Subject)
	assert.True(t, s.patch.AccountID.IsNone())
	assert.True(t, s.patch.ToEmail.IsNone())
	assert.True(t, s.patch.SendAt.IsNone())
}

func TestUpdate_NotFound(t *testing.T) {
	h := newTestRouter(&stubScheduler{err: appErrors.ErrNotFound}, &stubDispatcher{})

	rec := do(t, h, http.MethodPatch, "/scheduled-messages/m-1", `{"subject": "x"}`, asUser)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, appErrors.CodeNotFound, decodeError(t, rec).Code)
}

func TestDelete(t *testing.T) {
	s := &stubScheduler{}
	h := newTestRouter(s, &stubDispatcher{})

	rec := do(t, h, http.MethodDelete, "/scheduled-messages/m-1", "", asUser)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "m-1", s.id)

	s.err = appErrors.ErrNotFound
	rec = do(t, h, http.MethodDelete, "/scheduled-messages/m-1", "", asUser)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{nil, http.StatusOK, ""},
		{appErrors.ErrNotFound, http.StatusNotFound, appErrors.CodeNotFound},
		{appErrors.ErrAlreadySent, http.StatusConflict, appErrors.CodeAlreadySent},
		{appErrors.ErrAccountMissing, http.StatusUnprocessableEntity, appErrors.CodeAccountMissing},
		{appErrors.NewTransportError(errors.New("dial tcp: i/o timeout")), http.StatusBadGateway, appErrors.CodeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newTestRouter(&stubScheduler{}, &stubDispatcher{err: tt.err})

			rec := do(t, h, http.MethodPost, "/scheduled-messages/m-1/send", "", asUser)

			assert.Equal(t, tt.status, rec.Code)
			if tt.err != nil {
				detail := decodeError(t, rec)
				assert.Equal(t, tt.code, detail.Code)
				assert.NotEqual(t, "internal server error", detail.Message)
			}
		})
	}
}

func TestGet(t *testing.T) {
	s := &stubScheduler{}
	h := newTestRouter(s, &stubDispatcher{})

	rec := do(t, h, http.MethodGet, "/scheduled-messages/m-3", "", asUser)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m-3", s.id)
}

func TestHealth(t *testing.T) {
	log := logger.Discard()
	c := &HealthController{DB: okPinger{err: errors.New("down")}, Log: log}

	rec := httptest.NewRecorder()
	c.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, newTestRouter(&stubScheduler{}, &stubDispatcher{}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lightningnetwork/lnd/fn/v2"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/service"
)

// Scheduler is the scheduling surface the controller drives.
type Scheduler interface {
	ScheduleOne(ctx context.Context, userID string, in service.ScheduleInput) (*model.ScheduledMessage, error)
	ScheduleBulk(ctx context.Context, userID string, in service.BulkInput) ([]*model.ScheduledMessage, error)
	Get(ctx context.Context, userID, id string) (*model.ScheduledMessage, error)
	Update(ctx context.Context, userID, id string, patch model.ScheduledMessagePatch) (*model.ScheduledMessage, error)
	Delete(ctx context.Context, userID, id string) error
}

// Dispatcher is the dispatch surface the controller drives.
type Dispatcher interface {
	SendNow(ctx context.Context, id, userID string) (*model.ScheduledMessage, error)
	ListDueToday(ctx context.Context, userID string, loc *time.Location) ([]*model.ScheduledMessage, error)
}

type ScheduledMessageController struct {
	Scheduler  Scheduler
	Dispatcher Dispatcher
	Location   *time.Location
	Log        *slog.Logger
}

type scheduleRequest struct {
	AccountID      *string            `json:"account_id"`
	ConversationID *string            `json:"conversation_id"`
	ToEmail        *string            `json:"to_email"`
	CcEmail        *string            `json:"cc_email"`
	Subject        string             `json:"subject"`
	BodyHTML       string             `json:"body_html"`
	SendAt         *time.Time         `json:"send_at"`
	Attachments    []model.Attachment `json:"attachments"`
	LeadStatus     string             `json:"lead_status"`
}

type bulkEntryRequest struct {
	ConversationID *string            `json:"conversation_id"`
	ToEmail        *string            `json:"to_email"`
	CcEmail        *string            `json:"cc_email"`
	Subject        string             `json:"subject"`
	BodyHTML       string             `json:"body_html"`
	Attachments    []model.Attachment `json:"attachments"`
	LeadStatus     string             `json:"lead_status"`
}

type bulkRequest struct {
	AccountID *string            `json:"account_id"`
	SendAt    *time.Time         `json:"send_at"`
	Messages  []bulkEntryRequest `json:"messages"`
}

type bulkResponse struct {
	Count int                       `json:"count"`
	Data  []*model.ScheduledMessage `json:"data"`
}

func optional(p *string) fn.Option[string] {
	if p == nil {
		return fn.None[string]()
	}
	return model.OptionFromString(*p)
}

func optionalTime(p *time.Time) fn.Option[time.Time] {
	if p == nil || p.IsZero() {
		return fn.None[time.Time]()
	}
	return fn.Some(*p)
}

func (c *ScheduledMessageController) Create(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	msg, err := c.Scheduler.ScheduleOne(r.Context(), UserID(r.Context()), service.ScheduleInput{
		AccountID:      optional(body.AccountID),
		ConversationID: optional(body.ConversationID),
		ToEmail:        optional(body.ToEmail),
		CcEmail:        optional(body.CcEmail),
		Subject:        body.Subject,
		BodyHTML:       body.BodyHTML,
		SendAt:         optionalTime(body.SendAt),
		Attachments:    body.Attachments,
		LeadStatus:     body.LeadStatus,
	})
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (c *ScheduledMessageController) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var body bulkRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	in := service.BulkInput{
		AccountID: optional(body.AccountID),
		SendAt:    optionalTime(body.SendAt),
	}
	for _, m := range body.Messages {
		in.Messages = append(in.Messages, service.BulkEntry{
			ConversationID: optional(m.ConversationID),
			ToEmail:        optional(m.ToEmail),
			CcEmail:        optional(m.CcEmail),
			Subject:        m.Subject,
			BodyHTML:       m.BodyHTML,
			Attachments:    m.Attachments,
			LeadStatus:     m.LeadStatus,
		})
	}

	created, err := c.Scheduler.ScheduleBulk(r.Context(), UserID(r.Context()), in)
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	writeJSON(w, http.StatusCreated, bulkResponse{Count: len(created), Data: created})
}

func (c *ScheduledMessageController) DueToday(w http.ResponseWriter, r *http.Request) {
	loc, err := callerLocation(r, c.Location)
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	msgs, err := c.Dispatcher.ListDueToday(r.Context(), UserID(r.Context()), loc)
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (c *ScheduledMessageController) Get(w http.ResponseWriter, r *http.Request) {
	msg, err := c.Scheduler.Get(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (c *ScheduledMessageController) Update(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	patch, err := ParsePatch(fields)
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	msg, err := c.Scheduler.Update(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (c *ScheduledMessageController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.Scheduler.Delete(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c *ScheduledMessageController) Send(w http.ResponseWriter, r *http.Request) {
	msg, err := c.Dispatcher.SendNow(r.Context(), chi.URLParam(r, "id"), UserID(r.Context()))
	if err != nil {
		writeError(w, r, c.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

var jsonNull = []byte("null")

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func invalidField(name string) error {
	return appErrors.Wrap(appErrors.ErrInvalidInput, "invalid value for "+name)
}

// ParsePatch turns a decoded JSON object into a patch. Absent keys leave a
// field untouched; null clears a nullable field and is rejected elsewhere.
// Unknown keys are ignored.
func ParsePatch(fields map[string]json.RawMessage) (model.ScheduledMessagePatch, error) {
	var patch model.ScheduledMessagePatch

	nullable := func(name string) (fn.Option[fn.Option[string]], error) {
		raw, ok := fields[name]
		if !ok {
			return fn.None[fn.Option[string]](), nil
		}
		if isNull(raw) {
			return fn.Some(fn.None[string]()), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fn.None[fn.Option[string]](), invalidField(name)
		}
		return fn.Some(model.OptionFromString(s)), nil
	}

	text := func(name string) (fn.Option[string], error) {
		raw, ok := fields[name]
		if !ok {
			return fn.None[string](), nil
		}
		var s string
		if isNull(raw) || json.Unmarshal(raw, &s) != nil {
			return fn.None[string](), invalidField(name)
		}
		return fn.Some(s), nil
	}

	var err error
	if patch.AccountID, err = nullable("account_id"); err != nil {
		return patch, err
	}
	if patch.ConversationID, err = nullable("conversation_id"); err != nil {
		return patch, err
	}
	if patch.CcEmail, err = nullable("cc_email"); err != nil {
		return patch, err
	}
	if patch.ToEmail, err = text("to_email"); err != nil {
		return patch, err
	}
	if patch.Subject, err = text("subject"); err != nil {
		return patch, err
	}
	if patch.BodyHTML, err = text("body_html"); err != nil {
		return patch, err
	}
	if patch.LeadStatus, err = text("lead_status"); err != nil {
		return patch, err
	}

	if raw, ok := fields["send_at"]; ok {
		var t time.Time
		if isNull(raw) || json.Unmarshal(raw, &t) != nil || t.IsZero() {
			return patch, invalidField("send_at")
		}
		patch.SendAt = fn.Some(t)
	}

	if raw, ok := fields["attachments"]; ok {
		attachments := []model.Attachment{}
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &attachments); err != nil {
				return patch, invalidField("attachments")
			}
		}
		patch.Attachments = fn.Some(attachments)
	}

	return patch, nil
}

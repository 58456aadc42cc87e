// internal/model/scheduled_message.go
package model

import (
	"encoding/json"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// MessageStatus is the lifecycle state of a ScheduledMessage. A message is
// created pending and moves to sent exactly once.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
)

// DefaultLeadStatus is assigned when the caller does not classify the lead.
const DefaultLeadStatus = "New"

// Attachment is an opaque attachment descriptor. Content is only set when
// the caller inlined the bytes; otherwise the descriptor is carried as-is.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
	Content     []byte `json:"content,omitempty"`
}

type ScheduledMessage struct {
	ID             string            `db:"id"`
	UserID         string            `db:"user_id"`
	AccountID      fn.Option[string] `db:"account_id"`
	ConversationID fn.Option[string] `db:"conversation_id"`
	ToEmail        string            `db:"to_email"`
	CcEmail        fn.Option[string] `db:"cc_email"`
	Subject        string            `db:"subject"`
	BodyHTML       string            `db:"body_html"`
	Attachments    []Attachment      `db:"attachments"`
	SendAt         time.Time         `db:"send_at"`
	Status         MessageStatus     `db:"status"`
	IsFollowedUp   bool              `db:"is_followed_up"`
	LeadStatus     string            `db:"lead_status"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`

	// Unresolved marks a row whose recipient could not be normalized when
	// it was read. It is never persisted.
	Unresolved bool `db:"-"`
}

// IsPending reports whether the message can still be edited, deleted or
// dispatched.
func (m *ScheduledMessage) IsPending() bool {
	return m.Status == StatusPending
}

type scheduledMessageJSON struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	AccountID      *string       `json:"account_id"`
	ConversationID *string       `json:"conversation_id"`
	ToEmail        string        `json:"to_email"`
	CcEmail        *string       `json:"cc_email"`
	Subject        string        `json:"subject"`
	BodyHTML       string        `json:"body_html"`
	Attachments    []Attachment  `json:"attachments"`
	SendAt         time.Time     `json:"send_at"`
	Status         MessageStatus `json:"status"`
	IsFollowedUp   bool          `json:"is_followed_up"`
	LeadStatus     string        `json:"lead_status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Unresolved     bool          `json:"unresolved,omitempty"`
}

// MarshalJSON renders absent optional fields as null.
func (m ScheduledMessage) MarshalJSON() ([]byte, error) {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}

	return json.Marshal(scheduledMessageJSON{
		ID:             m.ID,
		UserID:         m.UserID,
		AccountID:      OptionToPtr(m.AccountID),
		ConversationID: OptionToPtr(m.ConversationID),
		ToEmail:        m.ToEmail,
		CcEmail:        OptionToPtr(m.CcEmail),
		Subject:        m.Subject,
		BodyHTML:       m.BodyHTML,
		Attachments:    attachments,
		SendAt:         m.SendAt,
		Status:         m.Status,
		IsFollowedUp:   m.IsFollowedUp,
		LeadStatus:     m.LeadStatus,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		Unresolved:     m.Unresolved,
	})
}

// OptionToPtr converts an option into a pointer, nil when absent.
func OptionToPtr[T any](o fn.Option[T]) *T {
	var p *T
	o.WhenSome(func(v T) {
		p = &v
	})

	return p
}

// OptionFromString treats the empty string as absent.
func OptionFromString(s string) fn.Option[string] {
	if s == "" {
		return fn.None[string]()
	}

	return fn.Some(s)
}

package model

import (
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ScheduledMessagePatch carries a PATCH-style partial update. The outer
// option of every field records whether the caller provided it at all. For
// nullable columns the inner option distinguishes an explicit null from a
// value.
type ScheduledMessagePatch struct {
	AccountID      fn.Option[fn.Option[string]]
	ConversationID fn.Option[fn.Option[string]]
	ToEmail        fn.Option[string]
	CcEmail        fn.Option[fn.Option[string]]
	Subject        fn.Option[string]
	BodyHTML       fn.Option[string]
	Attachments    fn.Option[[]Attachment]
	SendAt         fn.Option[time.Time]
	LeadStatus     fn.Option[string]
}

// IsEmpty reports whether the patch touches no field.
func (p ScheduledMessagePatch) IsEmpty() bool {
	return p.AccountID.IsNone() &&
		p.ConversationID.IsNone() &&
		p.ToEmail.IsNone() &&
		p.CcEmail.IsNone() &&
		p.Subject.IsNone() &&
		p.BodyHTML.IsNone() &&
		p.Attachments.IsNone() &&
		p.SendAt.IsNone() &&
		p.LeadStatus.IsNone()
}

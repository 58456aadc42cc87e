// internal/model/email_message.go
package model

import "time"

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// EmailMessage is a historical message in a conversation. ToEmail may hold
// a comma separated list of addresses.
type EmailMessage struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	EmailAccountID string    `db:"email_account_id" json:"email_account_id"`
	Direction      Direction `db:"direction" json:"direction"`
	FromEmail      string    `db:"from_email" json:"from_email"`
	ToEmail        string    `db:"to_email" json:"to_email"`
	Subject        string    `db:"subject" json:"subject"`
	SentAt         time.Time `db:"sent_at" json:"sent_at"`
}

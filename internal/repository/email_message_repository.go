package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/unclebandit/followup-engine/internal/model"
)

// EmailMessageRepositoryInterface is the read-only view of conversation
// history.
type EmailMessageRepositoryInterface interface {
	LatestInConversation(ctx context.Context, conversationID string, accountID fn.Option[string]) (fn.Option[model.EmailMessage], error)
}

type EmailMessageRepository struct {
	DB *sql.DB
}

// LatestInConversation returns the most recent message of the conversation,
// optionally restricted to one account.
func (r *EmailMessageRepository) LatestInConversation(ctx context.Context, conversationID string, accountID fn.Option[string]) (fn.Option[model.EmailMessage], error) {
	query := `
        SELECT id, conversation_id, email_account_id, direction, from_email, to_email, subject, sent_at
        FROM email_messages
        WHERE conversation_id = $1`
	args := []any{conversationID}

	accountID.WhenSome(func(id string) {
		query += ` AND email_account_id = $2`
		args = append(args, id)
	})
	query += ` ORDER BY sent_at DESC LIMIT 1`

	var (
		m         model.EmailMessage
		direction string
	)
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&m.ID, &m.ConversationID, &m.EmailAccountID, &direction,
		&m.FromEmail, &m.ToEmail, &m.Subject, &m.SentAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[model.EmailMessage](), nil
	case err != nil:
		return fn.None[model.EmailMessage](), mapSQLError(err)
	}

	m.Direction = model.Direction(direction)

	return fn.Some(m), nil
}

var _ EmailMessageRepositoryInterface = (*EmailMessageRepository)(nil)

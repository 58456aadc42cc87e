package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/model"
)

// SendFunc performs the side effect of a dispatch. It runs while the row is
// locked and may rewrite msg.ToEmail; the final recipient is persisted with
// the sent status.
type SendFunc func(ctx context.Context, msg *model.ScheduledMessage) error

// ScheduledMessageRepositoryInterface is the store surface used by the
// scheduling and dispatch services. Every lookup is scoped by user id.
type ScheduledMessageRepositoryInterface interface {
	Create(ctx context.Context, msg *model.ScheduledMessage) error
	FindByID(ctx context.Context, id, userID string) (*model.ScheduledMessage, error)
	FindPendingByID(ctx context.Context, id, userID string) (*model.ScheduledMessage, error)
	FindDueInWindow(ctx context.Context, userID string, w model.DayWindow) ([]*model.ScheduledMessage, error)
	FindDueAfter(ctx context.Context, after model.DueCursor, cutoff time.Time, limit int) ([]*model.ScheduledMessage, error)
	Update(ctx context.Context, id, userID string, patch model.ScheduledMessagePatch) (*model.ScheduledMessage, error)
	UpdateRecipient(ctx context.Context, id, userID, oldTo, newTo string) error
	Delete(ctx context.Context, id, userID string) error
	DispatchPending(ctx context.Context, id, userID string, send SendFunc) (*model.ScheduledMessage, error)
}

type ScheduledMessageRepository struct {
	DB *sql.DB
}

const scheduledMessageColumns = `id, user_id, account_id, conversation_id, to_email, cc_email,
        subject, body_html, attachments, send_at, status, is_followed_up, lead_status,
        created_at, updated_at`

func scanScheduledMessage(row rowScanner) (*model.ScheduledMessage, error) {
	var (
		msg            model.ScheduledMessage
		accountID      sql.NullString
		conversationID sql.NullString
		ccEmail        sql.NullString
		attachments    []byte
		followedUp     sql.NullBool
		status         string
	)

	err := row.Scan(
		&msg.ID, &msg.UserID, &accountID, &conversationID, &msg.ToEmail,
		&ccEmail, &msg.Subject, &msg.BodyHTML, &attachments, &msg.SendAt,
		&status, &followedUp, &msg.LeadStatus, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.AccountID = optionFromNull(accountID)
	msg.ConversationID = optionFromNull(conversationID)
	msg.CcEmail = optionFromNull(ccEmail)
	msg.Status = model.MessageStatus(status)
	msg.IsFollowedUp = followedUp.Valid && followedUp.Bool

	msg.Attachments, err = decodeAttachments(attachments)
	if err != nil {
		return nil, fmt.Errorf("decode attachments of %s: %w", msg.ID, err)
	}

	return &msg, nil
}

// Create inserts msg. A missing id is generated; status, lead status and
// timestamps are initialised here.
func (r *ScheduledMessageRepository) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	if msg.LeadStatus == "" {
		msg.LeadStatus = model.DefaultLeadStatus
	}

	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	attachments, err := encodeAttachments(msg.Attachments)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO scheduled_messages
        (id, user_id, account_id, conversation_id, to_email, cc_email, subject, body_html,
         attachments, send_at, status, is_followed_up, lead_status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `
	_, err = r.DB.ExecContext(ctx, query,
		msg.ID, msg.UserID, nullString(msg.AccountID), nullString(msg.ConversationID),
		msg.ToEmail, nullString(msg.CcEmail), msg.Subject, msg.BodyHTML, attachments,
		msg.SendAt, string(msg.Status), msg.IsFollowedUp, msg.LeadStatus,
		msg.CreatedAt, msg.UpdatedAt,
	)

	return mapSQLError(err)
}

// FindByID returns the row in any status.
func (r *ScheduledMessageRepository) FindByID(ctx context.Context, id, userID string) (*model.ScheduledMessage, error) {
	query := `SELECT ` + scheduledMessageColumns + `
        FROM scheduled_messages
        WHERE id = $1 AND user_id = $2`

	msg, err := scanScheduledMessage(r.DB.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, mapSQLError(err)
	}
	return msg, nil
}

func (r *ScheduledMessageRepository) FindPendingByID(ctx context.Context, id, userID string) (*model.ScheduledMessage, error) {
	query := `SELECT ` + scheduledMessageColumns + `
        FROM scheduled_messages
        WHERE id = $1 AND user_id = $2 AND status = 'pending'`

	msg, err := scanScheduledMessage(r.DB.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, mapSQLError(err)
	}
	return msg, nil
}

// FindDueInWindow returns the user's pending, not yet followed up messages
// scheduled inside w, earliest first.
func (r *ScheduledMessageRepository) FindDueInWindow(ctx context.Context, userID string, w model.DayWindow) ([]*model.ScheduledMessage, error) {
	query := `SELECT ` + scheduledMessageColumns + `
        FROM scheduled_messages
        WHERE user_id = $1
          AND status = 'pending'
          AND COALESCE(is_followed_up, FALSE) = FALSE
          AND send_at BETWEEN $2 AND $3
        ORDER BY send_at ASC, id ASC`

	return r.queryMany(ctx, query, userID, w.Start, w.End)
}

// FindDueAfter returns pending, not yet followed up messages of every user
// that sort after the cursor and are due at or before cutoff, in
// (send_at, id) order.
func (r *ScheduledMessageRepository) FindDueAfter(ctx context.Context, after model.DueCursor, cutoff time.Time, limit int) ([]*model.ScheduledMessage, error) {
	query := `SELECT ` + scheduledMessageColumns + `
        FROM scheduled_messages
        WHERE status = 'pending'
          AND COALESCE(is_followed_up, FALSE) = FALSE
          AND (send_at, id::text) > ($1, $2)
          AND send_at <= $3
        ORDER BY send_at ASC, id ASC
        LIMIT $4`

	return r.queryMany(ctx, query, after.SendAt, after.ID, cutoff, limit)
}

func (r *ScheduledMessageRepository) queryMany(ctx context.Context, query string, args ...any) ([]*model.ScheduledMessage, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.ScheduledMessage{}
	for rows.Next() {
		msg, err := scanScheduledMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

// Update applies the fields present in patch to a pending row owned by
// userID. Sent, foreign and missing rows all yield ErrNotFound.
func (r *ScheduledMessageRepository) Update(ctx context.Context, id, userID string, patch model.ScheduledMessagePatch) (*model.ScheduledMessage, error) {
	sets := []string{}
	args := []any{}
	argPos := 1

	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	patch.AccountID.WhenSome(func(v fn.Option[string]) {
		set("account_id", nullString(v))
	})
	patch.ConversationID.WhenSome(func(v fn.Option[string]) {
		set("conversation_id", nullString(v))
	})
	patch.ToEmail.WhenSome(func(v string) {
		set("to_email", v)
	})
	patch.CcEmail.WhenSome(func(v fn.Option[string]) {
		set("cc_email", nullString(v))
	})
	patch.Subject.WhenSome(func(v string) {
		set("subject", v)
	})
	patch.BodyHTML.WhenSome(func(v string) {
		set("body_html", v)
	})
	patch.SendAt.WhenSome(func(v time.Time) {
		set("send_at", v)
	})
	patch.LeadStatus.WhenSome(func(v string) {
		set("lead_status", v)
	})

	var encodeErr error
	patch.Attachments.WhenSome(func(v []model.Attachment) {
		b, err := encodeAttachments(v)
		if err != nil {
			encodeErr = err
			return
		}
		set("attachments", b)
	})
	if encodeErr != nil {
		return nil, encodeErr
	}

	set("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`
        UPDATE scheduled_messages
        SET %s
        WHERE id=$%d AND user_id=$%d AND status='pending'
        RETURNING %s`,
		strings.Join(sets, ", "), argPos, argPos+1, scheduledMessageColumns,
	)
	args = append(args, id, userID)

	msg, err := scanScheduledMessage(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapSQLError(err)
	}
	return msg, nil
}

// UpdateRecipient replaces to_email only if the row is still pending and
// still carries oldTo.
func (r *ScheduledMessageRepository) UpdateRecipient(ctx context.Context, id, userID, oldTo, newTo string) error {
	query := `
        UPDATE scheduled_messages
        SET to_email=$1, updated_at=$2
        WHERE id=$3 AND user_id=$4 AND status='pending' AND to_email=$5
    `
	res, err := r.DB.ExecContext(ctx, query, newTo, time.Now().UTC(), id, userID, oldTo)
	if err != nil {
		return mapSQLError(err)
	}

	return requireAffected(res)
}

// Delete removes a pending row owned by userID.
func (r *ScheduledMessageRepository) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM scheduled_messages WHERE id=$1 AND user_id=$2 AND status='pending'`

	res, err := r.DB.ExecContext(ctx, query, id, userID)
	if err != nil {
		return mapSQLError(err)
	}

	return requireAffected(res)
}

// DispatchPending locks the row, hands it to send and, only if send
// succeeds, moves it to sent within the same transaction. A concurrent
// caller blocks on the row lock and then observes the sent state, so send
// runs at most once per id.
func (r *ScheduledMessageRepository) DispatchPending(ctx context.Context, id, userID string, send SendFunc) (*model.ScheduledMessage, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + scheduledMessageColumns + `
        FROM scheduled_messages
        WHERE id = $1 AND user_id = $2
        FOR UPDATE`

	msg, err := scanScheduledMessage(tx.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, mapSQLError(err)
	}
	if !msg.IsPending() {
		return nil, appErrors.ErrAlreadySent
	}

	if err := send(ctx, msg); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
        UPDATE scheduled_messages
        SET status='sent', is_followed_up=TRUE, to_email=$1, updated_at=$2
        WHERE id=$3 AND user_id=$4 AND status='pending'
    `, msg.ToEmail, now, id, userID)
	if err != nil {
		return nil, errors.Join(appErrors.ErrSendUnrecorded, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, fmt.Errorf("%w: row %s no longer pending", appErrors.ErrSendUnrecorded, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Join(appErrors.ErrSendUnrecorded, err)
	}

	msg.Status = model.StatusSent
	msg.IsFollowedUp = true
	msg.UpdatedAt = now

	return msg, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

var _ ScheduledMessageRepositoryInterface = (*ScheduledMessageRepository)(nil)

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/mailer"
	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/repository"
)

const defaultSendTimeout = 30 * time.Second

// DispatchService sends pending messages and serves the due-today view.
type DispatchService struct {
	Messages  repository.ScheduledMessageRepositoryInterface
	Accounts  repository.EmailAccountRepositoryInterface
	Resolver  RecipientResolver
	Transport mailer.Transport
	Log       *slog.Logger

	// SendTimeout bounds each transport call.
	SendTimeout time.Duration

	// PersistNormalized writes recipients repaired by ListDueToday back to
	// the store.
	PersistNormalized bool

	Now func() time.Time
}

func (s *DispatchService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SendNow delivers one pending message owned by userID and marks it sent.
// A failed send leaves it pending. Concurrent calls for the same id send
// at most once; losers get ErrAlreadySent.
func (s *DispatchService) SendNow(ctx context.Context, id, userID string) (*model.ScheduledMessage, error) {
	msg, err := s.Messages.DispatchPending(ctx, id, userID, s.deliver)
	if err != nil {
		switch {
		case errors.Is(err, appErrors.ErrAlreadySent), appErrors.IsNotFound(err):
			s.Log.Debug("send skipped", "scheduled_message_id", id, "user_id", userID, "error", err)
		default:
			s.Log.Warn("send failed", "scheduled_message_id", id, "user_id", userID, "error", err)
		}
		return nil, err
	}

	s.Log.Info("scheduled message sent",
		"scheduled_message_id", msg.ID,
		"user_id", msg.UserID,
		"to", msg.ToEmail,
	)

	return msg, nil
}

// deliver runs under the row lock taken by DispatchPending.
func (s *DispatchService) deliver(ctx context.Context, msg *model.ScheduledMessage) error {
	if !model.IsValidAddress(msg.ToEmail) {
		to, err := s.recoverRecipient(ctx, msg)
		if err != nil {
			return err
		}
		msg.ToEmail = to
	}

	accountID, err := msg.AccountID.UnwrapOrErr(appErrors.ErrAccountMissing)
	if err != nil {
		return err
	}
	account, err := s.Accounts.FindOwned(ctx, accountID, msg.UserID)
	if appErrors.IsNotFound(err) {
		return appErrors.ErrAccountMissing
	}
	if err != nil {
		return err
	}

	timeout := s.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = s.Transport.Send(sendCtx, *account, mailer.Envelope{
		To:          msg.ToEmail,
		Cc:          msg.CcEmail,
		Subject:     msg.Subject,
		HTML:        msg.BodyHTML,
		Attachments: msg.Attachments,
	})
	if err != nil {
		return appErrors.NewTransportError(err)
	}

	return nil
}

// recoverRecipient resolves a legacy row whose stored recipient is not a
// usable address.
func (s *DispatchService) recoverRecipient(ctx context.Context, msg *model.ScheduledMessage) (string, error) {
	conversationID, err := msg.ConversationID.UnwrapOrErr(appErrors.ErrUnresolvedRecipient)
	if err != nil {
		return "", err
	}

	resolved, err := s.Resolver.Resolve(ctx, conversationID, msg.AccountID)
	if err != nil {
		return "", appErrors.Wrap(err, "resolve recipient")
	}

	to := resolved.UnwrapOr("")
	if !model.IsValidAddress(to) {
		return "", appErrors.ErrUnresolvedRecipient
	}
	return to, nil
}

// ListDueToday returns the user's pending messages due in today's window
// for loc, earliest first. Rows without a plausible address are resolved
// through their conversation; rows that cannot be resolved are flagged.
func (s *DispatchService) ListDueToday(ctx context.Context, userID string, loc *time.Location) ([]*model.ScheduledMessage, error) {
	window := model.DayWindowFor(s.now(), loc)

	msgs, err := s.Messages.FindDueInWindow(ctx, userID, window)
	if err != nil {
		return nil, err
	}

	for _, msg := range msgs {
		s.normalizeRecipient(ctx, msg)
	}

	return msgs, nil
}

func (s *DispatchService) normalizeRecipient(ctx context.Context, msg *model.ScheduledMessage) {
	if model.LooksLikeAddress(msg.ToEmail) {
		return
	}
	if msg.ConversationID.IsNone() {
		msg.Unresolved = true
		return
	}

	resolved, err := s.Resolver.Resolve(ctx, msg.ConversationID.UnwrapOr(""), msg.AccountID)
	if err != nil {
		s.Log.Warn("recipient normalization failed", "scheduled_message_id", msg.ID, "error", err)
		msg.Unresolved = true
		return
	}
	if resolved.IsNone() {
		msg.Unresolved = true
		return
	}

	stale := msg.ToEmail
	msg.ToEmail = resolved.UnwrapOr("")

	if !s.PersistNormalized {
		return
	}

	err = s.Messages.UpdateRecipient(ctx, msg.ID, msg.UserID, stale, msg.ToEmail)
	switch {
	case err == nil:
		s.Log.Info("recipient normalized",
			"scheduled_message_id", msg.ID,
			"user_id", msg.UserID,
			"to", msg.ToEmail,
		)
	case appErrors.IsNotFound(err):
		s.Log.Debug("recipient changed concurrently", "scheduled_message_id", msg.ID)
	default:
		s.Log.Warn("persist normalized recipient failed", "scheduled_message_id", msg.ID, "error", err)
	}
}

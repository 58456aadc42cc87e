package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/repository"
)

// ScheduleInput describes one message to schedule.
type ScheduleInput struct {
	AccountID      fn.Option[string]
	ConversationID fn.Option[string]
	ToEmail        fn.Option[string]
	CcEmail        fn.Option[string]
	Subject        string
	BodyHTML       string
	SendAt         fn.Option[time.Time]
	Attachments    []model.Attachment
	LeadStatus     string
}

// BulkEntry is one message of a bulk request. Account and send time come
// from the enclosing BulkInput.
type BulkEntry struct {
	ConversationID fn.Option[string]
	ToEmail        fn.Option[string]
	CcEmail        fn.Option[string]
	Subject        string
	BodyHTML       string
	Attachments    []model.Attachment
	LeadStatus     string
}

type BulkInput struct {
	AccountID fn.Option[string]
	SendAt    fn.Option[time.Time]
	Messages  []BulkEntry
}

// SchedulingService validates and persists scheduled messages and serves
// their edits while they are pending.
type SchedulingService struct {
	Messages repository.ScheduledMessageRepositoryInterface
	Accounts repository.EmailAccountRepositoryInterface
	Resolver RecipientResolver
	Log      *slog.Logger
}

func (s *SchedulingService) ScheduleOne(ctx context.Context, userID string, in ScheduleInput) (*model.ScheduledMessage, error) {
	sendAt, err := in.SendAt.UnwrapOrErr(appErrors.ErrMissingSendAt)
	if err != nil {
		return nil, err
	}
	if err := s.verifyAccount(ctx, userID, in.AccountID); err != nil {
		return nil, err
	}

	to, err := s.resolveRecipient(ctx, in.ToEmail, in.ConversationID, in.AccountID)
	if err != nil {
		return nil, err
	}

	msg := &model.ScheduledMessage{
		UserID:         userID,
		AccountID:      in.AccountID,
		ConversationID: in.ConversationID,
		ToEmail:        to,
		CcEmail:        in.CcEmail,
		Subject:        in.Subject,
		BodyHTML:       in.BodyHTML,
		Attachments:    in.Attachments,
		SendAt:         sendAt,
		LeadStatus:     in.LeadStatus,
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.Log.Info("scheduled message created",
		"scheduled_message_id", msg.ID,
		"user_id", userID,
		"send_at", msg.SendAt,
	)

	return msg, nil
}

// ScheduleBulk creates one message per entry that resolves to a recipient.
// Unresolvable entries are skipped; any other failure aborts the batch and
// returns what was created so far.
func (s *SchedulingService) ScheduleBulk(ctx context.Context, userID string, in BulkInput) ([]*model.ScheduledMessage, error) {
	sendAt, err := in.SendAt.UnwrapOrErr(appErrors.ErrMissingSendAt)
	if err != nil {
		return nil, err
	}
	if err := s.verifyAccount(ctx, userID, in.AccountID); err != nil {
		return nil, err
	}

	created := []*model.ScheduledMessage{}
	for i, entry := range in.Messages {
		to, err := s.resolveRecipient(ctx, entry.ToEmail, entry.ConversationID, in.AccountID)
		if errors.Is(err, appErrors.ErrUnresolvedRecipient) {
			s.Log.Warn("bulk entry skipped: recipient unresolved",
				"user_id", userID,
				"index", i,
			)
			continue
		}
		if err != nil {
			return created, err
		}

		msg := &model.ScheduledMessage{
			UserID:         userID,
			AccountID:      in.AccountID,
			ConversationID: entry.ConversationID,
			ToEmail:        to,
			CcEmail:        entry.CcEmail,
			Subject:        entry.Subject,
			BodyHTML:       entry.BodyHTML,
			Attachments:    entry.Attachments,
			SendAt:         sendAt,
			LeadStatus:     entry.LeadStatus,
		}
		if err := s.Messages.Create(ctx, msg); err != nil {
			return created, err
		}
		created = append(created, msg)
	}

	s.Log.Info("bulk schedule finished",
		"user_id", userID,
		"requested", len(in.Messages),
		"created", len(created),
	)

	return created, nil
}

// Get returns an owned message in any status.
func (s *SchedulingService) Get(ctx context.Context, userID, id string) (*model.ScheduledMessage, error) {
	return s.Messages.FindByID(ctx, id, userID)
}

// Update applies patch to a pending message. An empty patch still checks
// that the message is pending and owned.
func (s *SchedulingService) Update(ctx context.Context, userID, id string, patch model.ScheduledMessagePatch) (*model.ScheduledMessage, error) {
	var accountErr error
	patch.AccountID.WhenSome(func(account fn.Option[string]) {
		accountErr = s.verifyAccount(ctx, userID, account)
	})
	if accountErr != nil {
		return nil, accountErr
	}

	patch.ToEmail.WhenSome(func(to string) {
		patch.ToEmail = fn.Some(strings.TrimSpace(to))
	})
	if patch.ToEmail.UnwrapOr("-") == "" {
		return nil, appErrors.Wrap(appErrors.ErrInvalidInput, "toEmail cannot be empty")
	}

	if patch.IsEmpty() {
		return s.Messages.FindPendingByID(ctx, id, userID)
	}

	msg, err := s.Messages.Update(ctx, id, userID, patch)
	if err != nil {
		return nil, err
	}

	s.Log.Info("scheduled message updated", "scheduled_message_id", id, "user_id", userID)
	return msg, nil
}

func (s *SchedulingService) Delete(ctx context.Context, userID, id string) error {
	if err := s.Messages.Delete(ctx, id, userID); err != nil {
		return err
	}

	s.Log.Info("scheduled message deleted", "scheduled_message_id", id, "user_id", userID)
	return nil
}

// verifyAccount checks that a supplied account belongs to userID.
func (s *SchedulingService) verifyAccount(ctx context.Context, userID string, accountID fn.Option[string]) error {
	if accountID.IsNone() {
		return nil
	}

	_, err := s.Accounts.FindOwned(ctx, accountID.UnwrapOr(""), userID)
	if appErrors.IsNotFound(err) {
		return appErrors.ErrAccountNotFound
	}
	return err
}

// resolveRecipient prefers an explicit address, then the conversation.
func (s *SchedulingService) resolveRecipient(ctx context.Context, explicit, conversationID, accountID fn.Option[string]) (string, error) {
	if to := strings.TrimSpace(explicit.UnwrapOr("")); to != "" {
		return to, nil
	}
	if conversationID.IsNone() {
		return "", appErrors.ErrUnresolvedRecipient
	}

	resolved, err := s.Resolver.Resolve(ctx, conversationID.UnwrapOr(""), accountID)
	if err != nil {
		return "", appErrors.Wrap(err, "resolve recipient")
	}

	return resolved.UnwrapOrErr(appErrors.ErrUnresolvedRecipient)
}

package service

import (
	"context"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/repository"
)

// RecipientResolver derives who a follow-up in a conversation should go to.
type RecipientResolver interface {
	Resolve(ctx context.Context, conversationID string, accountID fn.Option[string]) (fn.Option[string], error)
}

// ConversationResolver resolves recipients from the latest message of a
// conversation.
type ConversationResolver struct {
	Messages repository.EmailMessageRepositoryInterface
}

// Resolve returns None when the conversation has no messages (for the
// account, if one is given) or the latest message yields no address.
func (r *ConversationResolver) Resolve(ctx context.Context, conversationID string, accountID fn.Option[string]) (fn.Option[string], error) {
	latest, err := r.Messages.LatestInConversation(ctx, conversationID, accountID)
	if err != nil {
		return fn.None[string](), err
	}

	recipient := fn.None[string]()
	latest.WhenSome(func(msg model.EmailMessage) {
		recipient = RecipientFromLatest(msg)
	})

	return recipient, nil
}

// RecipientFromLatest replies to whoever wrote last: the sender of a
// received message, or the first addressee of a sent one.
func RecipientFromLatest(msg model.EmailMessage) fn.Option[string] {
	switch msg.Direction {
	case model.DirectionReceived:
		return model.OptionFromString(strings.TrimSpace(msg.FromEmail))
	case model.DirectionSent:
		return model.ParseAddressList(msg.ToEmail).First()
	default:
		return fn.None[string]()
	}
}

var _ RecipientResolver = (*ConversationResolver)(nil)

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/mailer"
	"github.com/unclebandit/followup-engine/internal/model"
	"github.com/unclebandit/followup-engine/internal/repository"
)

// memStore is an in-memory ScheduledMessageRepositoryInterface. rowLock
// stands in for SELECT ... FOR UPDATE.
type memStore struct {
	mu      sync.Mutex
	rowLock sync.Mutex
	rows    map[string]*model.ScheduledMessage
	seq     int

	recipientUpdates int
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*model.ScheduledMessage{}}
}

func (s *memStore) put(msg model.ScheduledMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	s.rows[msg.ID] = &msg
}

func (s *memStore) get(id string) model.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		s.seq++
		msg.ID = fmt.Sprintf("m-%d", s.seq)
	}
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	if msg.LeadStatus == "" {
		msg.LeadStatus = model.DefaultLeadStatus
	}
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt

	cp := *msg
	s.rows[msg.ID] = &cp
	return nil
}

func (s *memStore) owned(id, userID string) (*model.ScheduledMessage, bool) {
	row, ok := s.rows[id]
	if !ok || row.UserID != userID {
		return nil, false
	}
	return row, true
}

func (s *memStore) FindByID(ctx context.Context, id, userID string) (*model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.owned(id, userID)
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) FindPendingByID(ctx context.Context, id, userID string) (*model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.owned(id, userID)
	if !ok || !row.IsPending() {
		return nil, appErrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) sorted(keep func(*model.ScheduledMessage) bool) []*model.ScheduledMessage {
	out := []*model.ScheduledMessage{}
	for _, row := range s.rows {
		if row.IsPending() && !row.IsFollowedUp && keep(row) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SendAt.Equal(out[j].SendAt) {
			return out[i].SendAt.Before(out[j].SendAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memStore) FindDueInWindow(ctx context.Context, userID string, w model.DayWindow) ([]*model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sorted(func(row *model.ScheduledMessage) bool {
		return row.UserID == userID && w.Contains(row.SendAt)
	}), nil
}

func (s *memStore) FindDueAfter(ctx context.Context, after model.DueCursor, cutoff time.Time, limit int) ([]*model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := s.sorted(func(row *model.ScheduledMessage) bool {
		if row.SendAt.After(cutoff) {
			return false
		}
		if row.SendAt.Equal(after.SendAt) {
			return row.ID > after.ID
		}
		return row.SendAt.After(after.SendAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *memStore) Update(ctx context.Context, id, userID string, patch model.ScheduledMessagePatch) (*model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.owned(id, userID)
	if !ok || !row.IsPending() {
		return nil, appErrors.ErrNotFound
	}

	patch.AccountID.WhenSome(func(v fn.Option[string]) { row.AccountID = v })
	patch.ConversationID.WhenSome(func(v fn.Option[string]) { row.ConversationID = v })
	patch.CcEmail.WhenSome(func(v fn.Option[string]) { row.CcEmail = v })
	patch.ToEmail.WhenSome(func(v string) { row.ToEmail = v })
	patch.Subject.WhenSome(func(v string) { row.Subject = v })
	patch.BodyHTML.WhenSome(func(v string) { row.BodyHTML = v })
	patch.Attachments.WhenSome(func(v []model.Attachment) { row.Attachments = v })
	patch.SendAt.WhenSome(func(v time.Time) { row.SendAt = v })
	patch.LeadStatus.WhenSome(func(v string) { row.LeadStatus = v })
	row.UpdatedAt = time.Now()

	cp := *row
	return &cp, nil
}

func (s *memStore) UpdateRecipient(ctx context.Context, id, userID, oldTo, newTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.owned(id, userID)
	if !ok || !row.IsPending() || row.ToEmail != oldTo {
		return appErrors.ErrNotFound
	}
	row.ToEmail = newTo
	s.recipientUpdates++
	return nil
}

func (s *memStore) Delete(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.owned(id, userID)
	if !ok || !row.IsPending() {
		return appErrors.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *memStore) DispatchPending(ctx context.Context, id, userID string, send repository.SendFunc) (*model.ScheduledMessage, error) {
	s.rowLock.Lock()
	defer s.rowLock.Unlock()

	s.mu.Lock()
	row, ok := s.owned(id, userID)
	var cp model.ScheduledMessage
	if ok {
		cp = *row
	}
	s.mu.Unlock()

	if !ok {
		return nil, appErrors.ErrNotFound
	}
	if !cp.IsPending() {
		return nil, appErrors.ErrAlreadySent
	}

	if err := send(ctx, &cp); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row.Status = model.StatusSent
	row.IsFollowedUp = true
	row.ToEmail = cp.ToEmail
	row.UpdatedAt = time.Now()

	out := *row
	return &out, nil
}

var _ repository.ScheduledMessageRepositoryInterface = (*memStore)(nil)

type memAccounts map[string]model.EmailAccount

func (m memAccounts) FindOwned(ctx context.Context, id, userID string) (*model.EmailAccount, error) {
	acct, ok := m[id]
	if !ok || acct.UserID != userID {
		return nil, appErrors.ErrNotFound
	}
	return &acct, nil
}

// memConversations serves conversation history keyed by conversation id.
type memConversations map[string][]model.EmailMessage

func (m memConversations) LatestInConversation(ctx context.Context, conversationID string, accountID fn.Option[string]) (fn.Option[model.EmailMessage], error) {
	latest := fn.None[model.EmailMessage]()
	var latestAt time.Time

	for _, msg := range m[conversationID] {
		if accountID.IsSome() && accountID.UnwrapOr("") != msg.EmailAccountID {
			continue
		}
		if latest.IsNone() || msg.SentAt.After(latestAt) {
			latest = fn.Some(msg)
			latestAt = msg.SentAt
		}
	}
	return latest, nil
}

// fakeTransport counts sends. When block is set each send waits for ctx or
// for block to close.
type fakeTransport struct {
	calls atomic.Int32
	err   error
	block chan struct{}

	mu   sync.Mutex
	sent []mailer.Envelope
}

func (t *fakeTransport) Send(ctx context.Context, account model.EmailAccount, env mailer.Envelope) error {
	t.calls.Add(1)

	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.err != nil {
		return t.err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, env)
	return nil
}

func (t *fakeTransport) envelopes() []mailer.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]mailer.Envelope(nil), t.sent...)
}

// Package mailer delivers scheduled messages over SMTP using the sending
// account's own credentials.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/unclebandit/followup-engine/internal/model"
)

// Envelope is what the dispatch engine hands to a transport.
type Envelope struct {
	To          string
	Cc          fn.Option[string]
	Subject     string
	HTML        string
	Attachments []model.Attachment
}

// Recipients returns every RCPT TO address: the primary recipient followed
// by each cc address.
func (e Envelope) Recipients() []string {
	rcpts := []string{e.To}
	e.Cc.WhenSome(func(cc string) {
		rcpts = append(rcpts, model.ParseAddressList(cc)...)
	})

	return rcpts
}

// Transport sends one message on behalf of an account. Implementations must
// honour ctx cancellation and deadlines.
type Transport interface {
	Send(ctx context.Context, account model.EmailAccount, env Envelope) error
}

const noSubject = "(no subject)"

// BuildMessage renders the envelope as a MIME message from the account's
// sending identity.
func BuildMessage(account model.EmailAccount, env Envelope) ([]byte, error) {
	subject := env.Subject
	if subject == "" {
		subject = noSubject
	}

	b := enmime.Builder().
		From(account.DisplayName, account.Email).
		To("", env.To).
		Subject(subject).
		Date(time.Now()).
		HTML([]byte(env.HTML))

	var ccs []mail.Address
	env.Cc.WhenSome(func(cc string) {
		for _, addr := range model.ParseAddressList(cc) {
			ccs = append(ccs, mail.Address{Address: addr})
		}
	})
	if len(ccs) > 0 {
		b = b.CCAddrs(ccs)
	}

	for _, att := range env.Attachments {
		if len(att.Content) == 0 {
			continue
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		b = b.AddAttachment(att.Content, contentType, att.FileName)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	return buf.Bytes(), nil
}

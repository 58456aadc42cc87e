package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/unclebandit/followup-engine/internal/model"
)

// SMTPTransport connects to the account's SMTP server for every send.
// Secure accounts use implicit TLS. The others must be upgraded with
// STARTTLS unless AllowPlaintext is set.
type SMTPTransport struct {
	// TLSConfig is cloned per connection; ServerName is filled in from the
	// account host.
	TLSConfig *tls.Config

	// DialTimeout bounds connection setup when ctx carries no deadline.
	DialTimeout time.Duration

	// AllowPlaintext skips STARTTLS for non-secure accounts.
	AllowPlaintext bool

	dialConn func(ctx context.Context, account model.EmailAccount) (net.Conn, error)
}

func NewSMTPTransport(allowPlaintext bool) *SMTPTransport {
	return &SMTPTransport{
		DialTimeout:    15 * time.Second,
		AllowPlaintext: allowPlaintext,
	}
}

func (t *SMTPTransport) tlsConfig(host string) *tls.Config {
	cfg := &tls.Config{}
	if t.TLSConfig != nil {
		cfg = t.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

func (t *SMTPTransport) dial(ctx context.Context, account model.EmailAccount) (net.Conn, error) {
	if t.dialConn != nil {
		return t.dialConn(ctx, account)
	}

	addr := net.JoinHostPort(account.SMTPHost, strconv.Itoa(account.SMTPPort))
	netDialer := &net.Dialer{Timeout: t.DialTimeout}

	if account.SMTPSecure {
		d := &tls.Dialer{NetDialer: netDialer, Config: t.tlsConfig(account.SMTPHost)}
		return d.DialContext(ctx, "tcp", addr)
	}

	return netDialer.DialContext(ctx, "tcp", addr)
}

// Send delivers env through the account's server. The connection is torn
// down as soon as ctx is done, so a stalled server surfaces as an error
// instead of blocking the caller.
func (t *SMTPTransport) Send(ctx context.Context, account model.EmailAccount, env Envelope) error {
	raw, err := BuildMessage(account, env)
	if err != nil {
		return err
	}

	conn, err := t.dial(ctx, account)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", account.SMTPHost, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("smtp dial %s: %w", account.SMTPHost, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	c, err := t.newClient(conn, account)
	if err != nil {
		return t.fail(ctx, "starttls", err)
	}
	defer c.Close()

	if account.SMTPUser != "" {
		auth := sasl.NewPlainClient("", account.SMTPUser, account.SMTPPassword)
		if err := c.Auth(auth); err != nil {
			return t.fail(ctx, "auth", err)
		}
	}

	if err := c.SendMail(account.Email, env.Recipients(), bytes.NewReader(raw)); err != nil {
		return t.fail(ctx, "send", err)
	}

	if err := c.Quit(); err != nil {
		return t.fail(ctx, "quit", err)
	}

	return nil
}

// newClient reads the greeting and, for non-secure accounts, upgrades the
// session with STARTTLS. NewClientStartTLS closes conn on failure.
func (t *SMTPTransport) newClient(conn net.Conn, account model.EmailAccount) (*smtp.Client, error) {
	if account.SMTPSecure || t.AllowPlaintext {
		return smtp.NewClient(conn), nil
	}
	return smtp.NewClientStartTLS(conn, t.tlsConfig(account.SMTPHost))
}

// fail prefers the context error when the connection was closed because ctx
// ended.
func (t *SMTPTransport) fail(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("smtp %s: %w", stage, ctxErr)
	}
	return fmt.Errorf("smtp %s: %w", stage, err)
}

var _ Transport = (*SMTPTransport)(nil)

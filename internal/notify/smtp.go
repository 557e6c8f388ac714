package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// TLSMode selects how the SMTP connection is secured
type TLSMode string

const (
	// TLSNone talks plaintext SMTP, as local relays such as MailHog expect
	TLSNone TLSMode = "none"
	// TLSStartTLS upgrades a plaintext connection and fails when the relay
	// does not advertise STARTTLS
	TLSStartTLS TLSMode = "starttls"
	// TLSImplicit connects over TLS from the first byte (port 465)
	TLSImplicit TLSMode = "implicit"
)

// ParseTLSMode maps a configured mode name onto a TLSMode
func ParseTLSMode(s string) (TLSMode, error) {
	switch mode := TLSMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case TLSNone, TLSStartTLS, TLSImplicit:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown SMTP TLS mode %q", s)
	}
}

const smtpDialTimeout = 30 * time.Second

// SMTPSender delivers email through an SMTP relay
type SMTPSender struct {
	addr      string
	from      string
	auth      sasl.Client
	mode      TLSMode
	tlsConfig *tls.Config
	now       func() time.Time
}

// NewSMTPSender creates an email sender for addr (host:port). PLAIN auth is
// used when a username is given.
func NewSMTPSender(addr, from, username, password string, mode TLSMode) *SMTPSender {
	var auth sasl.Client
	if username != "" {
		auth = sasl.NewPlainClient("", username, password)
	}
	if mode == "" {
		mode = TLSNone
	}
	host, _, _ := net.SplitHostPort(addr)
	return &SMTPSender{
		addr:      addr,
		from:      from,
		auth:      auth,
		mode:      mode,
		tlsConfig: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
		now:       time.Now,
	}
}

// Send delivers msg as a plain text email
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.deliver(ctx, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) deliver(ctx context.Context, msg Message) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	// a cancelled context tears the session down mid-command
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		c.CommandTimeout = min(c.CommandTimeout, remaining)
		c.SubmissionTimeout = min(c.SubmissionTimeout, remaining)
	}

	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(s.auth); err != nil {
			return err
		}
	}
	if err := c.SendMail(s.from, []string{msg.To}, strings.NewReader(s.compose(msg))); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	if s.mode == TLSImplicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.tlsConfig}
		conn, err := tlsDialer.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn), nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	if s.mode == TLSStartTLS {
		// closes conn on failure
		return smtp.NewClientStartTLS(conn, s.tlsConfig)
	}
	return smtp.NewClient(conn), nil
}

func (s *SMTPSender) compose(msg Message) string {
	var b strings.Builder
	b.WriteString("From: " + s.from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + s.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.String()
}

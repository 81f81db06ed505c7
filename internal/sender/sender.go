// Package sender delivers email directly over SMTP, bypassing the
// mail-client bridge. It is the fallback path when the bridge is
// disabled in configuration.
package sender

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/credential"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

// Sender transmits one email and returns the message id it was sent
// under.
type Sender interface {
	Send(ctx context.Context, payload model.EmailPayload) (string, error)
}

// SMTP sends mail through a configured SMTP relay with STARTTLS and
// plain authentication. The account password comes from the OS
// keyring, never from the config file.
type SMTP struct {
	cfg      model.SMTPConfig
	password func() (string, error)
	log      *slog.Logger
}

// NewSMTP creates a sender for the given relay configuration.
func NewSMTP(cfg model.SMTPConfig, logger *slog.Logger) *SMTP {
	return &SMTP{
		cfg:      cfg,
		password: func() (string, error) { return credential.Get(credential.KeySMTPPassword) },
		log:      logger,
	}
}

// Send composes a MIME message for the payload and delivers it to
// every recipient (To, Cc and Bcc).
func (s *SMTP) Send(ctx context.Context, payload model.EmailPayload) (string, error) {
	msgID, msg, err := buildMessage(s.cfg.Username, payload)
	if err != nil {
		return "", err
	}

	password, err := s.password()
	if err != nil {
		return "", fmt.Errorf("loading smtp password: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("connecting to smtp %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("smtp handshake with %s: %w", addr, err)
	}
	defer client.Close()

	if s.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return "", fmt.Errorf("smtp server %s does not offer STARTTLS", addr)
		}
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return "", fmt.Errorf("starting TLS with %s: %w", addr, err)
		}
	}

	auth := smtp.PlainAuth("", s.cfg.Username, password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return "", fmt.Errorf("smtp auth for %s: %w", s.cfg.Username, err)
	}

	if err := client.Mail(s.cfg.Username); err != nil {
		return "", fmt.Errorf("smtp MAIL FROM: %w", err)
	}

	recipients := make([]string, 0, len(payload.To)+len(payload.Cc)+len(payload.Bcc))
	recipients = append(recipients, payload.To...)
	recipients = append(recipients, payload.Cc...)
	recipients = append(recipients, payload.Bcc...)
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return "", fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return "", fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finishing message body: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.log.Warn("smtp QUIT failed", "error", err)
	}

	s.log.Info("email sent via smtp", "messageId", msgID, "to", payload.To)
	return msgID, nil
}

// buildMessage assembles the multipart MIME message: an HTML body part
// plus one attachment part per payload attachment.
func buildMessage(from string, payload model.EmailPayload) (string, []byte, error) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	msgID := fmt.Sprintf("%s@%s", uuid.New().String(), hostname)

	var h mail.Header
	h.SetDate(time.Now())
	h.SetMsgIDList("Message-Id", []string{msgID})
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", toAddresses(payload.To))
	if len(payload.Cc) > 0 {
		h.SetAddressList("Cc", toAddresses(payload.Cc))
	}
	h.SetSubject(payload.Subject)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return "", nil, fmt.Errorf("creating mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return "", nil, fmt.Errorf("creating inline part: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	pw, err := tw.CreatePart(th)
	if err != nil {
		return "", nil, fmt.Errorf("creating html part: %w", err)
	}
	if _, err := io.WriteString(pw, payload.BodyHTML); err != nil {
		return "", nil, fmt.Errorf("writing html body: %w", err)
	}
	pw.Close()
	tw.Close()

	for _, att := range payload.Attachments {
		f, err := os.Open(att.Path)
		if err != nil {
			return "", nil, fmt.Errorf("opening attachment %s: %w", att.Path, err)
		}

		var ah mail.AttachmentHeader
		ah.SetContentType("application/octet-stream", nil)
		ah.SetFilename(att.Name)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			f.Close()
			return "", nil, fmt.Errorf("creating attachment part: %w", err)
		}
		if _, err := io.Copy(aw, f); err != nil {
			f.Close()
			aw.Close()
			return "", nil, fmt.Errorf("writing attachment %s: %w", att.Name, err)
		}
		f.Close()
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return "", nil, fmt.Errorf("finishing message: %w", err)
	}

	return msgID, buf.Bytes(), nil
}

func toAddresses(addrs []string) []*mail.Address {
	out := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		out[i] = &mail.Address{Address: a}
	}
	return out
}

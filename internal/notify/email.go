// Package notify delivers fire-and-forget operator notifications.
// Sending is best effort: a disabled channel or empty recipient list is
// a silent no-op, and callers treat failures as non-fatal.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"mime/quotedprintable"
	"net/smtp"
	"strings"

	"fossmate.app/fossmate/core/config"
)

type Notifier interface {
	// Send delivers one message. htmlBody is optional; when empty the
	// message is plain text only.
	Send(ctx context.Context, subject, textBody, htmlBody string, recipients []string) error
}

type EmailNotifier struct {
	cfg config.EmailConfig
}

func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg}
}

func (n *EmailNotifier) Send(ctx context.Context, subject, textBody, htmlBody string, recipients []string) error {
	if len(recipients) == 0 {
		recipients = n.cfg.Recipients
	}
	if !n.cfg.Configured() || len(recipients) == 0 {
		return nil
	}

	msg, err := buildMessage(n.cfg.From, recipients, subject, textBody, htmlBody)
	if err != nil {
		return fmt.Errorf("building email message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	var auth smtp.Auth
	if n.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUsername, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, n.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	slog.InfoContext(ctx, "notification email sent", "subject", subject, "recipients", len(recipients))
	return nil
}

const mixedBoundary = "fossmate-alt-boundary"

func buildMessage(from string, recipients []string, subject, textBody, htmlBody string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQuoted(&b, textBody); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}

	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mixedBoundary))

	b.WriteString(fmt.Sprintf("--%s\r\n", mixedBoundary))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	if err := writeQuoted(&b, textBody); err != nil {
		return nil, err
	}

	b.WriteString(fmt.Sprintf("\r\n--%s\r\n", mixedBoundary))
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	if err := writeQuoted(&b, htmlBody); err != nil {
		return nil, err
	}

	b.WriteString(fmt.Sprintf("\r\n--%s--\r\n", mixedBoundary))
	return []byte(b.String()), nil
}

func writeQuoted(b *strings.Builder, body string) error {
	w := quotedprintable.NewWriter(b)
	if _, err := w.Write([]byte(body)); err != nil {
		return err
	}
	return w.Close()
}

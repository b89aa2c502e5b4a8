// Package email provides an SMTP-based notifier for the urgent channel.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/Strob0t/RepairDesk/internal/port/notifier"
)

const (
	providerName = "email"
	dialTimeout  = 10 * time.Second
)

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host       string
	Port       string
	From       string
	User       string // defaults to From
	Password   string
	Recipients []string
}

// Notifier mails urgent notifications to a fixed recipient list.
type Notifier struct {
	cfg SMTPConfig
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.User == "" {
		cfg.User = cfg.From
	}
	return &Notifier{cfg: cfg}
}

func (n *Notifier) Name() string { return providerName }

// Send delivers the notification to every recipient in one SMTP transaction.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.cfg.Host == "" || n.cfg.From == "" || len(n.cfg.Recipients) == 0 {
		return notifier.ErrNotConfigured
	}

	from, err := mail.ParseAddress(n.cfg.From)
	if err != nil {
		return fmt.Errorf("email from address: %w", err)
	}
	to := make([]string, 0, len(n.cfg.Recipients))
	for _, r := range n.cfg.Recipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			return fmt.Errorf("email recipient %q: %w", r, err)
		}
		to = append(to, addr.Address)
	}

	msg := buildMessage(from, to, notification)
	if err := n.deliver(ctx, from.Address, to, msg); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(n.cfg.Host, n.cfg.Port)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if n.cfg.Password != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// buildMessage renders an HTML mail with CRLF line endings.
func buildMessage(from *mail.Address, to []string, n notifier.Notification) []byte {
	var b strings.Builder
	subject := "[RepairDesk] " + n.Title

	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")

	fmt.Fprintf(&b, "<h2>%s</h2>\r\n", html.EscapeString(n.Title))
	fmt.Fprintf(&b, "<p>%s</p>\r\n", html.EscapeString(n.Message))
	if n.Link != "" {
		fmt.Fprintf(&b, "<p><a href=\"%s\">Open in RepairDesk</a></p>\r\n", html.EscapeString(n.Link))
	}
	if n.Source != "" {
		fmt.Fprintf(&b, "<p><small>%s</small></p>\r\n", html.EscapeString(n.Source))
	}
	return []byte(b.String())
}

// encodeHeader strips line breaks and applies RFC 2047 encoding when the
// value is not plain ASCII.
func encodeHeader(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	return mime.QEncoding.Encode("UTF-8", s)
}

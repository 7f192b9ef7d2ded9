package sinks

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

// Notifier sends a plain text email
type Notifier interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// SMTPConfig contains SMTP connection settings
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	TLSSkipVerify bool
}

// SMTPMailer sends mail over SMTP, upgrading with STARTTLS when offered.
// Port 465 uses implicit TLS.
type SMTPMailer struct {
	cfg SMTPConfig
	tls *tls.Config
}

// NewSMTPMailer creates a mailer
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg: cfg,
		tls: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}
}

// SendEmail implements Notifier. The connection is bound to ctx: its
// deadline becomes the socket deadline and cancellation closes the exchange.
func (m *SMTPMailer) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return m.fail(ctx, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	var transport net.Conn = conn
	if m.cfg.Port == 465 {
		transport = tls.Client(conn, m.tls)
	}
	c, err := smtp.NewClient(transport, m.cfg.Host)
	if err != nil {
		return m.fail(ctx, err)
	}
	defer c.Close()

	if m.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(m.tls); err != nil {
				return m.fail(ctx, err)
			}
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
				return m.fail(ctx, err)
			}
		}
	}

	if err := gomail.Send(smtpSender(c), msg); err != nil {
		return m.fail(ctx, err)
	}
	if err := c.Quit(); err != nil {
		return m.fail(ctx, err)
	}
	return nil
}

// fail reports socket timeouts as the context error that caused them
func (m *SMTPMailer) fail(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case stderrors.As(err, &netErr) && netErr.Timeout():
		err = context.DeadlineExceeded
	}
	return fmt.Errorf("smtp %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
}

// smtpSender adapts an open SMTP session to gomail
func smtpSender(c *smtp.Client) gomail.SendFunc {
	return func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}
}

// FormatEmailSubject renders "[SEVERITY] name on instance"
func FormatEmailSubject(rec *alert.Record) string {
	return fmt.Sprintf("[%s] %s on %s", strings.ToUpper(rec.Severity().String()), rec.Name(), rec.Instance())
}

// FormatEmailBody renders the plain text notification body
func FormatEmailBody(rec *alert.Record) string {
	var b strings.Builder
	b.WriteString("Security Alert Details:\n")
	b.WriteString("---------------------\n")
	fmt.Fprintf(&b, "Name: %s\n", rec.Name())
	fmt.Fprintf(&b, "Severity: %s\n", rec.Severity())
	fmt.Fprintf(&b, "Instance: %s\n", rec.Instance())
	fmt.Fprintf(&b, "Description: %s\n", rec.Description())
	fmt.Fprintf(&b, "Time: %s\n", rec.Timestamp().Format(alert.TimestampLayout))
	if rec.SourceIP() != "" {
		fmt.Fprintf(&b, "Source IP: %s\n", rec.SourceIP())
	}
	if rec.User() != "" {
		fmt.Fprintf(&b, "User: %s\n", rec.User())
	}

	if rec.HasMetrics() {
		m := rec.Metrics()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\nMetrics:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, m[k])
		}
	}
	return b.String()
}

// NotifySink emails alerts to a fixed recipient list
type NotifySink struct {
	mailer Notifier
	to     []string
}

// NewNotifySink creates a notify sink
func NewNotifySink(mailer Notifier, to []string) *NotifySink {
	return &NotifySink{mailer: mailer, to: to}
}

// Name implements Sink
func (s *NotifySink) Name() alert.Sink { return alert.SinkNotify }

// Deliver implements Sink
func (s *NotifySink) Deliver(ctx context.Context, rec *alert.Record) error {
	if err := s.mailer.SendEmail(ctx, s.to, FormatEmailSubject(rec), FormatEmailBody(rec)); err != nil {
		return errors.SinkFailure(string(alert.SinkNotify), err)
	}
	return nil
}

// Package mail delivers transactional email over SMTP.
package mail

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

// Sender is the narrow contract the workflows depend on.
type Sender interface {
	SendPasswordReset(to, name, link string) error
}

// Config carries the SMTP transport settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	StartTLS bool
}

// Mailer sends mail through a plain SMTP transport.
type Mailer struct {
	cfg Config
	log *slog.Logger
}

// NewMailer constructs a Mailer.
func NewMailer(cfg Config, log *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// SendPasswordReset delivers the reset link to the account's address.
func (m *Mailer) SendPasswordReset(to, name, link string) error {
	subject := "Password reset request"
	body := fmt.Sprintf("Hello %s,\n\nA password reset was requested for your account. Follow the link below to choose a new password:\n\n%s\n\nThe link expires in one hour. If you did not request a reset you can ignore this message.\n", name, link)
	return m.send([]string{to}, subject, body)
}

func (m *Mailer) send(to []string, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	client, err := m.connect()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail: set sender: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("mail: set recipient: %w", err)
		}
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: open data writer: %w", err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("mail: close data writer: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("mail: quit: %w", err)
	}

	m.log.Info("email sent", slog.String("to", strings.Join(to, ";")), slog.String("subject", subject))
	return nil
}

func (m *Mailer) connect() (*smtp.Client, error) {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mail: dial smtp server: %w", err)
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mail: new smtp client: %w", err)
	}

	if m.cfg.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("mail: smtp server does not support STARTTLS")
		}
		tlsConfig := &tls.Config{
			ServerName: m.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("mail: start tls: %w", err)
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("mail: auth: %w", err)
		}
	}

	return client, nil
}

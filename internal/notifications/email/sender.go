// Package email delivers notifications over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/notifications"
)

const (
	defaultPort  = 587
	implicitTLS  = 465
	dialTimeout  = 10 * time.Second
	writeTimeout = 30 * time.Second
)

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
}

// Sender delivers email notifications. Port 465 uses implicit TLS, any other
// port upgrades with STARTTLS when the server offers it.
type Sender struct {
	config Config
	from   *mail.Address
	auth   smtp.Auth
	now    func() time.Time
}

// NewSender validates config and creates a sender. A disabled sender is valid
// and rejects every Send.
func NewSender(config Config) (*Sender, error) {
	if config.SMTPPort == 0 {
		config.SMTPPort = defaultPort
	}

	s := &Sender{config: config, now: time.Now}
	if !config.Enabled {
		return s, nil
	}

	if config.SMTPHost == "" {
		return nil, errors.New("email sender: SMTP host is required when enabled")
	}
	if config.FromAddress == "" {
		return nil, errors.New("email sender: from address is required when enabled")
	}
	from, err := mail.ParseAddress(config.FromAddress)
	if err != nil {
		return nil, fmt.Errorf("email sender: invalid from address: %w", err)
	}
	s.from = from

	if config.SMTPUser != "" && config.SMTPPassword != "" {
		s.auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email sender configured",
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from", from.Address,
		"auth", s.auth != nil,
	)
	return s, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeEmail
}

// Send delivers one message. Failures are wrapped as retryable or permanent
// for the queue worker.
func (s *Sender) Send(ctx context.Context, n notifications.Notification) error {
	if !s.config.Enabled {
		return notifications.ErrChannelDisabled
	}
	if n.To == "" {
		return notifications.NewNonRetryableError(errors.New("empty recipient"))
	}
	to, err := mail.ParseAddress(n.To)
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("invalid recipient: %w", err))
	}

	msg := message{
		From:    s.from,
		To:      to,
		Subject: n.Subject,
		Body:    n.Body,
		Date:    s.now(),
	}

	if err := s.deliver(ctx, to.Address, msg.Bytes()); err != nil {
		if IsRetryable(err) {
			return notifications.NewRetryableError(err)
		}
		return notifications.NewNonRetryableError(err)
	}
	return nil
}

func (s *Sender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.config.SMTPHost, strconv.Itoa(s.config.SMTPPort))
	tlsConfig := &tls.Config{ServerName: s.config.SMTPHost, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if s.config.SMTPPort == implicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial smtp: %w", err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp greeting: %w", err)
	}

	if s.config.SMTPPort != implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}
	return client, nil
}

func (s *Sender) deliver(ctx context.Context, rcpt string, body []byte) error {
	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(s.from.Address); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(rcpt); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return client.Quit()
}

// IsRetryable reports whether an SMTP failure is worth another attempt:
// network errors, 4xx replies and 552 (mailbox full).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code/100 == 4 || tpErr.Code == 552
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

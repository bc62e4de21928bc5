package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	mail "gopkg.in/gomail.v2"
)

// SMTPRelay submits mail to the relay's SMTP endpoint instead of its HTTP API.
type SMTPRelay struct {
	host          string
	port          int
	username      string
	password      string
	skipTLSVerify bool
	timeout       time.Duration
	logger        *slog.Logger
}

// NewSMTPRelay parses mailHub as host:port.
func NewSMTPRelay(mailHub, username, password string, skipTLSVerify bool, timeout time.Duration, logger *slog.Logger) (*SMTPRelay, error) {
	host, portStr, err := net.SplitHostPort(mailHub)
	if err != nil {
		return nil, fmt.Errorf("invalid MAILHUB format: %s. Expected host:port", mailHub)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in MAILHUB: %v", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if skipTLSVerify {
		logger.Warn("TLS certificate verification is disabled for the SMTP relay")
	}
	return &SMTPRelay{
		host:          host,
		port:          port,
		username:      username,
		password:      password,
		skipTLSVerify: skipTLSVerify,
		timeout:       timeout,
		logger:        logger,
	}, nil
}

func (s *SMTPRelay) Send(ctx context.Context, msg OutboundMessage) (RelayResult, error) {
	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	if msg.PlainBody != "" {
		m.SetBody("text/plain", msg.PlainBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	for _, a := range msg.Attachments {
		content := a.Content
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, bytes.NewReader(content))
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		m.Attach(a.Filename, settings...)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.submit(ctx, m); err != nil {
		if ctx.Err() != nil {
			return RelayResult{}, transportError(ctx.Err())
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return RelayResult{}, transportError(err)
		}
		return RelayResult{}, rejectedError([]byte(err.Error()), fmt.Errorf("could not send email: %w", err))
	}

	s.logger.Info("email submitted over SMTP", "to", msg.To, "attachments", len(msg.Attachments))
	resp, _ := json.Marshal(map[string]string{"status": "success", "transport": "smtp"})
	return RelayResult{Response: resp}, nil
}

// submit runs one SMTP session bounded by ctx. The connection carries ctx's
// deadline and is cut off when ctx ends, so nothing outlives the call. A
// timeout after the body was written still leaves delivery unknown.
func (s *SMTPRelay) submit(ctx context.Context, m *mail.Message) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	tlsConfig := &tls.Config{
		ServerName:         s.host,
		InsecureSkipVerify: s.skipTLSVerify,
	}
	// Port 465 speaks TLS from the first byte.
	if s.port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok && s.port != 465 {
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}
	if s.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
				return fmt.Errorf("SMTP auth: %w", err)
			}
		}
	}

	// gomail flattens the sender's error into text; keep the original.
	var sessionErr error
	send := mail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		sessionErr = deliverSMTP(c, from, to, msg)
		return sessionErr
	})
	if err := mail.Send(send, m); err != nil {
		if sessionErr != nil {
			return sessionErr
		}
		return err
	}
	return c.Quit()
}

func deliverSMTP(c *smtp.Client, from string, to []string, msg io.WriterTo) error {
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := msg.WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP end of data: %w", err)
	}
	return nil
}

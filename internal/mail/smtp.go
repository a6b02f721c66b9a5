// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package mail

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// ImplicitTLSPort is the submission port that speaks TLS from the first byte.
const ImplicitTLSPort = 465

// DefaultSMTPTimeout bounds dialing and the whole SMTP conversation.
const DefaultSMTPTimeout = 10 * time.Second

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SenderName string
	Timeout    time.Duration
}

// SMTPTransport delivers messages over SMTP. Port 465 uses implicit TLS,
// any other port upgrades with STARTTLS.
type SMTPTransport struct {
	cfg  SMTPConfig
	auth smtp.Auth
	now  func() time.Time
}

// NewSMTPTransport validates cfg and creates an SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}

	t := &SMTPTransport{cfg: cfg, now: time.Now}
	if cfg.Username != "" {
		t.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return t, nil
}

// NewSMTPDispatcher creates a Dispatcher that sends over SMTP.
func NewSMTPDispatcher(cfg SMTPConfig, opts Options) (*Dispatcher, error) {
	transport, err := NewSMTPTransport(cfg)
	if err != nil {
		return nil, err
	}
	return NewDispatcher(transport, opts)
}

// Deliver sends msg. The conversation is abandoned when ctx ends or the
// configured timeout passes.
func (t *SMTPTransport) Deliver(ctx context.Context, msg *Message) error {
	address := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	conn, err := t.dial(ctx, address)
	if err != nil {
		return oops.Code("SMTP_DIAL_FAILED").With("address", address).Wrap(err)
	}
	defer conn.Close() //nolint:errcheck // client.Quit reports the meaningful error
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // a failed deadline surfaces as an I/O error
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return oops.Code("SMTP_HANDSHAKE_FAILED").With("address", address).Wrap(err)
	}
	defer client.Close() //nolint:errcheck // client.Quit reports the meaningful error

	if t.cfg.Port != ImplicitTLSPort {
		if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return oops.Code("SMTP_STARTTLS_FAILED").With("address", address).Wrap(err)
		}
	}
	if t.auth != nil {
		if err := client.Auth(t.auth); err != nil {
			return oops.Code("SMTP_AUTH_FAILED").With("username", t.cfg.Username).Wrap(err)
		}
	}
	if err := client.Mail(t.cfg.From); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "mail from").Wrap(err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "rcpt to").Wrap(err)
	}

	w, err := client.Data()
	if err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "data").Wrap(err)
	}
	if _, err := w.Write(t.build(msg)); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "write").Wrap(err)
	}
	if err := w.Close(); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "close data").Wrap(err)
	}
	if err := client.Quit(); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "quit").Wrap(err)
	}
	return nil
}

func (t *SMTPTransport) dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if t.cfg.Port == ImplicitTLSPort {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12},
		}
		return tlsDialer.DialContext(ctx, "tcp", address)
	}
	return dialer.DialContext(ctx, "tcp", address)
}

// build renders the RFC 5322 message with CRLF line endings.
func (t *SMTPTransport) build(msg *Message) []byte {
	from := t.cfg.From
	if t.cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", t.cfg.SenderName), t.cfg.From)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID(t.cfg.From))
	fmt.Fprintf(&b, "Date: %s\r\n", t.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.Write(bytes.ReplaceAll(normalizeNewlines(msg.HTMLBody), []byte("\n"), []byte("\r\n")))
	return b.Bytes()
}

func normalizeNewlines(body []byte) []byte {
	return bytes.ReplaceAll(body, []byte("\r\n"), []byte("\n"))
}

func messageID(from string) string {
	domain := "localhost"
	if _, d, ok := strings.Cut(from, "@"); ok && d != "" {
		domain = d
	}
	b := make([]byte, 12)
	_, _ = rand.Read(b) //nolint:errcheck // crypto/rand.Read does not fail
	return fmt.Sprintf("<%s@%s>", hex.EncodeToString(b), domain)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

// Package mail renders account notifications and hands them to a transport.
package mail

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/pkg/errutil"
)

var _ auth.MailDispatcher = (*Dispatcher)(nil)

// Message is a rendered notification ready for delivery.
type Message struct {
	To       string
	Subject  string
	HTMLBody []byte
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg *Message) error
}

// Options configures a Dispatcher.
type Options struct {
	// SiteName appears in subjects and bodies.
	SiteName string
	// BaseURL prefixes the email confirmation link, e.g. "https://example.org".
	BaseURL string
	// TTLs is used to tell recipients how long a reset code stays valid.
	TTLs auth.TokenTTLs
	// Logger receives delivery failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher implements auth.MailDispatcher on top of a Transport.
// Every failure is logged and counted, and reported to the caller as false.
type Dispatcher struct {
	transport Transport
	templates templates
	opts      Options
}

// NewDispatcher creates a Dispatcher with the embedded templates.
func NewDispatcher(transport Transport, opts Options) (*Dispatcher, error) {
	if transport == nil {
		return nil, oops.Code("MAIL_DISPATCHER_INVALID").Errorf("transport cannot be nil")
	}
	if opts.SiteName == "" {
		opts.SiteName = "Neighborly"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TTLs == (auth.TokenTTLs{}) {
		opts.TTLs = auth.DefaultTokenTTLs
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	ts, err := defaultTemplates()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{transport: transport, templates: ts, opts: opts}, nil
}

// SendPasswordRecoverCode mails the reset code.
func (d *Dispatcher) SendPasswordRecoverCode(ctx context.Context, user *auth.User, code string) bool {
	return d.send(ctx, TemplatePasswordRecoverCode, user, templateData{
		Code:      code,
		ValidDays: d.opts.TTLs.ResetDays,
	})
}

// SendPasswordSuccessfullyChanged notifies about a completed reset.
func (d *Dispatcher) SendPasswordSuccessfullyChanged(ctx context.Context, user *auth.User) bool {
	return d.send(ctx, TemplatePasswordChanged, user, templateData{})
}

// SendAccountCreated mails the confirmation link for token.
func (d *Dispatcher) SendAccountCreated(ctx context.Context, user *auth.User, token *auth.SecurityToken) bool {
	if token == nil || token.Value == "" {
		d.fail(ctx, TemplateAccountCreated, user,
			oops.Code("MAIL_TOKEN_MISSING").Errorf("confirmation token has no plaintext value"))
		return false
	}
	days := int(token.ExpiryDate.Sub(token.CreationDate).Hours() / 24)
	return d.send(ctx, TemplateAccountCreated, user, templateData{
		Link:      d.confirmLink(user, token.Value),
		ValidDays: days,
	})
}

// SendAccountConfirmed notifies about a confirmed address.
func (d *Dispatcher) SendAccountConfirmed(ctx context.Context, user *auth.User) bool {
	return d.send(ctx, TemplateAccountConfirmed, user, templateData{})
}

func (d *Dispatcher) confirmLink(user *auth.User, value string) string {
	q := url.Values{}
	q.Set("userId", user.ID.String())
	q.Set("token", value)
	return d.opts.BaseURL + "/api/email-confirm?" + q.Encode()
}

func (d *Dispatcher) send(ctx context.Context, name string, user *auth.User, data templateData) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, name, user, oops.Code("MAIL_PANIC").Errorf("transport panic: %v", r))
			ok = false
		}
	}()

	if user == nil || user.Email == "" {
		d.fail(ctx, name, user, oops.Code("MAIL_RECIPIENT_MISSING").Errorf("recipient has no email address"))
		return false
	}

	data.SiteName = d.opts.SiteName
	data.Email = user.Email
	subject, body, err := d.templates.render(name, data)
	if err != nil {
		d.fail(ctx, name, user, err)
		return false
	}

	msg := &Message{To: user.Email, Subject: subject, HTMLBody: body}
	if err := d.transport.Deliver(ctx, msg); err != nil {
		d.fail(ctx, name, user, oops.Code("MAIL_DELIVERY_FAILED").With("template", name).Wrap(err))
		return false
	}

	Dispatches.WithLabelValues(name, StatusSent).Inc()
	d.opts.Logger.DebugContext(ctx, "mail sent", "template", name, "user_id", userID(user))
	return true
}

func (d *Dispatcher) fail(ctx context.Context, name string, user *auth.User, err error) {
	Dispatches.WithLabelValues(name, StatusFailed).Inc()
	errutil.LogErrorContext(ctx, d.opts.Logger, "mail dispatch failed", err,
		"template", name, "user_id", userID(user))
}

func userID(user *auth.User) string {
	if user == nil {
		return ""
	}
	return user.ID.String()
}


// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/neighborly/neighborly/internal/auth"
)

var _ auth.MailDispatcher = (*Mailer)(nil)

// Mail kinds recorded by Mailer.
const (
	MailPasswordRecoverCode = "password_recover_code"
	MailPasswordChanged     = "password_changed"
	MailAccountCreated      = "account_created"
	MailAccountConfirmed    = "account_confirmed"
)

// SentMail is one recorded dispatch.
type SentMail struct {
	Kind  string
	To    string
	Code  string
	Token *auth.SecurityToken
}

// Mailer records every dispatch. Deliveries of kinds listed in Fail report false.
type Mailer struct {
	mu   sync.Mutex
	Sent []SentMail
	Fail map[string]bool
}

// NewMailer creates a Mailer that delivers everything.
func NewMailer() *Mailer {
	return &Mailer{Fail: make(map[string]bool)}
}

// FailOn makes deliveries of kind report false.
func (m *Mailer) FailOn(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail[kind] = true
}

// Last returns the most recent dispatch of kind.
func (m *Mailer) Last(kind string) (SentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sent) - 1; i >= 0; i-- {
		if m.Sent[i].Kind == kind {
			return m.Sent[i], true
		}
	}
	return SentMail{}, false
}

// Count returns how many dispatches of kind were attempted.
func (m *Mailer) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func (m *Mailer) record(sent SentMail) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sent)
	return !m.Fail[sent.Kind]
}

// SendPasswordRecoverCode records the reset code.
func (m *Mailer) SendPasswordRecoverCode(_ context.Context, user *auth.User, code string) bool {
	return m.record(SentMail{Kind: MailPasswordRecoverCode, To: user.Email, Code: code})
}

// SendPasswordSuccessfullyChanged records the change notice.
func (m *Mailer) SendPasswordSuccessfullyChanged(_ context.Context, user *auth.User) bool {
	return m.record(SentMail{Kind: MailPasswordChanged, To: user.Email})
}

// SendAccountCreated records the confirmation token.
func (m *Mailer) SendAccountCreated(_ context.Context, user *auth.User, token *auth.SecurityToken) bool {
	return m.record(SentMail{Kind: MailAccountCreated, To: user.Email, Code: token.Value, Token: token})
}

// SendAccountConfirmed records the confirmation notice.
func (m *Mailer) SendAccountConfirmed(_ context.Context, user *auth.User) bool {
	return m.record(SentMail{Kind: MailAccountConfirmed, To: user.Email})
}

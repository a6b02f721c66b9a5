// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighborly/neighborly/internal/auth"
)

type recordingTransport struct {
	mu    sync.Mutex
	sent  []*Message
	err   error
	panic bool
}

func (r *recordingTransport) Deliver(_ context.Context, msg *Message) error {
	if r.panic {
		panic("smtp exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) last(t *testing.T) *Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent, "no message delivered")
	return r.sent[len(r.sent)-1]
}

func newTestDispatcher(t *testing.T, transport Transport) (*Dispatcher, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	d, err := NewDispatcher(transport, Options{
		SiteName: "Neighborly",
		BaseURL:  "https://neighborly.example/",
		TTLs:     auth.TokenTTLs{EmailConfirmDays: 7, ResetDays: 2},
		Logger:   slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)
	return d, &logs
}

func testUser() *auth.User {
	return &auth.User{ID: ulid.Make(), Email: "alice@example.com"}
}

func TestNewDispatcher_RequiresTransport(t *testing.T) {
	_, err := NewDispatcher(nil, Options{})
	require.Error(t, err)
}

func TestDispatcher_SendPasswordRecoverCode(t *testing.T) {
	transport := &recordingTransport{}
	d, _ := newTestDispatcher(t, transport)
	before := testutil.ToFloat64(Dispatches.WithLabelValues(TemplatePasswordRecoverCode, StatusSent))

	ok := d.SendPasswordRecoverCode(context.Background(), testUser(), "c0ffee")

	require.True(t, ok)
	msg := transport.last(t)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Your Neighborly password reset code", msg.Subject)
	assert.Contains(t, string(msg.HTMLBody), "c0ffee")
	assert.Contains(t, string(msg.HTMLBody), "expires after 2 day(s)")
	assert.Equal(t, before+1, testutil.ToFloat64(Dispatches.WithLabelValues(TemplatePasswordRecoverCode, StatusSent)))
}

func TestDispatcher_SendAccountCreated_BuildsConfirmLink(t *testing.T) {
	transport := &recordingTransport{}
	d, _ := newTestDispatcher(t, transport)
	user := testUser()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	token, err := auth.NewSecurityToken(auth.TokenTypeEmailConfirm, user.ID, "a+b&c", day, 7)
	require.NoError(t, err)

	require.True(t, d.SendAccountCreated(context.Background(), user, token))

	body := string(transport.last(t).HTMLBody)
	assert.Contains(t, body, "expires after 7 day(s)")

	start := strings.Index(body, `href="`) + len(`href="`)
	end := strings.Index(body[start:], `"`)
	link, err := url.Parse(strings.ReplaceAll(body[start:start+end], "&amp;", "&"))
	require.NoError(t, err)
	assert.Equal(t, "neighborly.example", link.Host)
	assert.Equal(t, "/api/email-confirm", link.Path)
	assert.Equal(t, user.ID.String(), link.Query().Get("userId"))
	assert.Equal(t, "a+b&c", link.Query().Get("token"))
}

func TestDispatcher_SendAccountCreated_WithoutPlaintextFails(t *testing.T) {
	transport := &recordingTransport{}
	d, _ := newTestDispatcher(t, transport)
	user := testUser()

	assert.False(t, d.SendAccountCreated(context.Background(), user, nil))
	assert.False(t, d.SendAccountCreated(context.Background(), user, &auth.SecurityToken{ValueHash: "abc"}))
	assert.Empty(t, transport.sent)
}

func TestDispatcher_NotificationsWithoutCode(t *testing.T) {
	transport := &recordingTransport{}
	d, _ := newTestDispatcher(t, transport)
	ctx := context.Background()

	require.True(t, d.SendPasswordSuccessfullyChanged(ctx, testUser()))
	assert.Equal(t, "Your Neighborly password was changed", transport.last(t).Subject)

	require.True(t, d.SendAccountConfirmed(ctx, testUser()))
	assert.Equal(t, "Your Neighborly email address is confirmed", transport.last(t).Subject)
}

func TestDispatcher_FailuresReportFalse(t *testing.T) {
	tests := []struct {
		name      string
		transport *recordingTransport
		user      *auth.User
		wantCode  string
	}{
		{
			name:      "transport error",
			transport: &recordingTransport{err: errors.New("connection refused")},
			user:      testUser(),
			wantCode:  "MAIL_DELIVERY_FAILED",
		},
		{
			name:      "transport panic",
			transport: &recordingTransport{panic: true},
			user:      testUser(),
			wantCode:  "MAIL_PANIC",
		},
		{
			name:      "missing recipient",
			transport: &recordingTransport{},
			user:      &auth.User{ID: ulid.Make()},
			wantCode:  "MAIL_RECIPIENT_MISSING",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, logs := newTestDispatcher(t, tt.transport)
			before := testutil.ToFloat64(Dispatches.WithLabelValues(TemplateAccountConfirmed, StatusFailed))

			ok := d.SendAccountConfirmed(context.Background(), tt.user)

			assert.False(t, ok)
			assert.Equal(t, before+1, testutil.ToFloat64(Dispatches.WithLabelValues(TemplateAccountConfirmed, StatusFailed)))
			assert.Contains(t, logs.String(), "mail dispatch failed")
			assert.Contains(t, logs.String(), tt.wantCode)
		})
	}
}

func TestNewLogDispatcher_LogsInsteadOfSending(t *testing.T) {
	var logs bytes.Buffer
	d, err := NewLogDispatcher(Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	require.NoError(t, err)

	require.True(t, d.SendPasswordRecoverCode(context.Background(), testUser(), "abc123"))
	assert.Contains(t, logs.String(), "mail delivery skipped")
	assert.Contains(t, logs.String(), "alice@example.com")
	assert.Contains(t, logs.String(), "abc123")
}

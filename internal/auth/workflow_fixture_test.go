// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/auth/authtest"
)

// workflowFixture wires the workflows against in-memory collaborators.
type workflowFixture struct {
	store    *authtest.Store
	mailer   *authtest.Mailer
	hasher   *auth.Argon2idHasher
	tokens   *auth.TokenManager
	reset    *auth.PasswordResetWorkflow
	confirm  *auth.EmailConfirmationWorkflow
	register *auth.RegistrationService
	logs     *bytes.Buffer
}

func newWorkflowFixture(t *testing.T, now time.Time) *workflowFixture {
	t.Helper()

	store := authtest.NewStore()
	mailer := authtest.NewMailer()
	hasher := auth.NewArgon2idHasher(auth.WithArgon2Params(fastParams))
	tokens, err := auth.NewTokenManager(store.Tokens(), auth.TokenTTLs{EmailConfirmDays: 7, ResetDays: 1},
		auth.WithTokenClock(fixedClock(now)))
	require.NoError(t, err)

	var logs bytes.Buffer
	opts := []auth.WorkflowOption{
		auth.WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
		auth.WithTransactor(store),
	}

	reset, err := auth.NewPasswordResetWorkflow(store, tokens, hasher, mailer, opts...)
	require.NoError(t, err)
	confirm, err := auth.NewEmailConfirmationWorkflow(store, tokens, mailer, opts...)
	require.NoError(t, err)
	register, err := auth.NewRegistrationService(store, tokens, hasher, mailer, opts...)
	require.NoError(t, err)

	return &workflowFixture{
		store:    store,
		mailer:   mailer,
		hasher:   hasher,
		tokens:   tokens,
		reset:    reset,
		confirm:  confirm,
		register: register,
		logs:     &logs,
	}
}

// addUser stores a user whose password is "old password".
func (f *workflowFixture) addUser(t *testing.T, email string, confirmed bool) *auth.User {
	t.Helper()
	hash, err := f.hasher.Hash("old password")
	require.NoError(t, err)
	user, err := auth.NewUser(email, hash)
	require.NoError(t, err)
	user.EmailConfirmed = confirmed
	require.NoError(t, f.store.Create(context.Background(), user))
	return user
}

// outcomes returns the outcome attribute of every workflow log entry.
func (f *workflowFixture) outcomes(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(f.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if outcome, ok := entry["outcome"].(string); ok {
			out = append(out, outcome)
		}
	}
	return out
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/auth/authtest"
	"github.com/neighborly/neighborly/pkg/errutil"
)

func TestEmailConfirmationWorkflow_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token confirms and is consumed", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		token, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, user)
		require.NoError(t, err)

		assert.True(t, f.confirm.Confirm(ctx, user.ID, token.Value))

		stored, err := f.store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.EmailConfirmed)
		storedToken, _ := f.store.Token(token.ID)
		assert.True(t, storedToken.Used)
		assert.Equal(t, 1, f.mailer.Count(authtest.MailAccountConfirmed))
	})

	t.Run("already confirmed user is rejected without touching tokens", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", true)
		token, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, user)
		require.NoError(t, err)

		assert.False(t, f.confirm.Confirm(ctx, user.ID, token.Value))
		storedToken, _ := f.store.Token(token.ID)
		assert.False(t, storedToken.Used)
		assert.Equal(t, []string{"already_confirmed"}, f.outcomes(t))
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		assert.False(t, f.confirm.Confirm(ctx, ulid.Make(), "whatever"))
		assert.Equal(t, []string{"user_not_found"}, f.outcomes(t))
	})

	t.Run("reset token cannot confirm an email", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		reset, err := f.tokens.Create(ctx, auth.TokenTypeReset, user)
		require.NoError(t, err)

		assert.False(t, f.confirm.Confirm(ctx, user.ID, reset.Value))
		stored, err := f.store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, stored.EmailConfirmed)
		assert.Equal(t, []string{"token_invalid"}, f.outcomes(t))
	})

	t.Run("token issued to another user is rejected", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		owner := f.addUser(t, "u1@example.com", false)
		other := f.addUser(t, "u2@example.com", false)
		token, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, owner)
		require.NoError(t, err)

		assert.False(t, f.confirm.Confirm(ctx, other.ID, token.Value))
		assert.True(t, f.confirm.Confirm(ctx, owner.ID, token.Value))
	})

	t.Run("notification failure does not change the result", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		token, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, user)
		require.NoError(t, err)
		f.mailer.FailOn(authtest.MailAccountConfirmed)

		assert.True(t, f.confirm.Confirm(ctx, user.ID, token.Value))
	})

	t.Run("update failure rolls back the claim", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		token, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, user)
		require.NoError(t, err)

		users := new(mockUserRepository)
		users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
		users.On("MarkEmailConfirmed", mock.Anything, user.ID).Return(false, errors.New("deadlock"))
		workflow, err := auth.NewEmailConfirmationWorkflow(users, f.tokens, f.mailer, auth.WithTransactor(f.store))
		require.NoError(t, err)

		assert.False(t, workflow.Confirm(ctx, user.ID, token.Value))
		assert.False(t, user.EmailConfirmed, "in-memory user is unchanged")
		storedToken, _ := f.store.Token(token.ID)
		assert.False(t, storedToken.Used)
		assert.Zero(t, f.mailer.Count(authtest.MailAccountConfirmed))
	})

	t.Run("password reset between lookup and write is kept", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		confirmToken, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, user)
		require.NoError(t, err)
		resetToken, err := f.tokens.Create(ctx, auth.TokenTypeReset, user)
		require.NoError(t, err)

		users := &interleavedUsers{UserRepository: f.store, afterGet: func() {
			require.True(t, f.reset.Complete(ctx, "u1@example.com", resetToken.Value, "new password"))
		}}
		workflow, err := auth.NewEmailConfirmationWorkflow(users, f.tokens, f.mailer, auth.WithTransactor(f.store))
		require.NoError(t, err)

		assert.True(t, workflow.Confirm(ctx, user.ID, confirmToken.Value))

		stored, err := f.store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.EmailConfirmed)
		ok, err := f.hasher.Verify("new password", stored.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok, "new password must survive the confirmation")
		ok, err = f.hasher.Verify("old password", stored.PasswordHash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("confirmed between lookup and write rolls back the claim", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		token, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, user)
		require.NoError(t, err)

		users := &interleavedUsers{UserRepository: f.store, afterGet: func() {
			confirmed, markErr := f.store.MarkEmailConfirmed(ctx, user.ID)
			require.NoError(t, markErr)
			require.True(t, confirmed)
		}}
		workflow, err := auth.NewEmailConfirmationWorkflow(users, f.tokens, f.mailer, auth.WithTransactor(f.store))
		require.NoError(t, err)

		assert.False(t, workflow.Confirm(ctx, user.ID, token.Value))
		storedToken, _ := f.store.Token(token.ID)
		assert.False(t, storedToken.Used)
		assert.Zero(t, f.mailer.Count(authtest.MailAccountConfirmed))
	})
}

// interleavedUsers runs afterGet once, right after the first GetByID returns.
type interleavedUsers struct {
	auth.UserRepository
	afterGet func()
	done     bool
}

func (u *interleavedUsers) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	user, err := u.UserRepository.GetByID(ctx, id)
	if !u.done {
		u.done = true
		u.afterGet()
	}
	return user, err
}

func TestEmailConfirmationWorkflow_Resend(t *testing.T) {
	ctx := context.Background()

	t.Run("retires outstanding tokens and mails a new one", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		old, err := f.tokens.Create(ctx, auth.TokenTypeEmailConfirm, user)
		require.NoError(t, err)
		reset, err := f.tokens.Create(ctx, auth.TokenTypeReset, user)
		require.NoError(t, err)

		assert.True(t, f.confirm.Resend(ctx, user.ID))

		sent, ok := f.mailer.Last(authtest.MailAccountCreated)
		require.True(t, ok)
		require.NotNil(t, sent.Token)
		assert.NotEqual(t, old.Value, sent.Code)

		oldStored, _ := f.store.Token(old.ID)
		assert.True(t, oldStored.Used, "previous confirmation token is retired")
		newStored, _ := f.store.Token(sent.Token.ID)
		assert.False(t, newStored.Used, "fresh token is never retired")
		resetStored, _ := f.store.Token(reset.ID)
		assert.False(t, resetStored.Used)

		assert.False(t, f.confirm.Confirm(ctx, user.ID, old.Value))
		assert.True(t, f.confirm.Confirm(ctx, user.ID, sent.Code))
	})

	t.Run("already confirmed user", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", true)
		assert.False(t, f.confirm.Resend(ctx, user.ID))
		assert.Zero(t, f.mailer.Count(authtest.MailAccountCreated))
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		assert.False(t, f.confirm.Resend(ctx, ulid.Make()))
	})

	t.Run("mail failure reports false", func(t *testing.T) {
		f := newWorkflowFixture(t, day)
		user := f.addUser(t, "u1@example.com", false)
		f.mailer.FailOn(authtest.MailAccountCreated)

		assert.False(t, f.confirm.Resend(ctx, user.ID))
		tokens, err := f.store.ListByOwner(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, tokens, 1)
		assert.Equal(t, []string{"mail_failed"}, f.outcomes(t))
	})
}

func TestNewEmailConfirmationWorkflow_Validation(t *testing.T) {
	_, err := auth.NewEmailConfirmationWorkflow(nil, nil, nil)
	errutil.AssertErrorCode(t, err, "CONFIRM_WORKFLOW_INVALID")
}

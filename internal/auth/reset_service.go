// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/neighborly/neighborly/pkg/errutil"
)

// PasswordResetWorkflow handles forgotten-password requests and their completion.
type PasswordResetWorkflow struct {
	users  UserRepository
	tokens *TokenManager
	hasher PasswordHasher
	mailer MailDispatcher
	tx     Transactor
	logger *slog.Logger
}

// NewPasswordResetWorkflow creates a PasswordResetWorkflow.
func NewPasswordResetWorkflow(
	users UserRepository,
	tokens *TokenManager,
	hasher PasswordHasher,
	mailer MailDispatcher,
	opts ...WorkflowOption,
) (*PasswordResetWorkflow, error) {
	if users == nil || tokens == nil || hasher == nil || mailer == nil {
		return nil, oops.Code("RESET_WORKFLOW_INVALID").
			Errorf("user repository, token manager, hasher and mailer are required")
	}
	o := newWorkflowOptions(opts)
	return &PasswordResetWorkflow{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		mailer: mailer,
		tx:     o.tx,
		logger: o.logger,
	}, nil
}

// Request issues a reset token for the user registered under email and
// mails it. Returns false for an unknown email, a storage failure, or a
// failed delivery.
func (w *PasswordResetWorkflow) Request(ctx context.Context, email string) bool {
	ctx, span := tracer.Start(ctx, "auth.reset.request")
	defer span.End()

	user, err := w.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return recordOutcome(ctx, w.logger, WorkflowResetRequest, OutcomeUserNotFound)
		}
		errutil.LogErrorContext(ctx, w.logger, "password reset lookup failed", err)
		span.RecordError(err)
		return recordOutcome(ctx, w.logger, WorkflowResetRequest, OutcomeStoreFailed)
	}

	token, err := w.tokens.Create(ctx, TokenTypeReset, user)
	if err != nil {
		errutil.LogErrorContext(ctx, w.logger, "password reset token not issued", err, "user_id", user.ID.String())
		span.RecordError(err)
		return recordOutcome(ctx, w.logger, WorkflowResetRequest, OutcomeStoreFailed, "user_id", user.ID.String())
	}

	if !w.mailer.SendPasswordRecoverCode(ctx, user, token.Value) {
		return recordOutcome(ctx, w.logger, WorkflowResetRequest, OutcomeMailFailed, "user_id", user.ID.String())
	}
	return recordOutcome(ctx, w.logger, WorkflowResetRequest, OutcomeOK, "user_id", user.ID.String())
}

// Complete redeems a reset token and replaces the user's password. The token
// claim and the password write happen in one transaction. The result is the
// delivery status of the change notification, so a completed change whose
// notification fails still reports false.
func (w *PasswordResetWorkflow) Complete(ctx context.Context, email, rawToken, newPassword string) bool {
	ctx, span := tracer.Start(ctx, "auth.reset.complete")
	defer span.End()

	if newPassword == "" {
		return recordOutcome(ctx, w.logger, WorkflowResetComplete, OutcomeInvalidInput)
	}

	user, err := w.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return recordOutcome(ctx, w.logger, WorkflowResetComplete, OutcomeUserNotFound)
		}
		errutil.LogErrorContext(ctx, w.logger, "password reset lookup failed", err)
		span.RecordError(err)
		return recordOutcome(ctx, w.logger, WorkflowResetComplete, OutcomeStoreFailed)
	}

	err = w.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, claimErr := w.tokens.Claim(ctx, user.ID, TokenTypeReset, rawToken); claimErr != nil {
			return claimErr
		}
		hash, hashErr := w.hasher.Hash(newPassword)
		if hashErr != nil {
			return oops.Code("RESET_PASSWORD_FAILED").With("operation", "Hash").Wrap(hashErr)
		}
		if updateErr := w.users.UpdatePassword(ctx, user.ID, hash); updateErr != nil {
			return oops.Code("RESET_PASSWORD_FAILED").With("operation", "UpdatePassword").Wrap(updateErr)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return recordOutcome(ctx, w.logger, WorkflowResetComplete, OutcomeTokenInvalid, "user_id", user.ID.String())
		}
		errutil.LogErrorContext(ctx, w.logger, "password reset not applied", err, "user_id", user.ID.String())
		span.RecordError(err)
		return recordOutcome(ctx, w.logger, WorkflowResetComplete, OutcomeStoreFailed, "user_id", user.ID.String())
	}

	if !w.mailer.SendPasswordSuccessfullyChanged(ctx, user) {
		return recordOutcome(ctx, w.logger, WorkflowResetComplete, OutcomeMailFailed,
			"user_id", user.ID.String(), "password_changed", true)
	}
	return recordOutcome(ctx, w.logger, WorkflowResetComplete, OutcomeOK, "user_id", user.ID.String())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/neighborly/neighborly/pkg/errutil"
)

// errConfirmedConcurrently rolls back a claim when another request confirmed
// the user between the lookup and the write.
var errConfirmedConcurrently = errors.New("email confirmed concurrently")

// EmailConfirmationWorkflow confirms account emails and reissues
// confirmation tokens.
type EmailConfirmationWorkflow struct {
	users  UserRepository
	tokens *TokenManager
	mailer MailDispatcher
	tx     Transactor
	logger *slog.Logger
}

// NewEmailConfirmationWorkflow creates an EmailConfirmationWorkflow.
func NewEmailConfirmationWorkflow(
	users UserRepository,
	tokens *TokenManager,
	mailer MailDispatcher,
	opts ...WorkflowOption,
) (*EmailConfirmationWorkflow, error) {
	if users == nil || tokens == nil || mailer == nil {
		return nil, oops.Code("CONFIRM_WORKFLOW_INVALID").
			Errorf("user repository, token manager and mailer are required")
	}
	o := newWorkflowOptions(opts)
	return &EmailConfirmationWorkflow{
		users:  users,
		tokens: tokens,
		mailer: mailer,
		tx:     o.tx,
		logger: o.logger,
	}, nil
}

// Confirm redeems an email confirmation token for userID and marks the
// email confirmed. Returns true iff a matching unused token was claimed.
// An unknown or already confirmed user returns false without touching tokens.
func (w *EmailConfirmationWorkflow) Confirm(ctx context.Context, userID ulid.ULID, rawToken string) bool {
	ctx, span := tracer.Start(ctx, "auth.email_confirm")
	defer span.End()

	user, outcome := w.loadUnconfirmed(ctx, userID)
	if outcome != OutcomeOK {
		return recordOutcome(ctx, w.logger, WorkflowConfirm, outcome, "user_id", userID.String())
	}

	err := w.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, claimErr := w.tokens.Claim(ctx, user.ID, TokenTypeEmailConfirm, rawToken); claimErr != nil {
			return claimErr
		}
		confirmed, markErr := w.users.MarkEmailConfirmed(ctx, user.ID)
		if markErr != nil {
			return oops.Code("CONFIRM_FAILED").With("operation", "MarkEmailConfirmed").Wrap(markErr)
		}
		if !confirmed {
			return errConfirmedConcurrently
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenInvalid):
			return recordOutcome(ctx, w.logger, WorkflowConfirm, OutcomeTokenInvalid, "user_id", userID.String())
		case errors.Is(err, errConfirmedConcurrently):
			return recordOutcome(ctx, w.logger, WorkflowConfirm, OutcomeAlreadyConfirmed, "user_id", userID.String())
		}
		errutil.LogErrorContext(ctx, w.logger, "email confirmation not applied", err, "user_id", userID.String())
		span.RecordError(err)
		return recordOutcome(ctx, w.logger, WorkflowConfirm, OutcomeStoreFailed, "user_id", userID.String())
	}
	user.EmailConfirmed = true

	notified := w.mailer.SendAccountConfirmed(ctx, user)
	if !notified {
		w.logger.WarnContext(ctx, "account confirmed notification not delivered", "user_id", userID.String())
	}
	return recordOutcome(ctx, w.logger, WorkflowConfirm, OutcomeOK, "user_id", userID.String(), "notified", notified)
}

// Resend retires every outstanding confirmation token of userID, issues a
// new one and mails it. The result is the delivery status.
func (w *EmailConfirmationWorkflow) Resend(ctx context.Context, userID ulid.ULID) bool {
	ctx, span := tracer.Start(ctx, "auth.email_confirm.resend")
	defer span.End()

	user, outcome := w.loadUnconfirmed(ctx, userID)
	if outcome != OutcomeOK {
		return recordOutcome(ctx, w.logger, WorkflowConfirmResend, outcome, "user_id", userID.String())
	}

	var token *SecurityToken
	err := w.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, retireErr := w.tokens.Retire(ctx, user.ID, TokenTypeEmailConfirm, ulid.ULID{}); retireErr != nil {
			return retireErr
		}
		created, createErr := w.tokens.Create(ctx, TokenTypeEmailConfirm, user)
		if createErr != nil {
			return createErr
		}
		token = created
		return nil
	})
	if err != nil {
		errutil.LogErrorContext(ctx, w.logger, "confirmation token not reissued", err, "user_id", userID.String())
		span.RecordError(err)
		return recordOutcome(ctx, w.logger, WorkflowConfirmResend, OutcomeStoreFailed, "user_id", userID.String())
	}

	if !w.mailer.SendAccountCreated(ctx, user, token) {
		return recordOutcome(ctx, w.logger, WorkflowConfirmResend, OutcomeMailFailed, "user_id", userID.String())
	}
	return recordOutcome(ctx, w.logger, WorkflowConfirmResend, OutcomeOK, "user_id", userID.String())
}

func (w *EmailConfirmationWorkflow) loadUnconfirmed(ctx context.Context, userID ulid.ULID) (*User, Outcome) {
	user, err := w.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, OutcomeUserNotFound
		}
		errutil.LogErrorContext(ctx, w.logger, "email confirmation lookup failed", err, "user_id", userID.String())
		return nil, OutcomeStoreFailed
	}
	if user.EmailConfirmed {
		return nil, OutcomeAlreadyConfirmed
	}
	return user, OutcomeOK
}

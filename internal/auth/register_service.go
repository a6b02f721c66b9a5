// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/neighborly/neighborly/pkg/errutil"
)

// Password length constraints, in characters.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// ValidatePassword checks a new password against the length rules.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// RegistrationService creates accounts and sends their first confirmation token.
type RegistrationService struct {
	users  UserRepository
	tokens *TokenManager
	hasher PasswordHasher
	mailer MailDispatcher
	tx     Transactor
	logger *slog.Logger
}

// NewRegistrationService creates a RegistrationService.
func NewRegistrationService(
	users UserRepository,
	tokens *TokenManager,
	hasher PasswordHasher,
	mailer MailDispatcher,
	opts ...WorkflowOption,
) (*RegistrationService, error) {
	if users == nil || tokens == nil || hasher == nil || mailer == nil {
		return nil, oops.Code("REGISTER_SERVICE_INVALID").
			Errorf("user repository, token manager, hasher and mailer are required")
	}
	o := newWorkflowOptions(opts)
	return &RegistrationService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		mailer: mailer,
		tx:     o.tx,
		logger: o.logger,
	}, nil
}

// Register creates an unconfirmed user and mails an email confirmation token.
// A failed delivery does not undo the registration; the user can ask for a
// new confirmation mail.
func (s *RegistrationService) Register(ctx context.Context, email, password string) (*User, error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer span.End()

	normalized, err := NormalizeEmail(email)
	if err != nil {
		recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeInvalidInput)
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeInvalidInput)
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeStoreFailed)
		return nil, oops.Code("REGISTER_FAILED").With("operation", "Hash").Wrap(err)
	}
	user, err := NewUser(normalized, hash)
	if err != nil {
		recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeInvalidInput)
		return nil, err
	}

	var token *SecurityToken
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if createErr := s.users.Create(ctx, user); createErr != nil {
			return createErr
		}
		created, tokenErr := s.tokens.Create(ctx, TokenTypeEmailConfirm, user)
		if tokenErr != nil {
			return tokenErr
		}
		token = created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeInvalidInput, "reason", "email_taken")
			return nil, oops.Code(CodeEmailTaken).With("email", normalized).Wrap(ErrEmailTaken)
		}
		errutil.LogErrorContext(ctx, s.logger, "registration not stored", err)
		span.RecordError(err)
		recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeStoreFailed)
		return nil, oops.Code("REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	if !s.mailer.SendAccountCreated(ctx, user, token) {
		recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeMailFailed, "user_id", user.ID.String())
		return user, nil
	}
	recordOutcome(ctx, s.logger, WorkflowRegister, OutcomeOK, "user_id", user.ID.String())
	return user, nil
}

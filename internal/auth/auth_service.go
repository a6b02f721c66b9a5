// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("neighborly/auth")

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserID    ulid.ULID
	Token     string
	ExpiresAt time.Time
}

// Service authenticates users and issues session tokens.
type Service struct {
	verifier *CredentialVerifier
	issuer   *SessionIssuer
	throttle *LoginThrottle
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for login events.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLoginThrottle refuses logins for emails with too many recent failures.
func WithLoginThrottle(throttle *LoginThrottle) ServiceOption {
	return func(s *Service) {
		s.throttle = throttle
	}
}

// NewAuthService creates a new Service.
func NewAuthService(verifier *CredentialVerifier, issuer *SessionIssuer, opts ...ServiceOption) (*Service, error) {
	if verifier == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("credential verifier is required")
	}
	if issuer == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session issuer is required")
	}
	s := &Service{verifier: verifier, issuer: issuer, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login verifies email and password and issues a session token.
// AUTH_USER_NOT_FOUND and AUTH_CREDENTIALS_INCORRECT errors from the
// verifier are returned unchanged. When a throttle is configured, an email
// with too many recent failures gets AUTH_LOGIN_THROTTLED before the
// password is checked.
func (s *Service) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.throttle != nil {
		if err := s.throttle.Allow(email); err != nil {
			RecordLoginAttempt(LoginThrottled)
			s.logger.InfoContext(ctx, "login rejected", "reason", LoginThrottled)
			return nil, err
		}
	}

	credential, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			RecordLoginAttempt(LoginUserNotFound)
			s.recordFailure(email)
			s.logger.InfoContext(ctx, "login rejected", "reason", LoginUserNotFound)
		case errors.Is(err, ErrCredentialsIncorrect):
			RecordLoginAttempt(LoginInvalidPassword)
			s.recordFailure(email)
			s.logger.InfoContext(ctx, "login rejected", "reason", LoginInvalidPassword)
		default:
			RecordLoginAttempt(LoginError)
			s.logger.ErrorContext(ctx, "login failed", "error", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", credential.UserID.String()))

	session, err := s.issuer.Issue(ctx, credential)
	if err != nil {
		RecordLoginAttempt(LoginError)
		s.logger.ErrorContext(ctx, "login failed", "user_id", credential.UserID.String(), "error", err)
		return nil, err
	}

	if s.throttle != nil {
		s.throttle.RecordSuccess(email)
	}
	RecordLoginAttempt(LoginSuccess)
	s.logger.InfoContext(ctx, "login succeeded", "user_id", credential.UserID.String())
	return &LoginResult{
		UserID:    session.UserID,
		Token:     session.Value,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Service) recordFailure(email string) {
	if s.throttle != nil {
		s.throttle.RecordFailure(email)
	}
}

// Authenticate decodes a session token and returns the authenticated user ID.
func (s *Service) Authenticate(_ context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}
	claims, err := s.issuer.codec.Decode(token)
	if err != nil {
		return ulid.ULID{}, err
	}
	return claims.UserID, nil
}

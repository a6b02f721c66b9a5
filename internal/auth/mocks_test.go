// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/neighborly/neighborly/internal/auth"
)

// mockUserRepository is a mock for auth.UserRepository.
type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *mockUserRepository) GetByIDWithTokens(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) MarkEmailConfirmed(ctx context.Context, id ulid.ULID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

// mockTokenRepository is a mock for auth.SecurityTokenRepository.
type mockTokenRepository struct {
	mock.Mock
}

func (m *mockTokenRepository) Create(ctx context.Context, token *auth.SecurityToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockTokenRepository) MarkUsed(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockTokenRepository) Claim(ctx context.Context, ownerID ulid.ULID, tokenType auth.TokenType, valueHash string, today time.Time) (*auth.SecurityToken, error) {
	args := m.Called(ctx, ownerID, tokenType, valueHash, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.SecurityToken), args.Error(1)
}

func (m *mockTokenRepository) ListByOwner(ctx context.Context, ownerID ulid.ULID) ([]*auth.SecurityToken, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auth.SecurityToken), args.Error(1)
}

func (m *mockTokenRepository) RetireOutstanding(ctx context.Context, ownerID ulid.ULID, tokenType auth.TokenType, exceptID ulid.ULID) (int64, error) {
	args := m.Called(ctx, ownerID, tokenType, exceptID)
	return args.Get(0).(int64), args.Error(1)
}

// mockHasher is a mock for auth.PasswordHasher.
type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *mockHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

// mockMailer is a mock for auth.MailDispatcher.
type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendPasswordRecoverCode(ctx context.Context, user *auth.User, code string) bool {
	args := m.Called(ctx, user, code)
	return args.Bool(0)
}

func (m *mockMailer) SendPasswordSuccessfullyChanged(ctx context.Context, user *auth.User) bool {
	args := m.Called(ctx, user)
	return args.Bool(0)
}

func (m *mockMailer) SendAccountCreated(ctx context.Context, user *auth.User, token *auth.SecurityToken) bool {
	args := m.Called(ctx, user, token)
	return args.Bool(0)
}

func (m *mockMailer) SendAccountConfirmed(ctx context.Context, user *auth.User) bool {
	args := m.Called(ctx, user)
	return args.Bool(0)
}

// mockCodec is a mock for auth.SessionTokenCodec.
type mockCodec struct {
	mock.Mock
}

func (m *mockCodec) Encode(claims auth.SessionClaims) (string, error) {
	args := m.Called(claims)
	return args.String(0), args.Error(1)
}

func (m *mockCodec) Decode(token string) (*auth.SessionClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.SessionClaims), args.Error(1)
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxEmailLength bounds the stored address length.
const MaxEmailLength = 254

// User is an account holder together with its credential.
type User struct {
	ID             ulid.ULID
	Email          string
	PasswordHash   string
	EmailConfirmed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Tokens is populated only by UserRepository.GetByIDWithTokens.
	Tokens []*SecurityToken
}

// NewUser creates an unconfirmed User with a fresh ID.
func NewUser(email, passwordHash string) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        normalized,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Credential returns the read-only view used by the session issuer.
func (u *User) Credential() *Credential {
	return &Credential{
		UserID:       u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
	}
}

// NormalizeEmail validates an address and returns its lowercase bare form.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return "", oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Errorf("email is not a valid address")
	}
	return strings.ToLower(addr.Address), nil
}

// Credential is the stored secret material for a user.
type Credential struct {
	UserID       ulid.ULID
	Email        string
	PasswordHash string
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns an error wrapping ErrEmailTaken
	// when the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByIDWithTokens retrieves a user by ID with Tokens populated.
	// The workflows redeem tokens through SecurityTokenRepository.Claim; this
	// serves callers that inspect a user together with its loaded tokens.
	GetByIDWithTokens(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update persists the mutable fields of an existing user. It overwrites
	// every column, so it must not be fed a row loaded outside the caller's
	// transaction.
	Update(ctx context.Context, user *User) error

	// MarkEmailConfirmed sets the confirmation flag of an unconfirmed user
	// without touching any other column. It returns false when the user was
	// already confirmed and ErrNotFound when no such user exists.
	MarkEmailConfirmed(ctx context.Context, id ulid.ULID) (bool, error)

	// UpdatePassword updates only the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}

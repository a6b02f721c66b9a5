// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Sentinel causes for the failures callers are expected to branch on.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrCredentialsIncorrect = errors.New("credentials incorrect")
	ErrTokenInvalid         = errors.New("security token invalid")
	ErrDuplicateToken       = errors.New("security token value already exists")
	ErrEmailTaken           = errors.New("email already registered")
)

// Error codes attached to the failures above.
const (
	CodeUserNotFound         = "AUTH_USER_NOT_FOUND"
	CodeCredentialsIncorrect = "AUTH_CREDENTIALS_INCORRECT"
	CodeTokenInvalid         = "TOKEN_INVALID"
	CodeEmailTaken           = "AUTH_EMAIL_TAKEN"
)

// UserNotFoundError reports that no user is registered under email.
func UserNotFoundError(email string) error {
	return oops.Code(CodeUserNotFound).
		With("email", email).
		Wrap(ErrUserNotFound)
}

// CredentialsIncorrectError reports a password mismatch for an existing user.
func CredentialsIncorrectError(userID ulid.ULID) error {
	return oops.Code(CodeCredentialsIncorrect).
		With("user_id", userID.String()).
		Wrap(ErrCredentialsIncorrect)
}

// TokenInvalidError reports a token that is unknown, used, expired, or of the wrong type.
func TokenInvalidError(ownerID ulid.ULID, tokenType TokenType) error {
	return oops.Code(CodeTokenInvalid).
		With("owner_id", ownerID.String()).
		With("token_type", tokenType.String()).
		Wrap(ErrTokenInvalid)
}

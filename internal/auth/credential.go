// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified when a user doesn't exist so response time
// does not reveal whether the email is registered.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialVerifier checks an email and password pair against stored credentials.
// It has no side effects.
type CredentialVerifier struct {
	users     UserRepository
	hasher    PasswordHasher
	dummyHash string
}

// VerifierOption configures a CredentialVerifier.
type VerifierOption func(*CredentialVerifier)

// WithDummyHash sets the hash verified for unknown users. It should be
// produced with the same parameters as real hashes.
func WithDummyHash(hash string) VerifierOption {
	return func(v *CredentialVerifier) {
		v.dummyHash = hash
	}
}

// NewCredentialVerifier creates a CredentialVerifier.
func NewCredentialVerifier(users UserRepository, hasher PasswordHasher, opts ...VerifierOption) (*CredentialVerifier, error) {
	if users == nil {
		return nil, oops.Code("VERIFIER_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("VERIFIER_INVALID").Errorf("password hasher is required")
	}
	v := &CredentialVerifier{users: users, hasher: hasher, dummyHash: dummyPasswordHash}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify returns the credential of the user registered under email if
// password matches. Unknown email fails with AUTH_USER_NOT_FOUND and a wrong
// password with AUTH_CREDENTIALS_INCORRECT.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*Credential, error) {
	user, lookupErr := v.users.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_VERIFY_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
		//nolint:errcheck // result is discarded, the call only equalizes timing
		v.hasher.Verify(password, v.dummyHash)
		return nil, UserNotFoundError(email)
	}

	ok, err := v.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !ok {
		return nil, CredentialsIncorrectError(user.ID)
	}
	return user.Credential(), nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultSessionTTL is the lifetime of an issued session token.
const DefaultSessionTTL = 24 * time.Hour

// SessionClaims is the payload carried inside a session token.
type SessionClaims struct {
	UserID    ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionToken is an encoded session handed to a client after login.
// It is never persisted.
type SessionToken struct {
	UserID    ulid.ULID
	Value     string
	ExpiresAt time.Time
}

// SessionTokenCodec signs and verifies session tokens with a configured secret.
type SessionTokenCodec interface {
	// Encode signs claims into an opaque token string.
	Encode(claims SessionClaims) (string, error)

	// Decode verifies the signature and expiry of token and returns its claims.
	Decode(token string) (*SessionClaims, error)
}

// SessionIssuer turns a verified credential into a signed session token.
type SessionIssuer struct {
	codec SessionTokenCodec
	ttl   time.Duration
	now   func() time.Time
}

// SessionIssuerOption configures a SessionIssuer.
type SessionIssuerOption func(*SessionIssuer)

// WithSessionClock overrides the clock used for issue and expiry times.
func WithSessionClock(now func() time.Time) SessionIssuerOption {
	return func(i *SessionIssuer) {
		i.now = now
	}
}

// NewSessionIssuer creates a SessionIssuer. ttl must be positive.
func NewSessionIssuer(codec SessionTokenCodec, ttl time.Duration, opts ...SessionIssuerOption) (*SessionIssuer, error) {
	if codec == nil {
		return nil, oops.Code("SESSION_ISSUER_INVALID").Errorf("session token codec is required")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_ISSUER_INVALID").With("ttl", ttl.String()).Errorf("session ttl must be positive")
	}
	i := &SessionIssuer{codec: codec, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue encodes a session for credential expiring one TTL from now.
func (i *SessionIssuer) Issue(_ context.Context, credential *Credential) (*SessionToken, error) {
	if credential == nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").Errorf("credential is required")
	}

	now := i.now()
	claims := SessionClaims{
		UserID:    credential.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	value, err := i.codec.Encode(claims)
	if err != nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").
			With("user_id", credential.UserID.String()).
			Wrap(err)
	}
	return &SessionToken{
		UserID:    credential.UserID,
		Value:     value,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

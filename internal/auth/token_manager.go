// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// maxCreateAttempts bounds regeneration after a token value collision.
const maxCreateAttempts = 3

// TokenManager issues, finds and redeems security tokens.
type TokenManager struct {
	tokens   SecurityTokenRepository
	ttls     TokenTTLs
	now      func() time.Time
	generate func() (string, error)
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithTokenClock overrides the clock used to compute creation and expiry dates.
func WithTokenClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// WithTokenGenerator overrides the random value generator.
func WithTokenGenerator(generate func() (string, error)) TokenManagerOption {
	return func(m *TokenManager) {
		m.generate = generate
	}
}

// NewTokenManager creates a TokenManager. Both TTLs must be positive.
func NewTokenManager(tokens SecurityTokenRepository, ttls TokenTTLs, opts ...TokenManagerOption) (*TokenManager, error) {
	if tokens == nil {
		return nil, oops.Code("TOKEN_MANAGER_INVALID").Errorf("token repository is required")
	}
	for _, tokenType := range []TokenType{TokenTypeEmailConfirm, TokenTypeReset} {
		if _, err := ttls.For(tokenType); err != nil {
			return nil, err
		}
	}

	m := &TokenManager{
		tokens:   tokens,
		ttls:     ttls,
		now:      time.Now,
		generate: generateValue,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Today returns the current date as seen by the manager.
func (m *TokenManager) Today() time.Time {
	return Date(m.now())
}

// Create issues and persists a fresh unused token of tokenType for owner.
// The returned token carries the plaintext Value.
func (m *TokenManager) Create(ctx context.Context, tokenType TokenType, owner *User) (*SecurityToken, error) {
	ttl, err := m.ttls.For(tokenType)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, oops.Code("TOKEN_INVALID_OWNER").Errorf("owner is required")
	}

	var token *SecurityToken
	backoff := retry.WithMaxRetries(maxCreateAttempts-1, retry.NewConstant(time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		value, genErr := m.generate()
		if genErr != nil {
			return genErr
		}
		candidate, buildErr := NewSecurityToken(tokenType, owner.ID, value, m.Today(), ttl)
		if buildErr != nil {
			return buildErr
		}
		if createErr := m.tokens.Create(ctx, candidate); createErr != nil {
			if errors.Is(createErr, ErrDuplicateToken) {
				return retry.RetryableError(createErr)
			}
			return createErr
		}
		token = candidate
		return nil
	})
	if err != nil {
		return nil, oops.Code("TOKEN_CREATE_FAILED").
			With("owner_id", owner.ID.String()).
			With("token_type", tokenType.String()).
			Wrap(err)
	}

	RecordTokenIssued(tokenType)
	return token, nil
}

// Consume marks token as used and persists it. Consuming a used token is a no-op write.
// The workflows redeem through Claim; Consume serves callers that hold a
// user with its tokens loaded and picked one with FindValid.
func (m *TokenManager) Consume(ctx context.Context, token *SecurityToken) (*SecurityToken, error) {
	if token == nil {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").Errorf("token is required")
	}
	token.Used = true
	if err := m.tokens.MarkUsed(ctx, token.ID); err != nil {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("token_id", token.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// FindValid returns the first of owner's loaded tokens that is valid for
// rawValue and tokenType today. It performs no I/O. The workflows use Claim
// instead; FindValid serves callers holding a user loaded with
// UserRepository.GetByIDWithTokens.
func (m *TokenManager) FindValid(owner *User, rawValue string, tokenType TokenType) (*SecurityToken, bool) {
	if owner == nil || rawValue == "" {
		return nil, false
	}
	today := m.Today()
	for _, token := range owner.Tokens {
		if token.IsValidFor(rawValue, tokenType, today) {
			return token, true
		}
	}
	return nil, false
}

// Claim atomically redeems the valid token of ownerID matching rawValue and
// tokenType. Any failure to match is reported as TOKEN_INVALID without saying why.
func (m *TokenManager) Claim(ctx context.Context, ownerID ulid.ULID, tokenType TokenType, rawValue string) (*SecurityToken, error) {
	if rawValue == "" || !tokenType.Valid() {
		return nil, TokenInvalidError(ownerID, tokenType)
	}

	token, err := m.tokens.Claim(ctx, ownerID, tokenType, HashTokenValue(rawValue), m.Today())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenInvalidError(ownerID, tokenType)
		}
		return nil, oops.Code("TOKEN_CLAIM_FAILED").
			With("owner_id", ownerID.String()).
			With("token_type", tokenType.String()).
			Wrap(err)
	}
	return token, nil
}

// Retire marks every outstanding token of tokenType owned by ownerID as used,
// except exceptID. Used tokens are kept for audit.
func (m *TokenManager) Retire(ctx context.Context, ownerID ulid.ULID, tokenType TokenType, exceptID ulid.ULID) (int64, error) {
	n, err := m.tokens.RetireOutstanding(ctx, ownerID, tokenType, exceptID)
	if err != nil {
		return 0, oops.Code("TOKEN_RETIRE_FAILED").
			With("owner_id", ownerID.String()).
			With("token_type", tokenType.String()).
			Wrap(err)
	}
	return n, nil
}

func generateValue() (string, error) {
	value, _, err := GenerateTokenValue()
	return value, err
}

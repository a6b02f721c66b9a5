// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenValueBytes is the entropy of a security token value (64 hex chars).
const TokenValueBytes = 32

// TokenType scopes a security token to one workflow.
type TokenType uint8

// Known token types. The zero value is invalid.
const (
	TokenTypeEmailConfirm TokenType = iota + 1
	TokenTypeReset
)

// String returns the persisted name of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenTypeEmailConfirm:
		return "EMAIL_CONFIRM"
	case TokenTypeReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeEmailConfirm, TokenTypeReset:
		return true
	default:
		return false
	}
}

// ParseTokenType converts a persisted name back into a TokenType.
func ParseTokenType(s string) (TokenType, error) {
	switch strings.ToUpper(s) {
	case "EMAIL_CONFIRM":
		return TokenTypeEmailConfirm, nil
	case "RESET":
		return TokenTypeReset, nil
	default:
		return 0, oops.Code("TOKEN_TYPE_UNKNOWN").With("token_type", s).Errorf("unknown token type %q", s)
	}
}

// TokenTTLs holds the lifetime in whole days for each token type.
type TokenTTLs struct {
	EmailConfirmDays int
	ResetDays        int
}

// DefaultTokenTTLs is used when no configuration overrides them.
var DefaultTokenTTLs = TokenTTLs{EmailConfirmDays: 7, ResetDays: 1}

// For returns the TTL in days for tokenType.
func (c TokenTTLs) For(tokenType TokenType) (int, error) {
	var days int
	switch tokenType {
	case TokenTypeEmailConfirm:
		days = c.EmailConfirmDays
	case TokenTypeReset:
		days = c.ResetDays
	default:
		return 0, oops.Code("TOKEN_TYPE_UNKNOWN").
			With("token_type", int(tokenType)).
			Errorf("no ttl configured for token type %d", tokenType)
	}
	if days <= 0 {
		return 0, oops.Code("TOKEN_TTL_INVALID").
			With("token_type", tokenType.String()).
			With("days", days).
			Errorf("token ttl must be positive")
	}
	return days, nil
}

// SecurityToken is a one-time secret bound to a user and a workflow.
//
// Value holds the plaintext only on the instance returned by
// TokenManager.Create; tokens read back from storage carry ValueHash alone.
// CreationDate and ExpiryDate are UTC midnights.
type SecurityToken struct {
	ID           ulid.ULID
	Type         TokenType
	Value        string
	ValueHash    string
	OwnerID      ulid.ULID
	CreationDate time.Time
	ExpiryDate   time.Time
	Used         bool
}

// NewSecurityToken builds an unused token issued on the date of today.
func NewSecurityToken(tokenType TokenType, ownerID ulid.ULID, value string, today time.Time, ttlDays int) (*SecurityToken, error) {
	if !tokenType.Valid() {
		return nil, oops.Code("TOKEN_TYPE_UNKNOWN").With("token_type", int(tokenType)).Errorf("invalid token type")
	}
	if ownerID.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_OWNER").Errorf("owner ID cannot be zero")
	}
	if value == "" {
		return nil, oops.Code("TOKEN_INVALID_VALUE").Errorf("token value cannot be empty")
	}
	if ttlDays <= 0 {
		return nil, oops.Code("TOKEN_TTL_INVALID").With("days", ttlDays).Errorf("token ttl must be positive")
	}

	created := Date(today)
	return &SecurityToken{
		ID:           ulid.Make(),
		Type:         tokenType,
		Value:        value,
		ValueHash:    HashTokenValue(value),
		OwnerID:      ownerID,
		CreationDate: created,
		ExpiryDate:   created.AddDate(0, 0, ttlDays),
	}, nil
}

// IsExpired reports whether the token is past its expiry on the given day.
// A token expiring on day D is still valid on D-1 and expired from D on.
func (t *SecurityToken) IsExpired(today time.Time) bool {
	return !t.ExpiryDate.After(Date(today))
}

// Matches compares a presented plaintext value against the stored hash in constant time.
func (t *SecurityToken) Matches(rawValue string) bool {
	if rawValue == "" || t.ValueHash == "" {
		return false
	}
	computed := HashTokenValue(rawValue)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(t.ValueHash)) == 1
}

// IsValidFor reports whether the token can be redeemed with rawValue for tokenType today.
func (t *SecurityToken) IsValidFor(rawValue string, tokenType TokenType, today time.Time) bool {
	return !t.Used && t.Type == tokenType && t.Matches(rawValue) && !t.IsExpired(today)
}

// GenerateTokenValue creates a secure random token value and its hash.
// Returns (plaintext, sha256_hash, error).
func GenerateTokenValue() (value, hash string, err error) {
	b := make([]byte, TokenValueBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	value = hex.EncodeToString(b)
	return value, HashTokenValue(value), nil
}

// HashTokenValue computes the hex SHA-256 of a token value.
func HashTokenValue(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SecurityTokenRepository manages security token persistence.
type SecurityTokenRepository interface {
	// Create stores a new token. Returns an error wrapping ErrDuplicateToken
	// when another token already has the same value hash. A duplicate must
	// leave any enclosing transaction usable so the caller can retry.
	Create(ctx context.Context, token *SecurityToken) error

	// MarkUsed flags a token as used. Marking a used token again is not an error.
	// The workflows redeem through Claim; MarkUsed serves callers that already
	// hold a user with its tokens loaded.
	MarkUsed(ctx context.Context, id ulid.ULID) error

	// Claim atomically marks the matching valid token as used and returns it.
	// Returns ErrNotFound if no unused, unexpired token of that type and hash
	// belongs to the owner.
	Claim(ctx context.Context, ownerID ulid.ULID, tokenType TokenType, valueHash string, today time.Time) (*SecurityToken, error)

	// ListByOwner returns all tokens of a user, newest first. The workflows
	// never list tokens; this backs GetByIDWithTokens and audit reads.
	ListByOwner(ctx context.Context, ownerID ulid.ULID) ([]*SecurityToken, error)

	// RetireOutstanding marks every unused token of the type as used, except
	// the one with exceptID (zero ULID retires all). Returns the count retired.
	RetireOutstanding(ctx context.Context, ownerID ulid.ULID, tokenType TokenType, exceptID ulid.ULID) (int64, error)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSessionSecretLength is the shortest accepted HMAC secret in bytes.
const MinSessionSecretLength = 32

var _ SessionTokenCodec = (*JWTCodec)(nil)

// JWTCodec encodes session claims as HS256-signed JWTs.
type JWTCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTCodecOption configures a JWTCodec.
type JWTCodecOption func(*JWTCodec)

// WithJWTClock overrides the clock used when validating expiry.
func WithJWTClock(now func() time.Time) JWTCodecOption {
	return func(c *JWTCodec) {
		c.now = now
	}
}

// NewJWTCodec creates a JWTCodec signing with secret and stamping issuer.
func NewJWTCodec(secret []byte, issuer string, opts ...JWTCodecOption) (*JWTCodec, error) {
	if len(secret) < MinSessionSecretLength {
		return nil, oops.Code("SESSION_SECRET_WEAK").
			With("min_length", MinSessionSecretLength).
			Errorf("session secret must be at least %d bytes", MinSessionSecretLength)
	}
	c := &JWTCodec{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode signs claims. The subject is the user ID.
func (c *JWTCodec) Encode(claims SessionClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   claims.UserID.String(),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}
	return signed, nil
}

// Decode verifies the signature, issuer and expiry of a token.
func (c *JWTCodec) Decode(token string) (*SessionClaims, error) {
	registered := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, registered,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, oops.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").Wrap(err)
	}
	if !parsed.Valid {
		return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
	}

	userID, err := ulid.Parse(registered.Subject)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").With("subject", registered.Subject).Wrap(err)
	}

	claims := &SessionClaims{UserID: userID}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

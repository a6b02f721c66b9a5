// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/auth/authtest"
	"github.com/neighborly/neighborly/pkg/errutil"
)

type loginFixture struct {
	store    *authtest.Store
	hasher   *auth.Argon2idHasher
	service  *auth.Service
	verifier *auth.CredentialVerifier
	issuer   *auth.SessionIssuer
	codec    *auth.JWTCodec
	logs     *bytes.Buffer
	user     *auth.User
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()
	ctx := context.Background()

	store := authtest.NewStore()
	hasher := auth.NewArgon2idHasher(auth.WithArgon2Params(fastParams))
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	user, err := auth.NewUser("U1@Example.com", hash)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, user))

	dummy, err := hasher.Hash("dummy password")
	require.NoError(t, err)
	verifier, err := auth.NewCredentialVerifier(store, hasher, auth.WithDummyHash(dummy))
	require.NoError(t, err)

	codec, err := auth.NewJWTCodec(testSecret, "neighborly")
	require.NoError(t, err)
	issuer, err := auth.NewSessionIssuer(codec, time.Hour)
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	service, err := auth.NewAuthService(verifier, issuer, auth.WithServiceLogger(logger))
	require.NoError(t, err)

	return &loginFixture{
		store:    store,
		hasher:   hasher,
		service:  service,
		verifier: verifier,
		issuer:   issuer,
		codec:    codec,
		logs:     &logs,
		user:     user,
	}
}

func TestCredentialVerifier_Verify(t *testing.T) {
	ctx := context.Background()
	f := newLoginFixture(t)
	verifier, err := auth.NewCredentialVerifier(f.store, f.hasher)
	require.NoError(t, err)

	t.Run("matching password returns credential", func(t *testing.T) {
		credential, err := verifier.Verify(ctx, "u1@example.com", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, credential.UserID)
		assert.Equal(t, "u1@example.com", credential.Email)
	})

	t.Run("email lookup ignores case", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "U1@EXAMPLE.COM", "correct horse")
		require.NoError(t, err)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "nobody@example.com", "correct horse")
		errutil.AssertCodedSentinel(t, err, auth.CodeUserNotFound, auth.ErrUserNotFound)
		errutil.AssertErrorContext(t, err, "email", "nobody@example.com")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "u1@example.com", "battery staple")
		errutil.AssertCodedSentinel(t, err, auth.CodeCredentialsIncorrect, auth.ErrCredentialsIncorrect)
		errutil.AssertErrorContext(t, err, "user_id", f.user.ID.String())
	})
}

func TestCredentialVerifier_UnknownUserStillHashes(t *testing.T) {
	users := new(mockUserRepository)
	hasher := new(mockHasher)
	users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)
	hasher.On("Verify", "pw", "$dummy$").Return(false, nil)

	verifier, err := auth.NewCredentialVerifier(users, hasher, auth.WithDummyHash("$dummy$"))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), "ghost@example.com", "pw")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	hasher.AssertExpectations(t)
}

func TestCredentialVerifier_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup failure", func(t *testing.T) {
		users := new(mockUserRepository)
		users.On("GetByEmail", mock.Anything, "u1@example.com").Return(nil, errors.New("connection refused"))
		verifier, err := auth.NewCredentialVerifier(users, new(mockHasher))
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, "u1@example.com", "pw")
		errutil.AssertErrorCode(t, err, "AUTH_VERIFY_FAILED")
		assert.NotErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("corrupt stored hash", func(t *testing.T) {
		user := newTestUser(t, "u1@example.com")
		users := new(mockUserRepository)
		hasher := new(mockHasher)
		users.On("GetByEmail", mock.Anything, "u1@example.com").Return(user, nil)
		hasher.On("Verify", "pw", user.PasswordHash).Return(false, errors.New("invalid hash format"))
		verifier, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, "u1@example.com", "pw")
		errutil.AssertErrorCode(t, err, "AUTH_VERIFY_FAILED")
		errutil.AssertErrorContext(t, err, "user_id", user.ID.String())
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := auth.NewCredentialVerifier(nil, new(mockHasher))
		errutil.AssertErrorCode(t, err, "VERIFIER_INVALID")
		_, err = auth.NewCredentialVerifier(new(mockUserRepository), nil)
		errutil.AssertErrorCode(t, err, "VERIFIER_INVALID")
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success issues a decodable session", func(t *testing.T) {
		f := newLoginFixture(t)
		before := testutil.ToFloat64(auth.LoginAttempts.WithLabelValues(auth.LoginSuccess))

		result, err := f.service.Login(ctx, "u1@example.com", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, result.UserID)
		assert.NotEmpty(t, result.Token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), result.ExpiresAt, 5*time.Second)

		claims, err := f.codec.Decode(result.Token)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, claims.UserID)

		userID, err := f.service.Authenticate(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, userID)

		assert.InDelta(t, 1, testutil.ToFloat64(auth.LoginAttempts.WithLabelValues(auth.LoginSuccess))-before, 0)
	})

	t.Run("unknown user propagates unchanged", func(t *testing.T) {
		f := newLoginFixture(t)
		before := testutil.ToFloat64(auth.LoginAttempts.WithLabelValues(auth.LoginUserNotFound))

		result, err := f.service.Login(ctx, "nobody@example.com", "correct horse")
		assert.Nil(t, result)
		errutil.AssertCodedSentinel(t, err, auth.CodeUserNotFound, auth.ErrUserNotFound)
		assert.InDelta(t, 1, testutil.ToFloat64(auth.LoginAttempts.WithLabelValues(auth.LoginUserNotFound))-before, 0)
	})

	t.Run("wrong password propagates unchanged", func(t *testing.T) {
		f := newLoginFixture(t)
		result, err := f.service.Login(ctx, "u1@example.com", "wrong")
		assert.Nil(t, result)
		errutil.AssertCodedSentinel(t, err, auth.CodeCredentialsIncorrect, auth.ErrCredentialsIncorrect)
	})

	t.Run("login does not modify stored state", func(t *testing.T) {
		f := newLoginFixture(t)
		_, err := f.service.Login(ctx, "u1@example.com", "correct horse")
		require.NoError(t, err)

		stored, err := f.store.GetByID(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Equal(t, f.user.PasswordHash, stored.PasswordHash)
		assert.Equal(t, f.user.UpdatedAt, stored.UpdatedAt)
	})

	t.Run("authenticate rejects empty token", func(t *testing.T) {
		f := newLoginFixture(t)
		_, err := f.service.Authenticate(ctx, "")
		errutil.AssertErrorCode(t, err, "SESSION_TOKEN_EMPTY")
	})
}

func TestService_Login_Logging(t *testing.T) {
	ctx := context.Background()
	f := newLoginFixture(t)

	_, err := f.service.Login(ctx, "u1@example.com", "wrong")
	require.Error(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(f.logs.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "login rejected", entry["msg"])
	assert.Equal(t, auth.LoginInvalidPassword, entry["reason"])
	assert.NotContains(t, f.logs.String(), "wrong", "the presented password is never logged")
}

func TestNewAuthService_Validation(t *testing.T) {
	_, err := auth.NewAuthService(nil, nil)
	errutil.AssertErrorCode(t, err, "AUTH_SERVICE_INVALID")
}

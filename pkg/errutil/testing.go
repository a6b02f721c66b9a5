// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// secretContextKeys must never appear in error context, since errors are
// logged with their context attached.
var secretContextKeys = []string{"password", "new_password", "password_hash", "token", "secret"}

// AssertErrorCode asserts that err is an oops error whose effective code is code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	require.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertCodedSentinel asserts that err carries code and wraps target.
func AssertCodedSentinel(t *testing.T, err error, code string, target error) {
	t.Helper()
	AssertErrorCode(t, err, code)
	assert.ErrorIs(t, err, target)
}

// AssertNoSecrets asserts that no credential material is attached to err's
// context. Plain errors carry no context and pass.
func AssertNoSecrets(t *testing.T, err error) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	ctx := oopsErr.Context()
	for _, key := range secretContextKeys {
		assert.NotContains(t, ctx, key, "error context leaks %q", key)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package web

import (
	"net/http"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/pkg/errutil"
)

// statusByCode maps oops error codes to HTTP statuses. Unlisted codes are 500.
var statusByCode = map[string]int{
	auth.CodeUserNotFound:         http.StatusUnauthorized,
	auth.CodeCredentialsIncorrect: http.StatusUnauthorized,
	"SESSION_INVALID":             http.StatusUnauthorized,
	"SESSION_TOKEN_EMPTY":         http.StatusUnauthorized,
	"AUTH_INVALID_EMAIL":          http.StatusBadRequest,
	"AUTH_INVALID_PASSWORD":       http.StatusBadRequest,
	"AUTH_EMPTY_PASSWORD":         http.StatusBadRequest,
	"REQUEST_MALFORMED":           http.StatusBadRequest,
	auth.CodeEmailTaken:           http.StatusConflict,
	auth.CodeLoginThrottled:       http.StatusTooManyRequests,
}

// errorIDByStatus keeps client-facing identifiers coarse. Login failures in
// particular never reveal whether the email exists.
var errorIDByStatus = map[int]string{
	http.StatusBadRequest:      "bad_request",
	http.StatusUnauthorized:    "unauthorized",
	http.StatusConflict:        "conflict",
	http.StatusTooManyRequests: "too_many_requests",
}

func statusFor(err error) int {
	if status, ok := statusByCode[errutil.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func errorIDFor(status int) string {
	if id, ok := errorIDByStatus[status]; ok {
		return id
	}
	return "internal_error"
}

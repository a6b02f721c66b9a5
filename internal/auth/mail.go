// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import "context"

// MailDispatcher delivers account notifications. Implementations report
// delivery success as a bool and never return errors or panic.
type MailDispatcher interface {
	// SendPasswordRecoverCode mails the plaintext reset code to the user.
	SendPasswordRecoverCode(ctx context.Context, user *User, code string) bool

	// SendPasswordSuccessfullyChanged notifies the user that their password changed.
	SendPasswordSuccessfullyChanged(ctx context.Context, user *User) bool

	// SendAccountCreated mails the email confirmation link carrying token.
	SendAccountCreated(ctx context.Context, user *User, token *SecurityToken) bool

	// SendAccountConfirmed notifies the user that their email was confirmed.
	SendAccountConfirmed(ctx context.Context, user *User) bool
}

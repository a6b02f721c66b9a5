// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"log/slog"
)

// Outcome is the internal resolution of a workflow step. Public workflow
// methods collapse it to a bool; the outcome itself is logged and counted.
type Outcome string

// Workflow outcomes.
const (
	OutcomeOK               Outcome = "ok"
	OutcomeUserNotFound     Outcome = "user_not_found"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeTokenInvalid     Outcome = "token_invalid"
	OutcomeMailFailed       Outcome = "mail_failed"
	OutcomeInvalidInput     Outcome = "invalid_input"
	OutcomeStoreFailed      Outcome = "store_failed"
)

// Workflow names used as the metric label and log attribute.
const (
	WorkflowResetRequest  = "reset_request"
	WorkflowResetComplete = "reset_complete"
	WorkflowConfirm       = "email_confirm"
	WorkflowConfirmResend = "email_confirm_resend"
	WorkflowRegister      = "register"
)

// Succeeded reports whether the outcome maps to a true result.
func (o Outcome) Succeeded() bool {
	return o == OutcomeOK
}

// recordOutcome logs and counts a workflow outcome, returning whether it succeeded.
func recordOutcome(ctx context.Context, logger *slog.Logger, workflow string, outcome Outcome, attrs ...any) bool {
	RecordWorkflowOutcome(workflow, outcome)

	attrs = append(attrs, "workflow", workflow, "outcome", string(outcome))
	switch outcome {
	case OutcomeOK:
		logger.InfoContext(ctx, "auth workflow completed", attrs...)
	case OutcomeStoreFailed, OutcomeMailFailed:
		logger.WarnContext(ctx, "auth workflow failed", attrs...)
	default:
		logger.InfoContext(ctx, "auth workflow rejected", attrs...)
	}
	return outcome.Succeeded()
}

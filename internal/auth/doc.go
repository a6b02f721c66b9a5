// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

// Package auth provides credential verification, session issuance and the
// one-time security tokens behind password reset and email confirmation.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates an unconfirmed User with a normalized email
//   - NewSecurityToken - creates an unused token with date-granular expiry
//
// A SecurityToken is scoped by TokenType and owned by exactly one user. Only
// the SHA-256 of its value is persisted; the plaintext is available on the
// token returned by TokenManager.Create and nowhere else. Tokens move from
// issued to used (explicitly) or expired (computed at read time) and are
// never deleted.
//
// # Services
//
//   - Service - login: CredentialVerifier then SessionIssuer
//   - TokenManager - create, consume, find and atomically claim tokens
//   - PasswordResetWorkflow - request and complete a password reset
//   - EmailConfirmationWorkflow - confirm an email, resend the confirmation
//   - RegistrationService - create an account and send its first token
//   - LoginThrottle - per-email delay and lockout after failed logins
//
// Workflows report a bool to callers. The underlying Outcome is logged and
// counted in neighborly_auth_workflow_outcomes_total.
//
// Collaborators (UserRepository, SecurityTokenRepository, PasswordHasher,
// SessionTokenCodec, MailDispatcher, Transactor) are interfaces; PostgreSQL
// repositories live in the postgres subpackage and mail delivery in
// internal/mail.
package auth

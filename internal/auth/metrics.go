// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login results for LoginAttempts.
const (
	LoginSuccess         = "success"
	LoginUserNotFound    = "user_not_found"
	LoginInvalidPassword = "invalid_password"
	LoginError           = "error"
	LoginThrottled       = "throttled"
)

// LoginAttempts counts login attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "neighborly_auth_logins_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// WorkflowOutcomes counts password reset, email confirmation and
// registration outcomes.
// Use RegisterMetrics to register this with a Prometheus registry.
var WorkflowOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "neighborly_auth_workflow_outcomes_total",
		Help: "Total number of auth workflow invocations by workflow and outcome",
	},
	[]string{"workflow", "outcome"},
)

// TokensIssued counts security tokens created by type.
// Use RegisterMetrics to register this with a Prometheus registry.
var TokensIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "neighborly_auth_tokens_issued_total",
		Help: "Total number of security tokens issued by type",
	},
	[]string{"type"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(WorkflowOutcomes)
	reg.MustRegister(TokensIssued)
}

// RecordLoginAttempt increments the login counter.
func RecordLoginAttempt(result string) {
	LoginAttempts.WithLabelValues(result).Inc()
}

// RecordWorkflowOutcome increments the workflow outcome counter.
func RecordWorkflowOutcome(workflow string, outcome Outcome) {
	WorkflowOutcomes.WithLabelValues(workflow, string(outcome)).Inc()
}

// RecordTokenIssued increments the issued token counter.
func RecordTokenIssued(tokenType TokenType) {
	TokensIssued.WithLabelValues(tokenType.String()).Inc()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"context"
	"log/slog"
)

type workflowOptions struct {
	logger *slog.Logger
	tx     Transactor
}

// WorkflowOption configures the reset, confirmation and registration workflows.
type WorkflowOption func(*workflowOptions)

// WithLogger sets the logger outcomes are written to.
func WithLogger(logger *slog.Logger) WorkflowOption {
	return func(o *workflowOptions) {
		o.logger = logger
	}
}

// WithTransactor makes multi-step state changes run in one transaction.
// Without it the steps run directly against the repositories.
func WithTransactor(tx Transactor) WorkflowOption {
	return func(o *workflowOptions) {
		o.tx = tx
	}
}

func newWorkflowOptions(opts []WorkflowOption) workflowOptions {
	o := workflowOptions{logger: slog.Default(), tx: directTransactor{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// directTransactor runs fn without a transaction.
type directTransactor struct{}

func (directTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

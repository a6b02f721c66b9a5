// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package mail

import (
	"context"
	"log/slog"
)

// LogTransport writes messages to a logger instead of sending them. It is the
// development default when no SMTP host is configured.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a LogTransport. A nil logger means slog.Default().
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

// Deliver logs the message and never fails.
func (t *LogTransport) Deliver(ctx context.Context, msg *Message) error {
	t.logger.InfoContext(ctx, "mail delivery skipped",
		"to", msg.To,
		"subject", msg.Subject,
		"body", string(msg.HTMLBody))
	return nil
}

// NewLogDispatcher creates a Dispatcher that only logs notifications.
func NewLogDispatcher(opts Options) (*Dispatcher, error) {
	return NewDispatcher(NewLogTransport(opts.Logger), opts)
}

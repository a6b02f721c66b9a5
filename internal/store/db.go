// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default connection retry policy.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
)

// DB wraps the pgx connection pool used by the auth repositories.
type DB struct {
	pool *pgxpool.Pool
}

type openOptions struct {
	attempts uint64
	backoff  time.Duration
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

// WithConnectRetry sets how many times Open pings the server and the base
// delay of the exponential backoff between pings.
func WithConnectRetry(attempts uint64, backoff time.Duration) OpenOption {
	return func(o *openOptions) {
		o.attempts = attempts
		o.backoff = backoff
	}
}

// Open creates a pool for dsn and waits until the server answers a ping.
func Open(ctx context.Context, dsn string, opts ...OpenOption) (*DB, error) {
	o := openOptions{attempts: DefaultConnectAttempts, backoff: DefaultConnectBackoff}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(o.attempts, retry.NewExponential(o.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", o.attempts+1).
			Wrap(err)
	}
	return &DB{pool: pool}, nil
}

// Pool returns the underlying pool for repository construction.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Ping reports whether the database is reachable. It backs the readiness probe.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return oops.Code("DB_UNREACHABLE").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

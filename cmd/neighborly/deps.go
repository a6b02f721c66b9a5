// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/auth/postgres"
	"github.com/neighborly/neighborly/internal/config"
	"github.com/neighborly/neighborly/internal/mail"
	"github.com/neighborly/neighborly/internal/observability"
	"github.com/neighborly/neighborly/internal/store"
	"github.com/neighborly/neighborly/internal/web"
)

// Backend bundles the persistence used by the auth services.
type Backend struct {
	Users  auth.UserRepository
	Tokens auth.SecurityTokenRepository
	Tx     auth.Transactor
	// Pinger backs the readiness probe.
	Pinger observability.Pinger
	Close  func()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// Server wraps the methods used from web.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	SetReadinessChecker(checker observability.ReadinessChecker)
	Metrics() *observability.Metrics
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// BackendFactory connects to the database and builds repositories.
	// Default: openPostgresBackend
	BackendFactory func(ctx context.Context, cfg *config.Config) (*Backend, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// MailerFactory builds the mail dispatcher.
	// Default: newMailer
	MailerFactory func(cfg *config.Config, logger *slog.Logger) (auth.MailDispatcher, error)

	// APIServerFactory creates the API server.
	// Default: web.NewServer
	APIServerFactory func(addr string, handler http.Handler) Server

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer with all package metrics registered
	ObservabilityServerFactory func(addr string) ObservabilityServer
}

// withDefaults fills nil fields.
func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.BackendFactory == nil {
		out.BackendFactory = openPostgresBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.MailerFactory == nil {
		out.MailerFactory = newMailer
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler) Server {
			return web.NewServer(addr, handler)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string) ObservabilityServer {
			return observability.NewServer(addr, nil,
				auth.RegisterMetrics,
				mail.RegisterMetrics,
				web.RegisterMetrics,
			)
		}
	}
	return &out
}

// openPostgresBackend connects with retry and wires the PostgreSQL repositories.
func openPostgresBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	db, err := store.Open(ctx, cfg.Database.URL,
		store.WithConnectRetry(cfg.Database.ConnectAttempts, cfg.Database.ConnectBackoff))
	if err != nil {
		//nolint:wrapcheck // store errors are already coded
		return nil, err
	}
	pool := db.Pool()
	return &Backend{
		Users:  postgres.NewUserRepository(pool),
		Tokens: postgres.NewSecurityTokenRepository(pool),
		Tx:     postgres.NewTransactor(pool),
		Pinger: db,
		Close:  db.Close,
	}, nil
}

// newMailer returns an SMTP dispatcher, or a logging one when no relay is
// configured.
func newMailer(cfg *config.Config, logger *slog.Logger) (auth.MailDispatcher, error) {
	opts := mail.Options{
		SiteName: cfg.Mail.SiteName,
		BaseURL:  cfg.Mail.BaseURL,
		TTLs:     cfg.TokenTTLs(),
		Logger:   logger,
	}
	if cfg.Mail.SMTP.Host == "" {
		logger.Warn("no smtp host configured, mail will be logged instead of sent")
		//nolint:wrapcheck // mail errors are already coded
		return mail.NewLogDispatcher(opts)
	}
	//nolint:wrapcheck // mail errors are already coded
	return mail.NewSMTPDispatcher(cfg.SMTP(), opts)
}

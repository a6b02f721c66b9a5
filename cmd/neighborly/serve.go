// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/config"
	"github.com/neighborly/neighborly/internal/logging"
	"github.com/neighborly/neighborly/internal/observability"
	"github.com/neighborly/neighborly/internal/web"
)

// shutdownTimeout bounds graceful shutdown of both servers.
const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API",
		Long: `Start the HTTP account API (login, registration, email confirmation,
password reset) and, unless disabled, the metrics and health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies and
// blocks until a signal, a server failure, or ctx cancellation.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger, err := logging.SetDefault(cfg.LoggingOptions(serviceName, version))
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}

	logger.Info("starting neighborly",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_format", cfg.Log.Format,
	)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	backend, err := deps.BackendFactory(ctx, cfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer backend.Close()

	logger.Info("connected to database")

	mailer, err := deps.MailerFactory(cfg, logger)
	if err != nil {
		return oops.With("operation", "create mail dispatcher").Wrap(err)
	}

	services, err := buildServices(cfg, backend, mailer, logger)
	if err != nil {
		return err
	}

	handler, err := web.NewHandler(services,
		web.WithHandlerLogger(logger),
		web.WithRequestTimeout(cfg.Server.RequestTimeout),
		web.WithRateLimit(cfg.RateLimit()),
	)
	if err != nil {
		return oops.With("operation", "create api handler").Wrap(err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if err := handler.Close(closeCtx); err != nil {
			logger.Warn("error closing api handler", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiServer := deps.APIServerFactory(cfg.Server.Addr, handler)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	var obsServer ObservabilityServer
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr)
		obsServer.Metrics().SetBuildInfo(version, commit)
		obsServer.SetReadinessChecker(observability.PingReadiness(backend.Pinger, 0, obsServer.Metrics()))
		obsErrChan, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if stopErr := apiServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Neighborly started on " + apiServer.Addr())
	logger.Info("neighborly ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildServices wires the auth services on top of backend.
func buildServices(cfg *config.Config, backend *Backend, mailer auth.MailDispatcher, logger *slog.Logger) (web.Services, error) {
	wrap := func(err error, what string) error {
		return oops.Code("SERVICE_WIRING_FAILED").With("component", what).Wrap(err)
	}

	hasher := auth.NewArgon2idHasher(auth.WithArgon2Params(cfg.Argon2Params()))
	dummyHash, err := hasher.Hash("neighborly-timing-equalizer")
	if err != nil {
		return web.Services{}, wrap(err, "dummy hash")
	}

	tokens, err := auth.NewTokenManager(backend.Tokens, cfg.TokenTTLs())
	if err != nil {
		return web.Services{}, wrap(err, "token manager")
	}

	verifier, err := auth.NewCredentialVerifier(backend.Users, hasher, auth.WithDummyHash(dummyHash))
	if err != nil {
		return web.Services{}, wrap(err, "credential verifier")
	}
	codec, err := auth.NewJWTCodec([]byte(cfg.Session.Secret), cfg.Session.Issuer)
	if err != nil {
		return web.Services{}, wrap(err, "session codec")
	}
	issuer, err := auth.NewSessionIssuer(codec, cfg.Session.TTL)
	if err != nil {
		return web.Services{}, wrap(err, "session issuer")
	}
	authOpts := []auth.ServiceOption{auth.WithServiceLogger(logger)}
	if cfg.Limits.LoginThrottle {
		authOpts = append(authOpts, auth.WithLoginThrottle(auth.NewLoginThrottle()))
	}
	authService, err := auth.NewAuthService(verifier, issuer, authOpts...)
	if err != nil {
		return web.Services{}, wrap(err, "auth service")
	}

	workflowOpts := []auth.WorkflowOption{auth.WithLogger(logger)}
	if backend.Tx != nil {
		workflowOpts = append(workflowOpts, auth.WithTransactor(backend.Tx))
	}

	reset, err := auth.NewPasswordResetWorkflow(backend.Users, tokens, hasher, mailer, workflowOpts...)
	if err != nil {
		return web.Services{}, wrap(err, "password reset")
	}
	confirm, err := auth.NewEmailConfirmationWorkflow(backend.Users, tokens, mailer, workflowOpts...)
	if err != nil {
		return web.Services{}, wrap(err, "email confirmation")
	}
	register, err := auth.NewRegistrationService(backend.Users, tokens, hasher, mailer, workflowOpts...)
	if err != nil {
		return web.Services{}, wrap(err, "registration")
	}

	return web.Services{
		Auth:     authService,
		Reset:    reset,
		Confirm:  confirm,
		Register: register,
	}, nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context on the first error. It returns when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

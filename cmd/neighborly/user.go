// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/config"
	"github.com/neighborly/neighborly/internal/logging"
)

// NewUserCmd creates the user command group.
func NewUserCmd() *cobra.Command {
	return newUserCmdWithDeps(nil)
}

type userCreateOptions struct {
	email     string
	password  string
	confirmed bool
}

func newUserCmdWithDeps(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (env DATABASE_URL)")

	opts := &userCreateOptions{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user account",
		Long: `Register a user account the same way the API does. The confirmation
mail is sent unless --confirmed marks the address as already verified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runUserCreate(cmd.Context(), cmd, cfg, opts, deps)
		},
	}
	create.Flags().StringVar(&opts.email, "email", "", "account email address")
	create.Flags().StringVar(&opts.password, "password", "", "account password")
	create.Flags().BoolVar(&opts.confirmed, "confirmed", false, "mark the email as confirmed and skip the confirmation mail")
	_ = create.MarkFlagRequired("email")    //nolint:errcheck // flag is defined above
	_ = create.MarkFlagRequired("password") //nolint:errcheck // flag is defined above

	cmd.AddCommand(create)
	return cmd
}

func runUserCreate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *userCreateOptions, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.RequireDatabase(); err != nil {
		//nolint:wrapcheck // config errors are already coded
		return err
	}
	logger, err := logging.Setup(cfg.LoggingOptions(serviceName, version), cmd.ErrOrStderr())
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}

	backend, err := deps.BackendFactory(ctx, cfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer backend.Close()

	var mailer auth.MailDispatcher = silentMailer{}
	if !opts.confirmed {
		mailer, err = deps.MailerFactory(cfg, logger)
		if err != nil {
			return oops.With("operation", "create mail dispatcher").Wrap(err)
		}
	}

	hasher := auth.NewArgon2idHasher(auth.WithArgon2Params(cfg.Argon2Params()))
	tokens, err := auth.NewTokenManager(backend.Tokens, cfg.TokenTTLs())
	if err != nil {
		return oops.Code("SERVICE_WIRING_FAILED").With("component", "token manager").Wrap(err)
	}
	workflowOpts := []auth.WorkflowOption{auth.WithLogger(logger)}
	if backend.Tx != nil {
		workflowOpts = append(workflowOpts, auth.WithTransactor(backend.Tx))
	}
	registrar, err := auth.NewRegistrationService(backend.Users, tokens, hasher, mailer, workflowOpts...)
	if err != nil {
		return oops.Code("SERVICE_WIRING_FAILED").With("component", "registration").Wrap(err)
	}

	user, err := registrar.Register(ctx, opts.email, opts.password)
	if err != nil {
		//nolint:wrapcheck // auth errors are already coded
		return err
	}

	if opts.confirmed {
		if _, err := backend.Users.MarkEmailConfirmed(ctx, user.ID); err != nil {
			return oops.Code("USER_CONFIRM_FAILED").With("user_id", user.ID.String()).Wrap(err)
		}
		user.EmailConfirmed = true
	}

	cmd.Printf("Created user %s <%s>", user.ID, user.Email)
	if user.EmailConfirmed {
		cmd.Println(" (confirmed)")
	} else {
		cmd.Println(" (confirmation mail queued)")
	}
	return nil
}

// silentMailer drops every message. user create --confirmed uses it because
// the confirmation mail would be meaningless.
type silentMailer struct{}

func (silentMailer) SendPasswordRecoverCode(context.Context, *auth.User, string) bool { return true }
func (silentMailer) SendPasswordSuccessfullyChanged(context.Context, *auth.User) bool  { return true }
func (silentMailer) SendAccountCreated(context.Context, *auth.User, *auth.SecurityToken) bool {
	return true
}
func (silentMailer) SendAccountConfirmed(context.Context, *auth.User) bool { return true }

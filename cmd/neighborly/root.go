// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/neighborly/neighborly/internal/config"
)

// serviceName is reported in every log line.
const serviceName = "neighborly"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Neighborly CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neighborly",
		Short: "Neighborly - account and credential service",
		Long: `Neighborly runs the account service for a neighbourhood platform:
login with session tokens, registration with email confirmation,
and password reset by mailed one-time code.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/neighborly/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, honouring --config and the
// flags registered by config.RegisterFlags on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	//nolint:wrapcheck // config errors are already coded
	return config.Load(configFile, cmd.Flags())
}

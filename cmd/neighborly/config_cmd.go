// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/neighborly/neighborly/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Print the configuration after merging defaults, the config file,
environment variables and flags. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().YAML()
			if err != nil {
				//nolint:wrapcheck // config errors are already coded
				return err
			}
			cmd.Print(string(out))

			if validateErr := cfg.Validate(); validateErr != nil {
				cmd.PrintErrln("warning: " + validateErr.Error())
			}
			return nil
		},
	}
	config.RegisterFlags(show.Flags())

	cmd.AddCommand(show)
	return cmd
}

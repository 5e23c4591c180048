// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the gatehouse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse - schema-attached access policy engine",
		Long: `Gatehouse evaluates access requests against allow and deny rules
declared inline on entity models. Deny rules override allow rules, and
anything not explicitly allowed is denied.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().String("log.level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log.format", "json", "log format (json, text)")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig builds the effective configuration for a command from the
// config file and its flag set, then installs the default logger.
// Without --config, the XDG config directory is consulted; a missing
// file there is not an error.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := configFile
	explicit := configFile != ""
	if !explicit {
		path = filepath.Join(xdg.ConfigDir(), "config.yaml")
	}

	cfg, err := config.Load(path, explicit, cmd.Flags())
	if err != nil {
		return cfg, err
	}

	logging.SetDefault(logging.Options{
		Service: "gatehouse",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	return cfg, nil
}

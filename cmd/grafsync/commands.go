// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string // CLI override for logging.level
	watchMode  bool

	rootCmd = &cobra.Command{
		Use:   "grafsync",
		Short: "Synchronize Grafana orgs, accounts and dashboards from declarative files",
		Long: `grafsync reconciles a Grafana installation against a declarative
				configuration tree: organizations, user accounts, org memberships,
				datasources and dashboard folders. It is designed to be run repeatedly
				by a configuration-management pass; an unchanged tree performs no
				remote mutations and no file writes.`,
		SilenceUsage: true,
	}

	provisionCmd = &cobra.Command{
		Use:   "provision",
		Short: "Run a full reconciliation pass against Grafana",
		RunE:  runProvision, // Defined in cmd_provision.go
	}

	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "One-time bootstrap of a fresh Grafana installation",
		Long: `Changes the default admin credentials, creates the API service
				account and renames the default organization. Guarded by
				lastInitialization.txt: a completed bootstrap is never repeated.`,
		RunE: runSetup, // Defined in cmd_setup.go
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Validate the declaration tree without contacting Grafana",
		RunE:  runValidate, // Defined in cmd_validate.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"Path to the provisioning configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().BoolVar(&watchMode, "watch", false,
		"Stay running and re-provision whenever the inputs tree changes")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(validateCmd)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the provisioning settings read from config.yaml
// and the operator credential files under admins/.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config are the settings for a provisioning run.
type Config struct {
	// GrafanaURL is the base URL of the Grafana API, e.g.
	// "http://localhost:3000". Credentials are sent as basic auth
	// headers, never embedded here.
	GrafanaURL string `yaml:"grafanaURL" validate:"required,url"`

	// ProvisioningDir is the root of the provisioning tree (inputs/,
	// orgs/, accounts/, admins/, restart.txt). Defaults to the working
	// directory.
	ProvisioningDir string `yaml:"provisioningDir" validate:"required"`

	// DashboardsDir is where dashboard JSON trees are materialized,
	// one subtree per org.
	DashboardsDir string `yaml:"dashboardsDir" validate:"required"`

	// DatasourceProvisioningDir is where Grafana reads datasource
	// provisioning files, e.g. /etc/grafana/provisioning/datasources.
	DatasourceProvisioningDir string `yaml:"datasourceProvisioningDir" validate:"required"`

	// DashboardProvisioningDir is where Grafana reads dashboard
	// provider files, e.g. /etc/grafana/provisioning/dashboards.
	DashboardProvisioningDir string `yaml:"dashboardProvisioningDir" validate:"required"`

	// UpdateIntervalSeconds is how often Grafana rescans each
	// dashboard provider path.
	UpdateIntervalSeconds int `yaml:"updateIntervalSeconds" validate:"gt=0"`

	// TimeoutSeconds bounds every API call.
	TimeoutSeconds int `yaml:"timeout" validate:"gt=0"`

	// Logging configures output verbosity and the optional log file.
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors pkg/logging.Config in YAML form.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Timeout returns the API timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// InputsDir is the directory of per-org input directories.
func (c *Config) InputsDir() string { return filepath.Join(c.ProvisioningDir, "inputs") }

// OrgsDir is the existence-marker directory.
func (c *Config) OrgsDir() string { return filepath.Join(c.ProvisioningDir, "orgs") }

// AccountsDir is the per-org account symlink directory.
func (c *Config) AccountsDir() string { return filepath.Join(c.ProvisioningDir, "accounts") }

// AdminsDir holds the operator control files (_superAdmins.yaml,
// _kiosk.yaml).
func (c *Config) AdminsDir() string { return filepath.Join(c.ProvisioningDir, "admins") }

// KioskFile is the default-org membership declaration.
func (c *Config) KioskFile() string { return filepath.Join(c.AdminsDir(), "_kiosk.yaml") }

// SuperAdminsFile holds the admin and API account credentials.
func (c *Config) SuperAdminsFile() string { return filepath.Join(c.AdminsDir(), "_superAdmins.yaml") }

// InitMarkerFile guards the one-time bootstrap.
func (c *Config) InitMarkerFile() string {
	return filepath.Join(c.ProvisioningDir, "lastInitialization.txt")
}

// DefaultConfig returns the settings used when config.yaml omits a
// field.
func DefaultConfig() Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Config{
		GrafanaURL:                "http://localhost:3000",
		ProvisioningDir:           wd,
		DashboardsDir:             filepath.Join(wd, "dashboards"),
		DatasourceProvisioningDir: "/etc/grafana/provisioning/datasources",
		DashboardProvisioningDir:  "/etc/grafana/provisioning/dashboards",
		UpdateIntervalSeconds:     30,
		TimeoutSeconds:            5,
		Logging:                   LoggingConfig{Level: "info"},
	}
}

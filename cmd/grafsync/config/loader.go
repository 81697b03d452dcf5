// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads the config file at path, fills in defaults for omitted
// fields and validates the result. A missing file is not an error: the
// defaults alone are a valid configuration for a local Grafana.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := validate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Credentials are the two accounts _superAdmins.yaml declares: the
// installation's primary admin (user id 1) and the API service account
// the provisioner authenticates as.
type Credentials struct {
	GrafanaAdmin AdminAccount `yaml:"grafanaAdmin" validate:"required"`
	API          APIAccount   `yaml:"api" validate:"required"`
}

// AdminAccount is the primary admin: its target password plus the
// profile fields applied to user id 1 during bootstrap.
type AdminAccount struct {
	Password string       `yaml:"password" validate:"required"`
	Data     AdminProfile `yaml:"data" validate:"required"`
}

// AdminProfile is the profile the bootstrap writes onto the primary
// admin account.
type AdminProfile struct {
	Login string `yaml:"login" validate:"required"`
	Name  string `yaml:"name"`
	Email string `yaml:"email" validate:"omitempty,email"`
	Theme string `yaml:"theme" validate:"omitempty,oneof=light dark"`
}

// APIAccount is the service account used for all provisioning calls.
type APIAccount struct {
	Login    string `yaml:"login" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email" validate:"omitempty,email"`
}

// LoadCredentials reads and validates _superAdmins.yaml. Unlike the
// config file, this one is mandatory: without it no API call can be
// authenticated.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(path)
	if err != nil {
		return creds, fmt.Errorf("reading credentials file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parsing credentials file %s: %w", path, err)
	}
	if err := validate.Struct(&creds); err != nil {
		return creds, fmt.Errorf("invalid credentials file %s: %w", path, err)
	}
	return creds, nil
}

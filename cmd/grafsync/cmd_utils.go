// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/google/uuid"

	"github.com/AleutianAI/grafsync/cmd/grafsync/config"
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// newRunLogger builds the logger for one command invocation. Every run
// gets a fresh run ID so interleaved log files from overlapping cron
// schedules stay attributable.
func newRunLogger(cfg config.Config, service string) *logging.Logger {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log := logging.New(logging.Config{
		Level:   logging.ParseLevel(level),
		LogDir:  cfg.Logging.Dir,
		Service: service,
		JSON:    cfg.Logging.JSON,
	})
	return log.With("run_id", uuid.NewString())
}

// loadRuntime loads the configuration and credentials every remote
// command needs.
func loadRuntime() (config.Config, config.Credentials, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, config.Credentials{}, err
	}
	creds, err := config.LoadCredentials(cfg.SuperAdminsFile())
	if err != nil {
		return config.Config{}, config.Credentials{}, err
	}
	return cfg, creds, nil
}

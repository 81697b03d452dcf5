// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/grafsync/cmd/grafsync/config"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/registry"
)

// runValidate checks the whole declaration tree without contacting
// Grafana: every org declaration, every account file, and the kiosk
// file when present. Useful as a pre-merge check on the repository
// holding the inputs.
func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newRunLogger(cfg, "validate")
	defer log.Close()

	orgFiles, accountFiles, err := declarationFiles(cfg)
	if err != nil {
		return err
	}

	reg, err := registry.LoadFiles(orgFiles, accountFiles)
	if err != nil {
		return err
	}

	if kiosk := cfg.KioskFile(); fileExists(kiosk) {
		if _, _, err := registry.LoadOrgDeclaration(kiosk); err != nil {
			return err
		}
	}

	log.Info("declarations valid",
		"orgs", len(reg.OrgNames()), "accounts", len(reg.Accounts))
	fmt.Printf("OK: %d orgs, %d accounts\n", len(reg.OrgNames()), len(reg.Accounts))
	return nil
}

// declarationFiles collects the org and account declarations the same
// way a provisioning run would.
func declarationFiles(cfg config.Config) (orgFiles, accountFiles []string, err error) {
	entries, err := os.ReadDir(cfg.InputsDir())
	if err != nil {
		return nil, nil, fmt.Errorf("scanning inputs dir %s: %w", cfg.InputsDir(), err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(cfg.InputsDir(), entry.Name())
		orgFiles = append(orgFiles, filepath.Join(dir, "org.yaml"))
		if accounts := filepath.Join(dir, "accounts.yaml"); fileExists(accounts) {
			accountFiles = append(accountFiles, accounts)
		}
	}
	sort.Strings(orgFiles)
	return orgFiles, accountFiles, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

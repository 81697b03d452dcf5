// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/grafsync/cmd/grafsync/config"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/grafana"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/registry"
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// Factory-default credentials of a fresh Grafana installation. The
// whole point of setup is to retire them.
const (
	factoryAdminLogin    = "admin"
	factoryAdminPassword = "admin"
)

// runSetup bootstraps a fresh Grafana installation.
//
// # Description
//
// The sequence must run before the Grafana port is opened to the
// network, since it starts from the factory credentials:
//
//  1. Change the primary admin's password (warning on failure: a
//     previously interrupted setup has already done this step).
//  2. Rename the primary admin per the credentials file (same warning
//     semantics).
//  3. Create the API service account and grant it the server admin
//     flag (fatal on failure).
//  4. Rename the default organization to the kiosk name (fatal).
//  5. Write the initialization marker with the completion timestamp.
//
// The marker guards the whole sequence: when it exists non-empty the
// command is a no-op, so it is safe to keep in the recurring
// configuration-management pass alongside provision.
func runSetup(cmd *cobra.Command, args []string) error {
	cfg, creds, err := loadRuntime()
	if err != nil {
		return err
	}
	log := newRunLogger(cfg, "setup")
	defer log.Close()

	client := grafana.New(cfg.GrafanaURL, factoryAdminLogin, factoryAdminPassword, cfg.Timeout())
	return bootstrap(context.Background(), client, creds, cfg.KioskFile(), cfg.InitMarkerFile(), log)
}

// bootstrap runs the initialization sequence against an already
// constructed client. Split from runSetup so it can be driven directly
// in tests.
func bootstrap(ctx context.Context, client *grafana.Client, creds config.Credentials,
	kioskFile, marker string, log *logging.Logger) error {
	if info, err := os.Stat(marker); err == nil && info.Size() > 0 {
		log.Info("installation already bootstrapped", "marker", marker)
		return nil
	}

	kioskName, _, err := registry.LoadOrgDeclaration(kioskFile)
	if err != nil {
		return fmt.Errorf("loading kiosk declaration: %w", err)
	}

	admin := creds.GrafanaAdmin
	if err := client.ChangeUserPassword(ctx, 1, admin.Password); err != nil {
		log.Warn("failed to change default admin password; continuing, "+
			"an interrupted earlier setup may have already changed it", "error", err)
	}
	client = client.WithCredentials(factoryAdminLogin, admin.Password)

	if err := client.UpdateUser(ctx, 1, grafana.UserUpdate{
		Login: admin.Data.Login,
		Name:  admin.Data.Name,
		Email: admin.Data.Email,
		Theme: admin.Data.Theme,
	}); err != nil {
		log.Warn("failed to rename default admin; continuing, "+
			"an interrupted earlier setup may have already renamed it", "error", err)
	}
	client = client.WithCredentials(admin.Data.Login, admin.Password)

	apiID, err := client.CreateUser(ctx, grafana.NewUser{
		Login:    creds.API.Login,
		Password: creds.API.Password,
		Name:     creds.API.Name,
		Email:    creds.API.Email,
	})
	if err != nil {
		return fmt.Errorf("creating API service account: %w", err)
	}
	if err := client.SetGrafanaAdmin(ctx, apiID, true); err != nil {
		return fmt.Errorf("granting server admin to the API account: %w", err)
	}
	log.Info("created API service account", "login", creds.API.Login, "id", apiID)

	apiClient := client.WithCredentials(creds.API.Login, creds.API.Password)
	if err := apiClient.UpdateOrg(ctx, grafana.DefaultOrgID, kioskName); err != nil {
		return fmt.Errorf("renaming the default org to %q: %w", kioskName, err)
	}
	log.Info("renamed default org", "name", kioskName)

	stamp := time.Now().Format("2006-01-02T15:04:05")
	if err := os.WriteFile(marker, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("writing initialization marker %s: %w", marker, err)
	}
	log.Info("bootstrap complete", "marker", marker)
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/grafsync/cmd/grafsync/config"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/grafana"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/provision"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/resources"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/statestore"
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// watchDebounce batches filesystem event bursts (an rsync of a whole
// org dir fires hundreds of events) into one provisioning run.
const watchDebounce = 2 * time.Second

func runProvision(cmd *cobra.Command, args []string) error {
	cfg, creds, err := loadRuntime()
	if err != nil {
		return err
	}
	log := newRunLogger(cfg, "provision")
	defer log.Close()

	engine, err := buildEngine(cfg, creds, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := engine.Run(ctx); err != nil {
		log.Error("provisioning run failed", "error", err)
		return err
	}

	if !watchMode {
		return nil
	}
	return watchAndRerun(ctx, cfg.InputsDir(), engine, log)
}

// buildEngine wires the engine from the configuration: API client with
// the service account credentials, symlink-based existence markers in
// the orgs dir, and the file resource syncer.
func buildEngine(cfg config.Config, creds config.Credentials, log *logging.Logger) (*provision.Engine, error) {
	client := grafana.New(cfg.GrafanaURL, creds.API.Login, creds.API.Password, cfg.Timeout())

	inputsDir := cfg.InputsDir()
	markers, err := statestore.NewSymlinkStore(cfg.OrgsDir(), "_org.yaml", func(org string) string {
		return filepath.Join(inputsDir, org, "org.yaml")
	})
	if err != nil {
		return nil, err
	}

	syncer := resources.NewSyncer(
		cfg.DatasourceProvisioningDir,
		cfg.DashboardProvisioningDir,
		cfg.DashboardsDir,
		cfg.UpdateIntervalSeconds,
		log,
	)

	paths := provision.Paths{
		ProvisioningDir: cfg.ProvisioningDir,
		InputsDir:       inputsDir,
		AccountsDir:     cfg.AccountsDir(),
		KioskFile:       cfg.KioskFile(),
	}
	return provision.NewEngine(client, markers, syncer,
		paths, creds.GrafanaAdmin.Data.Login, creds.API.Login, log), nil
}

// watchAndRerun blocks until ctx is cancelled, re-running the engine
// after each debounced burst of changes under the inputs tree. Runs
// are strictly serial; events arriving during a run are coalesced into
// the next one. A failed run is logged and the watch continues, the
// same way a failed cron pass is retried on the next schedule.
func watchAndRerun(ctx context.Context, inputsDir string, engine *provision.Engine, log *logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watchTree(watcher, inputsDir); err != nil {
		return err
	}
	log.Info("watching inputs for changes", "dir", inputsDir)

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The sync record and .gitignore are written by the run
			// itself; reacting to them would loop forever.
			if name := filepath.Base(event.Name); strings.HasPrefix(name, ".") {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, event.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case pending <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)

		case <-pending:
			timer = nil
			if _, err := engine.Run(ctx); err != nil {
				log.Error("provisioning run failed", "error", err)
			}
			// Directories created since the last pass.
			_ = watchTree(watcher, inputsDir)
		}
	}
}

// watchTree registers root and every directory below it.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

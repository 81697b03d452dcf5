// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package resources synchronizes the file-based child resources of an
organization: its datasource provisioning file and its dashboard
folders and files.

Unlike accounts and memberships, these resources have no remote
identity to reconcile against. Grafana reads them from provisioning
files on disk, so "remote state" here is the materialized file tree,
and drift is detected with a persisted per-org sync record plus
filesystem timestamps. An unchanged input performs zero writes, which
is what keeps repeated configuration-management passes cheap.
*/
package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// stateFileName is the per-org sync record, stored inside the org's
// input directory and excluded from version control via .gitignore.
const stateFileName = ".state.yaml"

// timeLayout matches the record format used since the first release.
const timeLayout = "2006-01-02T15:04:05"

// State is the persisted sync record for one organization.
//
// It holds the minimal facts that make resource syncing idempotent:
// when the datasource file was last pushed, and which dashboard
// folders were last materialized. No other component reads it.
type State struct {
	// DatasourcesDate is the timestamp of the last datasource push,
	// in timeLayout, UTC. Empty means never pushed.
	DatasourcesDate string `yaml:"datasourcesDate,omitempty"`

	// DashboardFolders is the folder-name set recorded at the last
	// folder sync, sorted.
	DashboardFolders []string `yaml:"dashboardFolders"`

	// recorded is true when the state was loaded from an existing
	// file, distinguishing "never provisioned" from "provisioned with
	// an empty folder set".
	recorded bool
}

// LoadState reads the sync record from the org input directory. A
// missing record is not an error: it means the org has never been
// synced.
func LoadState(orgInputDir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(orgInputDir, stateFileName))
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync state in %s: %w", orgInputDir, err)
	}

	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing sync state in %s: %w", orgInputDir, err)
	}
	s.recorded = true
	return &s, nil
}

// Save writes the record back. Called only after a sync that actually
// wrote something.
func (s *State) Save(orgInputDir string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding sync state: %w", err)
	}
	path := filepath.Join(orgInputDir, stateFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing sync state %s: %w", path, err)
	}
	return nil
}

// LastDatasourceSync returns the recorded datasource push time, and
// whether one was recorded.
func (s *State) LastDatasourceSync() (time.Time, bool) {
	if s.DatasourcesDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, s.DatasourcesDate)
	if err != nil {
		// A corrupt timestamp means we can't prove freshness; treat
		// as never synced so the next run re-pushes.
		return time.Time{}, false
	}
	return t, true
}

// SetDatasourceSync records a datasource push at t.
func (s *State) SetDatasourceSync(t time.Time) {
	s.DatasourcesDate = t.UTC().Format(timeLayout)
}

// HasFolderRecord reports whether a folder set was ever recorded.
func (s *State) HasFolderRecord() bool {
	return s.recorded && s.DashboardFolders != nil
}

// EnsureIgnoreFile makes sure the org input directory carries a
// .gitignore excluding the sync record from version control. An
// existing .gitignore is left untouched.
func EnsureIgnoreFile(orgInputDir string) error {
	path := filepath.Join(orgInputDir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(stateFileName+"\n"), 0o644)
}

// WriteRestartSignal asks the deployment layer to restart Grafana so
// it re-reads the provisioning files. Written once per run, after any
// organization's configuration changed.
func WriteRestartSignal(provisioningDir string) error {
	path := filepath.Join(provisioningDir, "restart.txt")
	if err := os.WriteFile(path, []byte("restart\n"), 0o644); err != nil {
		return fmt.Errorf("writing restart signal %s: %w", path, err)
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resources

import (
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// Syncer runs the full resource sync for one organization.
type Syncer struct {
	// DatasourceDir is the provisioning datasources directory.
	DatasourceDir string

	folders *FolderSyncer
	log     *logging.Logger
}

// NewSyncer creates a Syncer writing into the given provisioning
// subdirectories and materializing dashboards under dashboardsDir.
func NewSyncer(datasourceDir, routesDir, dashboardsDir string, updateIntervalSeconds int, log *logging.Logger) *Syncer {
	return &Syncer{
		DatasourceDir: datasourceDir,
		folders: &FolderSyncer{
			RoutesDir:             routesDir,
			DashboardsDir:         dashboardsDir,
			UpdateIntervalSeconds: updateIntervalSeconds,
			Log:                   log,
		},
		log: log,
	}
}

// SyncOrg converges all file-based resources of one organization.
//
// # Description
//
// Runs the three sub-syncs in order (datasources, folder set,
// dashboard files), each of which is independently drift-gated and
// reports whether it wrote anything. The sync record is persisted only
// when something was written, and the .gitignore guard is ensured on
// every pass so hand-created input directories pick it up.
//
// # Outputs
//
//   - bool: true when the org's configuration changed on disk, which
//     the caller aggregates into the restart decision
//   - error: first sub-sync failure; the record still reflects the
//     sub-syncs that completed before it
func (s *Syncer) SyncOrg(orgID int64, orgName, orgInputDir string) (bool, error) {
	state, err := LoadState(orgInputDir)
	if err != nil {
		return false, err
	}
	if err := EnsureIgnoreFile(orgInputDir); err != nil {
		return false, err
	}

	modified := false

	wrote, err := SyncDatasources(orgID, orgName, orgInputDir, s.DatasourceDir, state, s.log)
	modified = modified || wrote
	if err != nil {
		s.persist(state, orgInputDir, modified)
		return modified, err
	}

	declared, err := DashboardFolders(orgInputDir)
	if err != nil {
		s.persist(state, orgInputDir, modified)
		return modified, err
	}

	wrote, err = s.folders.Sync(orgID, orgName, declared, state)
	modified = modified || wrote
	if err != nil {
		s.persist(state, orgInputDir, modified)
		return modified, err
	}

	wrote, err = s.folders.SyncDashboards(orgName, declared, orgInputDir)
	modified = modified || wrote
	if err != nil {
		s.persist(state, orgInputDir, modified)
		return modified, err
	}

	s.persist(state, orgInputDir, modified)
	return modified, nil
}

// persist saves the sync record when the pass wrote something. A save
// failure is logged, not fatal: the worst outcome is a redundant
// re-sync on the next run.
func (s *Syncer) persist(state *State, orgInputDir string, modified bool) {
	if !modified {
		return
	}
	if err := state.Save(orgInputDir); err != nil {
		s.log.Error("failed to persist sync record", "dir", orgInputDir, "error", err)
	}
}

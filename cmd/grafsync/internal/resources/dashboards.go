// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resources

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/grafsync/pkg/logging"
)

// ----------------------------------------------------------------------
// Folder discovery
// ----------------------------------------------------------------------

// dashboardsInputDirName is the subdirectory of an org input dir that
// holds the dashboard folder tree.
const dashboardsInputDirName = "dashboards"

// DashboardFolders lists the dashboard folder names declared by an org
// input directory: the immediate subdirectories of its dashboards/
// tree, hidden ones excluded, sorted. An org without a dashboards/
// directory declares no folders.
func DashboardFolders(orgInputDir string) ([]string, error) {
	return dirList(filepath.Join(orgInputDir, dashboardsInputDirName))
}

// dirList returns the first-level directory names under top, hidden
// ones excluded, sorted. A missing top yields an empty list.
func dirList(top string) ([]string, error) {
	entries, err := os.ReadDir(top)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", top, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ----------------------------------------------------------------------
// Folder set sync (routes file + materialized directories)
// ----------------------------------------------------------------------

// routesDoc is the dashboard provider configuration Grafana reads.
type routesDoc struct {
	APIVersion int             `yaml:"apiVersion"`
	Providers  []routeProvider `yaml:"providers"`
}

type routeProvider struct {
	Name                  string       `yaml:"name"`
	OrgID                 int64        `yaml:"orgId"`
	Folder                string       `yaml:"folder"`
	Type                  string       `yaml:"type"`
	DisableDeletion       bool         `yaml:"disableDeletion"`
	UpdateIntervalSeconds int          `yaml:"updateIntervalSeconds"`
	Options               routeOptions `yaml:"options"`
}

type routeOptions struct {
	Path string `yaml:"path"`
}

// FolderSyncer materializes an organization's dashboard folder set.
type FolderSyncer struct {
	// RoutesDir is the provisioning dashboards directory, where the
	// per-org provider configuration file goes.
	RoutesDir string

	// DashboardsDir is the root under which dashboard JSON trees are
	// materialized, one subtree per org.
	DashboardsDir string

	// UpdateIntervalSeconds is how often Grafana rescans each provider
	// path.
	UpdateIntervalSeconds int

	Log *logging.Logger
}

// Sync converges the materialized folder set with the declared one.
//
// # Description
//
// The declared set is compared against the recorded one. When they
// differ, or when no record exists yet:
//
//   - materialized directory trees with no declared counterpart are
//     deleted (diffed against the disk, not the record, so trees left
//     behind by an interrupted run are still cleaned up)
//   - the per-org provider configuration file is regenerated, one
//     provider per folder, named "<org>_<folder>" so provider names
//     are unique across organizations
//   - a materialized directory is created per declared folder
//
// Removing the last folder still regenerates the file with an empty
// provider list rather than deleting it, so Grafana drops the org's
// providers instead of keeping stale ones.
//
// # Outputs
//
//   - bool: true when anything was regenerated (folder set changed)
//   - error: filesystem failure
func (f *FolderSyncer) Sync(orgID int64, orgName string, folders []string, state *State) (bool, error) {
	if state.HasFolderRecord() && equalFolderSets(state.DashboardFolders, folders) {
		f.Log.Debug("dashboard folders unchanged", "org", orgName)
		return false, nil
	}

	orgRoot := filepath.Join(f.DashboardsDir, orgName)
	if err := os.MkdirAll(orgRoot, 0o755); err != nil {
		return false, fmt.Errorf("creating dashboards root for org %q: %w", orgName, err)
	}

	declared := make(map[string]bool, len(folders))
	for _, name := range folders {
		declared[name] = true
	}
	existing, err := dirList(orgRoot)
	if err != nil {
		return false, err
	}
	for _, name := range existing {
		if declared[name] {
			continue
		}
		removed := filepath.Join(orgRoot, name)
		if err := os.RemoveAll(removed); err != nil {
			return false, fmt.Errorf("removing dropped folder %s: %w", removed, err)
		}
		f.Log.Info("removed dashboard folder", "org", orgName, "folder", name)
	}

	doc := routesDoc{APIVersion: 1, Providers: []routeProvider{}}
	for _, name := range folders {
		doc.Providers = append(doc.Providers, routeProvider{
			Name:                  orgName + "_" + name,
			OrgID:                 orgID,
			Folder:                name,
			Type:                  "file",
			DisableDeletion:       false,
			UpdateIntervalSeconds: f.UpdateIntervalSeconds,
			Options:               routeOptions{Path: filepath.Join(orgRoot, name)},
		})
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encoding dashboard routes for org %q: %w", orgName, err)
	}
	dest := filepath.Join(f.RoutesDir, orgName+"_dashboardRoutes.yaml")
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", dest, err)
	}

	for _, name := range folders {
		if err := os.MkdirAll(filepath.Join(orgRoot, name), 0o755); err != nil {
			return false, fmt.Errorf("creating folder dir for org %q: %w", orgName, err)
		}
	}

	state.DashboardFolders = append([]string{}, folders...)
	state.recorded = true
	f.Log.Info("regenerated dashboard routes", "org", orgName, "folders", len(folders))
	return true, nil
}

// equalFolderSets compares two sorted folder lists.
func equalFolderSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ----------------------------------------------------------------------
// Dashboard file sync
// ----------------------------------------------------------------------

// SyncDashboards converges the materialized dashboard files of every
// declared folder with the input tree.
//
// # Description
//
// Per folder, per input *.json file: the file is copied to the
// materialized tree when the copy is missing or older than the input.
// Copies are not verbatim: server-assigned identifiers ("id", "uid")
// are stripped from the top level so Grafana assigns fresh ones and
// dashboards moved between installations never collide. Materialized
// files whose input was deleted are removed.
//
// # Outputs
//
//   - bool: true when any file was copied or deleted
//   - error: unreadable input, malformed JSON, or write failure
func (f *FolderSyncer) SyncDashboards(orgName string, folders []string, orgInputDir string) (bool, error) {
	wrote := false
	orgRoot := filepath.Join(f.DashboardsDir, orgName)

	for _, folder := range folders {
		srcDir := filepath.Join(orgInputDir, dashboardsInputDirName, folder)
		destDir := filepath.Join(orgRoot, folder)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return wrote, fmt.Errorf("creating folder dir %s: %w", destDir, err)
		}

		srcFiles, err := jsonFiles(srcDir)
		if err != nil {
			return wrote, err
		}

		for name, srcInfo := range srcFiles {
			src := filepath.Join(srcDir, name)
			dest := filepath.Join(destDir, name)
			destInfo, err := os.Stat(dest)
			if err == nil && !srcInfo.ModTime().After(destInfo.ModTime()) {
				continue
			}
			if err != nil && !os.IsNotExist(err) {
				return wrote, fmt.Errorf("checking %s: %w", dest, err)
			}
			if err := copyDashboard(src, dest); err != nil {
				return wrote, err
			}
			f.Log.Info("synced dashboard", "org", orgName, "folder", folder, "file", name)
			wrote = true
		}

		destFiles, err := jsonFiles(destDir)
		if err != nil {
			return wrote, err
		}
		for name := range destFiles {
			if _, ok := srcFiles[name]; ok {
				continue
			}
			orphan := filepath.Join(destDir, name)
			if err := os.Remove(orphan); err != nil {
				return wrote, fmt.Errorf("removing orphan dashboard %s: %w", orphan, err)
			}
			f.Log.Info("removed orphan dashboard", "org", orgName, "folder", folder, "file", name)
			wrote = true
		}
	}
	return wrote, nil
}

// jsonFiles maps the *.json file names in dir to their stat info. A
// missing dir yields an empty map.
func jsonFiles(dir string) (map[string]os.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]os.FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	files := make(map[string]os.FileInfo)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("reading info of %s: %w", filepath.Join(dir, e.Name()), err)
		}
		files[e.Name()] = info
	}
	return files, nil
}

// copyDashboard writes dest from src with the server-assigned
// identifiers removed.
func copyDashboard(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading dashboard %s: %w", src, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing dashboard %s: %w", src, err)
	}
	delete(doc, "id")
	delete(doc, "uid")

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding dashboard %s: %w", src, err)
	}
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return fmt.Errorf("writing dashboard %s: %w", dest, err)
	}
	return nil
}

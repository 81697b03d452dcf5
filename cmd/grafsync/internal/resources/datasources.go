// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/grafsync/pkg/logging"
)

// datasourcesFileName is the per-org input file inside the org input
// directory.
const datasourcesFileName = "datasources.yaml"

// SyncDatasources pushes an organization's datasource definitions into
// the provisioning directory, but only when the input changed since the
// last recorded push.
//
// # Description
//
// Staleness is decided purely from the input file's modification time
// against the sync record. When stale, the input is transformed before
// materialization:
//
//   - any deletion directives are stripped, since removal is managed
//     here by regenerating the file, never by pushing delete lists
//   - every datasource entry is stamped with the resolved org id and
//     forced read-only, so the declarative file stays the single
//     source of truth for datasource settings
//
// The output is written to destDir/<orgName>_datasources.yaml. An org
// without a datasources input is legal and performs nothing.
//
// # Outputs
//
//   - bool: true when a file was written (the caller marks the org
//     modified and persists the updated state)
//   - error: unreadable input, malformed YAML, or write failure
func SyncDatasources(orgID int64, orgName, orgInputDir, destDir string, state *State, log *logging.Logger) (bool, error) {
	src := filepath.Join(orgInputDir, datasourcesFileName)
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		log.Debug("org declares no datasources", "org", orgName)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking datasources input for org %q: %w", orgName, err)
	}

	if last, ok := state.LastDatasourceSync(); ok && !info.ModTime().UTC().After(last) {
		log.Debug("datasources unchanged", "org", orgName)
		return false, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return false, fmt.Errorf("reading datasources input for org %q: %w", orgName, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("parsing %s: %w", src, err)
	}
	stampDatasources(doc, orgID)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encoding datasources for org %q: %w", orgName, err)
	}

	dest := filepath.Join(destDir, orgName+"_datasources.yaml")
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", dest, err)
	}

	state.SetDatasourceSync(time.Now())
	log.Info("pushed datasources", "org", orgName, "file", dest)
	return true, nil
}

// stampDatasources applies the in-place transformations: drop the
// deletion directive list and force orgId plus editable on every entry.
func stampDatasources(doc map[string]any, orgID int64) {
	delete(doc, "deleteDatasources")

	list, ok := doc["datasources"].([]any)
	if !ok {
		return
	}
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry["orgId"] = orgID
		entry["editable"] = false
	}
}

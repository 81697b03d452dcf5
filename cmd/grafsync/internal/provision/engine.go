// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/grafana"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/registry"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/resources"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/statestore"
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// ResourceSyncer converges the file-based resources of one org. It is
// satisfied by *resources.Syncer; tests substitute a recording fake.
type ResourceSyncer interface {
	SyncOrg(orgID int64, orgName, orgInputDir string) (bool, error)
}

var _ ResourceSyncer = (*resources.Syncer)(nil)

// Paths are the directories a provisioning run works against.
type Paths struct {
	// ProvisioningDir is the root; the restart signal goes here.
	ProvisioningDir string

	// InputsDir holds one subdirectory per organization.
	InputsDir string

	// AccountsDir is where per-org account symlinks are maintained for
	// operator inspection and external tooling.
	AccountsDir string

	// KioskFile is the membership declaration for the default org.
	// Empty disables kiosk reconciliation.
	KioskFile string
}

// RunReport summarizes what one provisioning run did. Two consecutive
// runs over unchanged inputs must show zero mutations in the second
// report.
type RunReport struct {
	// Orgs is the number of organizations processed.
	Orgs int

	// AccountsResolved is the number of declared accounts mapped to ids.
	AccountsResolved int

	// Members aggregates membership mutations across all orgs,
	// including the kiosk org.
	Members MemberStats

	// OrgsModified counts orgs whose file-based resources changed.
	OrgsModified int

	// RestartRequested is true when the restart signal was written.
	RestartRequested bool
}

// Engine runs the full reconciliation pipeline.
type Engine struct {
	resolver  *Resolver
	orgs      *OrgController
	members   *MemberReconciler
	resources ResourceSyncer
	paths     Paths
	log       *logging.Logger
}

// NewEngine assembles an Engine from its collaborators.
func NewEngine(platform Platform, markers statestore.Store, syncer ResourceSyncer,
	paths Paths, primaryAdminLogin, apiLogin string, log *logging.Logger) *Engine {
	members := NewMemberReconciler(platform, log)
	return &Engine{
		resolver:  NewResolver(platform, log),
		orgs:      NewOrgController(platform, markers, members, primaryAdminLogin, apiLogin, log),
		members:   members,
		resources: syncer,
		paths:     paths,
		log:       log,
	}
}

// Run executes one provisioning pass.
//
// # Description
//
// The pass is strictly ordered and single-threaded:
//
//  1. Scan the inputs directory for org input directories (hidden
//     ones excluded) and load every declaration. All validation
//     completes here; a single malformed file aborts the run before
//     any remote call.
//  2. Maintain the per-org account symlinks in the accounts dir.
//  3. Resolve every declared account to its id, creating missing
//     accounts.
//  4. Per org, sorted by name: ensure the org exists, then reconcile
//     its memberships.
//  5. Reconcile the default (kiosk) org's memberships from its own
//     declaration file, when one is configured.
//  6. Per org: sync datasources, dashboard folders and dashboard
//     files; when any org changed, write the restart signal.
//
// A fatal error aborts the pass at the failing step. Everything
// completed before it stays applied; re-running after the cause is
// fixed converges the rest. The report always reflects the work done
// up to the point of return.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	var report RunReport

	orgDirs, err := orgInputDirs(e.paths.InputsDir)
	if err != nil {
		return report, err
	}

	orgFiles := make([]string, 0, len(orgDirs))
	for _, dir := range orgDirs {
		orgFiles = append(orgFiles, filepath.Join(dir, "org.yaml"))
	}
	accountFiles, err := accountDeclarations(e.paths.AccountsDir)
	if err != nil {
		return report, err
	}
	for _, dir := range orgDirs {
		if file, ok := orgAccountsInput(dir); ok {
			accountFiles = append(accountFiles, file)
		}
	}

	reg, err := registry.LoadFiles(orgFiles, accountFiles)
	if err != nil {
		return report, err
	}
	report.Orgs = len(reg.OrgNames())

	var kioskMembers []registry.Member
	if e.paths.KioskFile != "" {
		if _, err := os.Stat(e.paths.KioskFile); err == nil {
			_, kioskMembers, err = registry.LoadOrgDeclaration(e.paths.KioskFile)
			if err != nil {
				return report, err
			}
		}
	}

	for _, name := range reg.OrgNames() {
		if err := e.ensureAccountsLink(name, filepath.Dir(reg.Source(name))); err != nil {
			return report, err
		}
	}

	ids, err := e.resolver.ResolveAll(ctx, reg.Accounts)
	if err != nil {
		return report, err
	}
	report.AccountsResolved = len(ids)

	orgIDs := make(map[string]int64, report.Orgs)
	for _, name := range reg.OrgNames() {
		orgID, err := e.orgs.EnsureOrg(ctx, name)
		if err != nil {
			return report, err
		}
		orgIDs[name] = orgID

		stats, err := e.members.Reconcile(ctx, orgID, reg.Orgs[name], ids)
		report.Members.add(stats)
		if err != nil {
			return report, err
		}
	}

	if kioskMembers != nil {
		stats, err := e.members.Reconcile(ctx, grafana.DefaultOrgID, kioskMembers, ids)
		report.Members.add(stats)
		if err != nil {
			return report, err
		}
	}

	for _, name := range reg.OrgNames() {
		modified, err := e.resources.SyncOrg(orgIDs[name], name, filepath.Dir(reg.Source(name)))
		if modified {
			report.OrgsModified++
		}
		if err != nil {
			return report, err
		}
	}

	if report.OrgsModified > 0 {
		if err := resources.WriteRestartSignal(e.paths.ProvisioningDir); err != nil {
			return report, err
		}
		report.RestartRequested = true
	}

	e.log.Info("provisioning run complete",
		"orgs", report.Orgs,
		"accounts", report.AccountsResolved,
		"invited", report.Members.Invited,
		"patched", report.Members.Patched,
		"skipped", report.Members.Skipped,
		"modified_orgs", report.OrgsModified,
		"restart", report.RestartRequested)
	return report, nil
}

// add accumulates another org's stats into the run totals.
func (s *MemberStats) add(other MemberStats) {
	s.Invited += other.Invited
	s.Patched += other.Patched
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
}

// ensureAccountsLink maintains the accounts/<org>_accounts.yaml symlink
// pointing at the org's account declaration. An org without one is
// legal; a broken link left by a removed input is replaced.
func (e *Engine) ensureAccountsLink(orgName, orgInputDir string) error {
	target, ok := orgAccountsInput(orgInputDir)
	if !ok {
		return nil
	}

	if err := os.MkdirAll(e.paths.AccountsDir, 0o755); err != nil {
		return fmt.Errorf("creating accounts dir: %w", err)
	}

	link := filepath.Join(e.paths.AccountsDir, orgName+"_accounts.yaml")
	if current, err := os.Readlink(link); err == nil && current == target {
		return nil
	}
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("replacing account link %s: %w", link, err)
		}
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("linking account declaration for org %q: %w", orgName, err)
	}
	e.log.Debug("linked account declaration", "org", orgName, "link", link)
	return nil
}

// orgAccountsInput returns the org's account declaration file and
// whether it exists.
func orgAccountsInput(orgInputDir string) (string, bool) {
	file := filepath.Join(orgInputDir, "accounts.yaml")
	if _, err := os.Stat(file); err != nil {
		return "", false
	}
	return file, true
}

// orgInputDirs lists the org input directories under inputsDir, hidden
// ones excluded, sorted.
func orgInputDirs(inputsDir string) ([]string, error) {
	entries, err := os.ReadDir(inputsDir)
	if err != nil {
		return nil, fmt.Errorf("scanning inputs dir %s: %w", inputsDir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(inputsDir, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// accountDeclarations lists the standalone account files already in
// the accounts dir, skipping control files (names starting with '_')
// and the per-org symlinks the engine itself maintains. The symlinks
// are skipped because their targets are loaded directly from the org
// input dirs; loading both would trip duplicate-login validation.
func accountDeclarations(accountsDir string) ([]string, error) {
	entries, err := os.ReadDir(accountsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning accounts dir %s: %w", accountsDir, err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		files = append(files, filepath.Join(accountsDir, name))
	}
	sort.Strings(files)
	return files, nil
}

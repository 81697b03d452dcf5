// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/statestore"
)

// fakeSyncer stands in for the resource syncer; it reports each org as
// modified exactly once, like a real first run followed by converged
// runs.
type fakeSyncer struct {
	synced map[string]bool
	calls  []string
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{synced: make(map[string]bool)}
}

func (f *fakeSyncer) SyncOrg(orgID int64, orgName, orgInputDir string) (bool, error) {
	f.calls = append(f.calls, orgName)
	if f.synced[orgName] {
		return false, nil
	}
	f.synced[orgName] = true
	return true, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// provisioningTree lays out the directory structure a deployment
// carries: inputs/<org>/ with declarations, plus the admins control
// files.
func provisioningTree(t *testing.T) Paths {
	t.Helper()
	root := t.TempDir()
	paths := Paths{
		ProvisioningDir: root,
		InputsDir:       filepath.Join(root, "inputs"),
		AccountsDir:     filepath.Join(root, "accounts"),
		KioskFile:       filepath.Join(root, "admins", "_kiosk.yaml"),
	}

	writeFile(t, filepath.Join(paths.InputsDir, "astro", "org.yaml"), `Astro:
  - login: vera
    role: Admin
  - login: kim
    role: editor
`)
	writeFile(t, filepath.Join(paths.InputsDir, "astro", "accounts.yaml"), `- login: vera
  password: one
  email: vera@example.org
- login: kim
  password: two
`)
	writeFile(t, filepath.Join(paths.InputsDir, "weather", "org.yaml"), `Weather:
  - login: vera
    role: Viewer
`)
	writeFile(t, paths.KioskFile, `kiosk:
  - login: vera
    role: Viewer
`)
	return paths
}

func newEngine(t *testing.T, fake *fakePlatform, paths Paths) (*Engine, *fakeSyncer, *statestore.MemStore) {
	t.Helper()
	markers := statestore.NewMemStore()
	syncer := newFakeSyncer()
	engine := NewEngine(fake, markers, syncer, paths, "admin", "grafana-admin", testLogger(t))
	return engine, syncer, markers
}

func TestEngine_FirstRunConverges(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	engine, syncer, markers := newEngine(t, fake, paths)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Orgs)
	assert.Equal(t, 2, report.AccountsResolved)
	// vera+kim in Astro, vera in Weather, vera in the kiosk org.
	assert.Equal(t, 4, report.Members.Invited)
	assert.Zero(t, report.Members.Patched)
	assert.Equal(t, 2, report.OrgsModified)
	assert.True(t, report.RestartRequested)
	assert.FileExists(t, filepath.Join(paths.ProvisioningDir, "restart.txt"))

	for _, org := range []string{"Astro", "Weather"} {
		exists, err := markers.Exists(org)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Contains(t, fake.orgsByName, org)
	}

	// Resource sync ran once per org, by org name.
	assert.Equal(t, []string{"Astro", "Weather"}, syncer.calls)

	// The account declaration is linked under the org's name.
	link := filepath.Join(paths.AccountsDir, "Astro_accounts.yaml")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(paths.InputsDir, "astro", "accounts.yaml"), target)
}

func TestEngine_SecondRunIsIdempotent(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	engine, _, _ := newEngine(t, fake, paths)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(paths.ProvisioningDir, "restart.txt")))

	fake.mutations = nil
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Members.Invited)
	assert.Zero(t, report.Members.Patched)
	assert.Zero(t, report.OrgsModified)
	assert.False(t, report.RestartRequested)
	assert.Zero(t, fake.mutationCount(), "converged runs must not mutate the platform")
	assert.NoFileExists(t, filepath.Join(paths.ProvisioningDir, "restart.txt"))
}

func TestEngine_ValidationFailureAbortsBeforeRemoteCalls(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	writeFile(t, filepath.Join(paths.InputsDir, "broken", "org.yaml"), `Broken:
  - login: eve
    role: Overlord
`)
	engine, syncer, _ := newEngine(t, fake, paths)

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
	assert.Zero(t, fake.mutationCount(), "validation must complete before any remote call")
	assert.Empty(t, syncer.calls)
}

func TestEngine_DuplicateOrgAcrossDirsFails(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	writeFile(t, filepath.Join(paths.InputsDir, "astro2", "org.yaml"), `Astro:
  - login: vera
    role: Admin
`)
	engine, _, _ := newEngine(t, fake, paths)

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, fake.mutationCount())
}

func TestEngine_KioskMembershipsReconciled(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	engine, _, _ := newEngine(t, fake, paths)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	vera, ok := fake.userByLogin("vera")
	require.True(t, ok)
	assert.Equal(t, "Viewer", fake.memberships[1][vera.ID])
}

func TestEngine_MissingKioskFileIsLegal(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	require.NoError(t, os.Remove(paths.KioskFile))
	engine, _, _ := newEngine(t, fake, paths)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
}

func TestEngine_HiddenInputDirsIgnored(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	writeFile(t, filepath.Join(paths.InputsDir, ".archive", "org.yaml"), "not yaml at all {{{")
	engine, _, _ := newEngine(t, fake, paths)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Orgs)
}

func TestEngine_BrokenAccountLinkIsReplaced(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	require.NoError(t, os.MkdirAll(paths.AccountsDir, 0o755))
	link := filepath.Join(paths.AccountsDir, "Astro_accounts.yaml")
	require.NoError(t, os.Symlink(filepath.Join(paths.InputsDir, "gone", "accounts.yaml"), link))
	engine, _, _ := newEngine(t, fake, paths)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(paths.InputsDir, "astro", "accounts.yaml"), target)
}

func TestEngine_OrgFailureLeavesEarlierOrgsApplied(t *testing.T) {
	fake := newFakePlatform()
	paths := provisioningTree(t)
	engine, _, markers := newEngine(t, fake, paths)

	// Pre-set the Weather marker without a remote org: Astro (sorted
	// first) converges, Weather aborts the run.
	require.NoError(t, markers.Set("Weather"))

	_, err := engine.Run(context.Background())
	require.Error(t, err)

	assert.Contains(t, fake.orgsByName, "Astro")
	assert.NotContains(t, fake.orgsByName, "Weather")
}

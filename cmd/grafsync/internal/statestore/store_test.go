// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statestore

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*SymlinkStore, string) {
	t.Helper()
	root := t.TempDir()
	inputs := filepath.Join(root, "inputs")
	if err := os.MkdirAll(inputs, 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := NewSymlinkStore(filepath.Join(root, "orgs"), "_org.yaml",
		func(key string) string {
			return filepath.Join(inputs, key, "org.yaml")
		})
	if err != nil {
		t.Fatalf("NewSymlinkStore() = %v", err)
	}
	return store, inputs
}

func TestSymlinkStore_SetExistsUnset(t *testing.T) {
	store, inputs := newTestStore(t)

	// Target file exists.
	orgDir := filepath.Join(inputs, "Astro")
	if err := os.MkdirAll(orgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(orgDir, "org.yaml"), []byte("Astro: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if ok, err := store.Exists("Astro"); err != nil || ok {
		t.Fatalf("Exists() before Set = %v, %v; want false, nil", ok, err)
	}

	if err := store.Set("Astro"); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if ok, err := store.Exists("Astro"); err != nil || !ok {
		t.Fatalf("Exists() after Set = %v, %v; want true, nil", ok, err)
	}

	// The marker is a symlink pointing at the declaration file.
	target, err := os.Readlink(store.Path("Astro"))
	if err != nil {
		t.Fatalf("marker is not a symlink: %v", err)
	}
	if target != filepath.Join(orgDir, "org.yaml") {
		t.Errorf("marker target = %q, want the org declaration", target)
	}

	if err := store.Unset("Astro"); err != nil {
		t.Fatalf("Unset() = %v", err)
	}
	if ok, _ := store.Exists("Astro"); ok {
		t.Error("Exists() after Unset = true, want false")
	}
}

func TestSymlinkStore_DanglingLinkStillExists(t *testing.T) {
	store, _ := newTestStore(t)

	// Set with a target that does not exist: the marker asserts remote
	// state, not input health.
	if err := store.Set("Ghost"); err != nil {
		t.Fatalf("Set() with dangling target = %v", err)
	}
	if ok, err := store.Exists("Ghost"); err != nil || !ok {
		t.Fatalf("Exists() on dangling marker = %v, %v; want true, nil", ok, err)
	}
}

func TestSymlinkStore_SetReplacesStaleLink(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Set("Astro"); err != nil {
		t.Fatal(err)
	}
	// A second Set must not fail on the existing link.
	if err := store.Set("Astro"); err != nil {
		t.Fatalf("Set() over existing marker = %v", err)
	}
}

func TestSymlinkStore_UnsetMissingIsNoError(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Unset("NeverSet"); err != nil {
		t.Errorf("Unset() on missing marker = %v, want nil", err)
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	if ok, _ := s.Exists("a"); ok {
		t.Error("new MemStore should be empty")
	}
	if err := s.Set("a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("a"); !ok {
		t.Error("Exists() after Set = false")
	}
	if err := s.Unset("a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("a"); ok {
		t.Error("Exists() after Unset = true")
	}
	if err := s.Unset("a"); err != nil {
		t.Errorf("Unset() twice = %v, want nil", err)
	}
}

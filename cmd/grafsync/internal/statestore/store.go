// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package statestore persists boolean existence facts about remote
objects.

The provisioner never asks Grafana "does this organization exist"
before acting: that would cost a round-trip per org per run, and the
answer still couldn't be trusted across the create call. Instead a
local marker is the single source of truth for "this org has been
created remotely". The marker must appear and disappear in lockstep
with successful remote creation; the org lifecycle controller owns
that choreography and this package only provides the facts.

Store is a deliberately narrow key-value interface so the filesystem
realization can be swapped for a database or object-store record
without touching reconciliation logic. Two implementations ship:

  - SymlinkStore: a symlink per key that points at the org's own
    declaration file. The side effect is the point: the symlink
    directory doubles as the aggregator's scan source, so marking an
    org as provisioned is what publishes its declaration.
  - MemStore: in-memory, for tests.
*/
package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists one boolean fact per key.
type Store interface {
	// Exists reports whether the fact for key is set.
	Exists(key string) (bool, error)

	// Set records the fact for key.
	Set(key string) error

	// Unset removes the fact for key. Removing an absent fact is not
	// an error.
	Unset(key string) error
}

// -----------------------------------------------------------------------------
// SymlinkStore
// -----------------------------------------------------------------------------

// SymlinkStore realizes each fact as a symlink in a directory.
//
// The link for key is "<dir>/<key><suffix>" and points at the path
// returned by target(key). A dangling link still counts as an existing
// fact: the marker asserts remote state, not the health of the input
// tree.
type SymlinkStore struct {
	dir    string
	suffix string
	target func(key string) string
}

// NewSymlinkStore creates a SymlinkStore rooted at dir.
//
// # Inputs
//
//   - dir: directory holding the marker links; created if missing
//   - suffix: appended to the key to form the link name,
//     e.g. "_org.yaml"
//   - target: maps a key to the file the link should point at
func NewSymlinkStore(dir, suffix string, target func(key string) string) (*SymlinkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating marker directory %s: %w", dir, err)
	}
	return &SymlinkStore{dir: dir, suffix: suffix, target: target}, nil
}

// Path returns the marker path for key, for operator-facing messages.
func (s *SymlinkStore) Path(key string) string {
	return filepath.Join(s.dir, key+s.suffix)
}

// Exists reports whether the marker link for key is present, dangling
// or not.
func (s *SymlinkStore) Exists(key string) (bool, error) {
	_, err := os.Lstat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Set creates the marker link for key. A stale or dangling link at the
// same path is replaced.
func (s *SymlinkStore) Set(key string) error {
	link := s.Path(key)
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("replacing marker %s: %w", link, err)
		}
	}
	if err := os.Symlink(s.target(key), link); err != nil {
		return fmt.Errorf("creating marker %s: %w", link, err)
	}
	return nil
}

// Unset removes the marker link for key.
func (s *SymlinkStore) Unset(key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing marker %s: %w", s.Path(key), err)
	}
	return nil
}

var _ Store = (*SymlinkStore)(nil)

// -----------------------------------------------------------------------------
// MemStore
// -----------------------------------------------------------------------------

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.Mutex
	facts map[string]bool
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{facts: make(map[string]bool)}
}

// Exists reports whether the fact for key is set.
func (s *MemStore) Exists(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facts[key], nil
}

// Set records the fact for key.
func (s *MemStore) Set(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[key] = true
	return nil
}

// Unset removes the fact for key.
func (s *MemStore) Unset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.facts, key)
	return nil
}

var _ Store = (*MemStore)(nil)

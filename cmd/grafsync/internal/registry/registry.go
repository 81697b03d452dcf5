// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package registry aggregates the declarative configuration tree into a
single validated desired-state model.

# Problem Statement

Organization and account declarations are scattered across many YAML
files, one organization per file and one account list per file. The
Grafana API offers no transactions, so a malformed or conflicting
declaration discovered halfway through a run would leave remote state
partially mutated. All validation therefore has to complete for the
whole tree before the first remote call is made.

# Solution

Load walks both declaration directories, merges everything into a
Registry and fails fast on:

  - an org file containing zero or more than one organization
  - the same organization name declared in two files
  - the same account login declared in two account files
  - a role string outside {Admin, Editor, Viewer}
  - an account failing field validation (missing login, bad email)

Files whose name starts with '_' are control files (kiosk and super
admin declarations) and are excluded from the scan.

The Registry itself performs no I/O beyond reading the declaration
files and makes no remote calls; it is the pure "compute desired
state" half of the pipeline.
*/
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// ValidationError reports a fatal problem in the declaration tree.
//
// Validation errors abort the run before any remote mutation. The File
// field identifies the offending declaration so the operator knows what
// to fix.
type ValidationError struct {
	// File is the declaration file that triggered the error.
	File string

	// Msg describes what is wrong.
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// Member is one declared (login, role) pair inside an organization.
type Member struct {
	Login string `yaml:"login"`
	Role  Role   `yaml:"-"`

	// RawRole is the role string as written in the declaration; it is
	// canonicalized into Role during Load.
	RawRole string `yaml:"role"`
}

// Account is a declared Grafana user account.
//
// Login is the identity: it must be unique across the whole
// configuration tree even though the account may be a member of several
// organizations.
type Account struct {
	Login    string `yaml:"login" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email" validate:"omitempty,email"`
}

// Warning is a non-fatal configuration problem. The affected entry is
// skipped and the run continues.
type Warning struct {
	// Login is the account the warning is about.
	Login string

	// Msg describes why the entry was skipped.
	Msg string
}

// Registry is the validated desired state for one provisioning run.
type Registry struct {
	// Orgs maps organization name to its declared member list, in
	// declaration order.
	Orgs map[string][]Member

	// Accounts is the merged account list from every account file.
	Accounts []Account

	// orgFiles remembers which file declared each org, for error
	// messages and duplicate detection.
	orgFiles map[string]string
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

var validate = validator.New()

// Load builds a Registry from the orgs and accounts declaration
// directories.
//
// # Description
//
// Scans both directories for "*.yaml" files, skipping names that start
// with '_'. Every file is parsed and validated before Load returns, so
// a single malformed file aborts the whole run with no partial state.
//
// # Inputs
//
//   - orgsDir: directory of org declarations, one org per file
//   - accountsDir: directory of account-list declarations
//
// # Outputs
//
//   - *Registry: the merged desired state
//   - error: *ValidationError for declaration problems, or the
//     underlying I/O or YAML error
func Load(orgsDir, accountsDir string) (*Registry, error) {
	orgFiles, err := scanYAML(orgsDir)
	if err != nil {
		return nil, err
	}
	accountFiles, err := scanYAML(accountsDir)
	if err != nil {
		return nil, err
	}
	return LoadFiles(orgFiles, accountFiles)
}

// LoadFiles is Load for callers that assemble the file lists themselves,
// such as the engine walking per-org input directories. Validation rules
// are identical.
func LoadFiles(orgFiles, accountFiles []string) (*Registry, error) {
	r := &Registry{
		Orgs:     make(map[string][]Member),
		orgFiles: make(map[string]string),
	}

	for _, file := range orgFiles {
		if err := r.loadOrgFile(file); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]string) // login -> file
	for _, file := range accountFiles {
		if err := r.loadAccountFile(file, seen); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// LoadOrgDeclaration parses a single org declaration file and returns
// the org name and member list. Used both by Load and by the engine
// when it walks per-org input directories.
func LoadOrgDeclaration(file string) (string, []Member, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", nil, err
	}

	var decl map[string][]Member
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return "", nil, &ValidationError{File: file, Msg: fmt.Sprintf("invalid YAML: %v", err)}
	}

	if len(decl) != 1 {
		return "", nil, &ValidationError{
			File: file,
			Msg:  fmt.Sprintf("there must be exactly 1 org in the file and %d were found", len(decl)),
		}
	}

	var name string
	var members []Member
	for k, v := range decl {
		name, members = k, v
	}

	for i := range members {
		role, err := ParseRole(members[i].RawRole)
		if err != nil {
			return "", nil, &ValidationError{
				File: file,
				Msg:  fmt.Sprintf("member %q: %v", members[i].Login, err),
			}
		}
		members[i].Role = role
	}

	return name, members, nil
}

func (r *Registry) loadOrgFile(file string) error {
	name, members, err := LoadOrgDeclaration(file)
	if err != nil {
		return err
	}

	if prev, dup := r.orgFiles[name]; dup {
		return &ValidationError{
			File: file,
			Msg:  fmt.Sprintf("duplicate organization %q, already declared in %s", name, prev),
		}
	}
	r.orgFiles[name] = file
	r.Orgs[name] = members
	return nil
}

func (r *Registry) loadAccountFile(file string, seen map[string]string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	var accounts []Account
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return &ValidationError{File: file, Msg: fmt.Sprintf("invalid YAML: %v", err)}
	}

	// An empty account file is legal: the org may only reference
	// accounts provisioned elsewhere.
	for _, acct := range accounts {
		if err := validate.Struct(acct); err != nil {
			return &ValidationError{
				File: file,
				Msg:  fmt.Sprintf("account %q: %v", acct.Login, err),
			}
		}
		if prev, dup := seen[acct.Login]; dup {
			return &ValidationError{
				File: file,
				Msg:  fmt.Sprintf("duplicate user %q, already declared in %s", acct.Login, prev),
			}
		}
		seen[acct.Login] = file
		r.Accounts = append(r.Accounts, acct)
	}
	return nil
}

// Source returns the file that declared the named org, or "" when the
// org is unknown. The engine uses it to locate the org's input
// directory.
func (r *Registry) Source(org string) string {
	return r.orgFiles[org]
}

// OrgNames returns the declared organization names, sorted.
func (r *Registry) OrgNames() []string {
	names := make([]string, 0, len(r.Orgs))
	for name := range r.Orgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scanYAML lists "*.yaml" files in dir, excluding the '_'-prefixed
// control files. Symlinked declarations are followed.
func scanYAML(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// -----------------------------------------------------------------------------
// Membership Deduplication
// -----------------------------------------------------------------------------

// DedupeMembers removes repeated logins from a declared member list.
//
// # Description
//
// Within one organization a login may legitimately appear only once;
// repeats are configuration errors. The first occurrence wins and each
// later occurrence produces a non-fatal warning, keeping the
// convergence loop itself free of duplicate handling.
//
// # Inputs
//
//   - members: the declared member list, in declaration order
//
// # Outputs
//
//   - clean: the deduplicated list, declaration order preserved
//   - warnings: one entry per skipped duplicate
func DedupeMembers(members []Member) (clean []Member, warnings []Warning) {
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m.Login] {
			warnings = append(warnings, Warning{
				Login: m.Login,
				Msg:   "declared more than once in this organization; only the first entry is used",
			})
			continue
		}
		seen[m.Login] = true
		clean = append(clean, m)
	}
	return clean, warnings
}

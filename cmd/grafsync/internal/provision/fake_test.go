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
	"strings"

	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/grafana"
)

// fakePlatform is an in-memory Grafana for exercising the convergence
// logic without a network. It mimics the API behaviors the engine
// relies on: fuzzy user search, auto-join of new users to the default
// org, and auto-join of the creating user to a new org.
type fakePlatform struct {
	users       map[int64]*grafana.User
	nextUserID  int64
	orgsByName  map[string]int64
	nextOrgID   int64
	memberships map[int64]map[int64]string // orgID -> userID -> role
	contextOrg  map[int64]int64

	// apiUserID is the account the provisioner runs as; CreateOrg
	// auto-joins it like Grafana does.
	apiUserID int64

	// mutations records every state-changing call, verb first, for
	// idempotence assertions.
	mutations []string

	failCreateOrg  bool
	failOrgByName  bool
	failCreateUser bool
}

// newFakePlatform seeds the two accounts every installation has: the
// primary admin (id 1) and the provisioner's API account (id 2).
func newFakePlatform() *fakePlatform {
	f := &fakePlatform{
		users:       make(map[int64]*grafana.User),
		nextUserID:  3,
		orgsByName:  map[string]int64{"Main Org.": grafana.DefaultOrgID},
		nextOrgID:   2,
		memberships: map[int64]map[int64]string{grafana.DefaultOrgID: {}},
		contextOrg:  make(map[int64]int64),
		apiUserID:   2,
	}
	f.users[1] = &grafana.User{ID: 1, Login: "admin"}
	f.users[2] = &grafana.User{ID: 2, Login: "grafana-admin"}
	f.memberships[grafana.DefaultOrgID][1] = "Admin"
	f.memberships[grafana.DefaultOrgID][2] = "Admin"
	return f
}

func (f *fakePlatform) record(format string, args ...any) {
	f.mutations = append(f.mutations, fmt.Sprintf(format, args...))
}

func (f *fakePlatform) mutationCount() int { return len(f.mutations) }

func (f *fakePlatform) userByLogin(login string) (*grafana.User, bool) {
	for _, u := range f.users {
		if u.Login == login {
			return u, true
		}
	}
	return nil, false
}

// ----------------------------------------------------------------------
// Platform implementation
// ----------------------------------------------------------------------

func (f *fakePlatform) SearchUsers(_ context.Context, query string) ([]grafana.User, error) {
	var hits []grafana.User
	for _, u := range f.users {
		if strings.Contains(u.Login, query) || strings.Contains(u.Email, query) {
			hits = append(hits, *u)
		}
	}
	return hits, nil
}

func (f *fakePlatform) LookupUser(_ context.Context, loginOrEmail string) (grafana.User, error) {
	if u, ok := f.userByLogin(loginOrEmail); ok {
		return *u, nil
	}
	return grafana.User{}, &grafana.APIError{StatusCode: 404, Method: "GET", Path: "/api/users/lookup"}
}

func (f *fakePlatform) CreateUser(_ context.Context, user grafana.NewUser) (int64, error) {
	if f.failCreateUser {
		return 0, &grafana.APIError{StatusCode: 500, Method: "POST", Path: "/api/admin/users"}
	}
	if _, ok := f.userByLogin(user.Login); ok {
		return 0, &grafana.APIError{StatusCode: 412, Method: "POST", Path: "/api/admin/users"}
	}
	id := f.nextUserID
	f.nextUserID++
	f.users[id] = &grafana.User{ID: id, Login: user.Login, Name: user.Name, Email: user.Email}
	// Grafana auto-joins new users to the default org as Viewer.
	f.memberships[grafana.DefaultOrgID][id] = "Viewer"
	f.record("create-user %s", user.Login)
	return id, nil
}

func (f *fakePlatform) RemoveUserFromOrg(_ context.Context, orgID, userID int64) error {
	members, ok := f.memberships[orgID]
	if !ok {
		return &grafana.APIError{StatusCode: 404, Method: "DELETE", Path: "/api/orgs"}
	}
	delete(members, userID)
	f.record("remove-member org=%d user=%d", orgID, userID)
	return nil
}

func (f *fakePlatform) UserOrgs(_ context.Context, userID int64) ([]grafana.UserOrg, error) {
	var orgs []grafana.UserOrg
	for orgID, members := range f.memberships {
		if role, ok := members[userID]; ok {
			orgs = append(orgs, grafana.UserOrg{OrgID: orgID, Role: role})
		}
	}
	return orgs, nil
}

func (f *fakePlatform) AddUserToOrg(_ context.Context, orgID int64, loginOrEmail, role string) error {
	u, ok := f.userByLogin(loginOrEmail)
	if !ok {
		return &grafana.APIError{StatusCode: 404, Method: "POST", Path: "/api/orgs"}
	}
	f.memberships[orgID][u.ID] = role
	f.record("add-member org=%d user=%s role=%s", orgID, loginOrEmail, role)
	return nil
}

func (f *fakePlatform) UpdateUserRole(_ context.Context, orgID, userID int64, role string) error {
	members, ok := f.memberships[orgID]
	if !ok {
		return &grafana.APIError{StatusCode: 404, Method: "PATCH", Path: "/api/orgs"}
	}
	members[userID] = role
	f.record("patch-role org=%d user=%d role=%s", orgID, userID, role)
	return nil
}

func (f *fakePlatform) SwitchUserOrg(_ context.Context, userID, orgID int64) error {
	f.contextOrg[userID] = orgID
	f.record("switch-org user=%d org=%d", userID, orgID)
	return nil
}

func (f *fakePlatform) CreateOrg(_ context.Context, name string) (int64, error) {
	if f.failCreateOrg {
		return 0, &grafana.APIError{StatusCode: 500, Method: "POST", Path: "/api/orgs"}
	}
	if _, ok := f.orgsByName[name]; ok {
		return 0, &grafana.APIError{StatusCode: 409, Method: "POST", Path: "/api/orgs"}
	}
	id := f.nextOrgID
	f.nextOrgID++
	f.orgsByName[name] = id
	// The creating user is auto-joined as Admin.
	f.memberships[id] = map[int64]string{f.apiUserID: "Admin"}
	f.record("create-org %s", name)
	return id, nil
}

func (f *fakePlatform) OrgByName(_ context.Context, name string) (grafana.Org, error) {
	if f.failOrgByName {
		return grafana.Org{}, &grafana.APIError{StatusCode: 404, Method: "GET", Path: "/api/orgs/name"}
	}
	id, ok := f.orgsByName[name]
	if !ok {
		return grafana.Org{}, &grafana.APIError{StatusCode: 404, Method: "GET", Path: "/api/orgs/name"}
	}
	return grafana.Org{ID: id, Name: name}, nil
}

var _ Platform = (*fakePlatform)(nil)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grafana

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// User is a Grafana user account as returned by the search and lookup
// endpoints.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserOrg is one organization membership of a user.
type UserOrg struct {
	OrgID int64  `json:"orgId"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// NewUser is the payload for account creation.
type NewUser struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// UserUpdate is the payload for updating an existing user's profile.
// Empty fields are omitted and left unchanged by Grafana.
type UserUpdate struct {
	Login string `json:"login,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Theme string `json:"theme,omitempty"`
}

// SearchUsers performs Grafana's fuzzy account search.
//
// # Description
//
// The query matches substrings of login, email and name. This is the
// only account lookup that does not 404 on a miss, which is why the
// resolver uses it and filters for an exact login match afterwards.
// The default page size of 1000 is far beyond any realistic match set
// for a login query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	path := "/api/users/search?query=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// LookupUser fetches a user by exact login or email.
//
// Unlike SearchUsers this endpoint returns 404 when the user does not
// exist. Note Grafana's historical quirk: if no login matches but some
// other user's email equals the query, that user is returned.
func (c *Client) LookupUser(ctx context.Context, loginOrEmail string) (User, error) {
	var u User
	path := "/api/users/lookup?loginOrEmail=" + url.QueryEscape(loginOrEmail)
	if err := c.do(ctx, http.MethodGet, path, nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateUser creates an account and returns its id.
//
// Grafana auto-joins new accounts to the default organization; callers
// that do not want that membership must remove it themselves (see
// RemoveUserFromOrg).
func (c *Client) CreateUser(ctx context.Context, user NewUser) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/admin/users", user, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// SetGrafanaAdmin sets or clears the server-wide admin flag on a user.
func (c *Client) SetGrafanaAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	body := map[string]bool{"isGrafanaAdmin": isAdmin}
	path := fmt.Sprintf("/api/admin/users/%d/permissions", userID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// ChangeUserPassword sets a user's password (admin-assisted).
func (c *Client) ChangeUserPassword(ctx context.Context, userID int64, newPassword string) error {
	body := map[string]string{"password": newPassword}
	path := fmt.Sprintf("/api/admin/users/%d/password", userID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// UpdateUser updates a user's login, name, email or theme.
func (c *Client) UpdateUser(ctx context.Context, userID int64, update UserUpdate) error {
	path := fmt.Sprintf("/api/users/%d", userID)
	return c.do(ctx, http.MethodPut, path, update, nil)
}

// UserOrgs lists the organizations a user belongs to, with roles.
func (c *Client) UserOrgs(ctx context.Context, userID int64) ([]UserOrg, error) {
	var orgs []UserOrg
	path := fmt.Sprintf("/api/users/%d/orgs", userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// SwitchUserOrg sets a user's active context organization.
func (c *Client) SwitchUserOrg(ctx context.Context, userID, orgID int64) error {
	path := fmt.Sprintf("/api/users/%d/using/%d", userID, orgID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

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

// DefaultOrgID is the id of the organization that ships with a fresh
// Grafana installation. New accounts are auto-joined to it.
const DefaultOrgID int64 = 1

// Org is a Grafana organization.
type Org struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateOrg creates an organization and returns its id.
//
// This is creation only: Grafana also auto-joins the calling account to
// the new org, and the caller is responsible for cleaning that up. The
// full create-and-configure sequence lives in the provision package.
func (c *Client) CreateOrg(ctx context.Context, name string) (int64, error) {
	var resp struct {
		OrgID int64 `json:"orgId"`
	}
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/orgs", body, &resp); err != nil {
		return 0, err
	}
	return resp.OrgID, nil
}

// OrgByName looks up an organization id by its exact name.
func (c *Client) OrgByName(ctx context.Context, name string) (Org, error) {
	var org Org
	path := "/api/orgs/name/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &org); err != nil {
		return Org{}, err
	}
	return org, nil
}

// Orgs lists every organization on the instance.
func (c *Client) Orgs(ctx context.Context) ([]Org, error) {
	var orgs []Org
	if err := c.do(ctx, http.MethodGet, "/api/orgs", nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// UpdateOrg renames an organization.
func (c *Client) UpdateOrg(ctx context.Context, orgID int64, name string) error {
	body := map[string]string{"name": name}
	path := fmt.Sprintf("/api/orgs/%d", orgID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// AddUserToOrg adds a user to an organization with the given role.
func (c *Client) AddUserToOrg(ctx context.Context, orgID int64, loginOrEmail, role string) error {
	body := map[string]string{"loginOrEmail": loginOrEmail, "role": role}
	path := fmt.Sprintf("/api/orgs/%d/users", orgID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// UpdateUserRole patches a user's role inside an organization.
func (c *Client) UpdateUserRole(ctx context.Context, orgID, userID int64, role string) error {
	body := map[string]string{"role": role}
	path := fmt.Sprintf("/api/orgs/%d/users/%d", orgID, userID)
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// RemoveUserFromOrg removes a user's membership in an organization.
//
// Used to take new accounts out of the default organization and to take
// the API service account out of organizations it just created.
func (c *Client) RemoveUserFromOrg(ctx context.Context, orgID, userID int64) error {
	path := fmt.Sprintf("/api/orgs/%d/users/%d", orgID, userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

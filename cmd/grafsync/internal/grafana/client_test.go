// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grafana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedRequest captures what the fake Grafana server received.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
	User   string
	Pass   string
}

// newTestServer returns a server that replies with status and payload,
// recording every request into the returned slice.
func newTestServer(t *testing.T, status int, payload string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
		}
		rec.User, rec.Pass, _ = r.BasicAuth()
		if r.Body != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rec.Body = body
			}
		}
		reqs = append(reqs, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestClient_BasicAuthHeader(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, "apiuser", "apipass", time.Second)

	_, err := c.Orgs(context.Background())
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	assert.Equal(t, "apiuser", (*reqs)[0].User)
	assert.Equal(t, "apipass", (*reqs)[0].Pass)
}

func TestClient_APIErrorOmitsCredentials(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusForbidden, `{"message":"permission denied"}`)
	c := New(srv.URL, "apiuser", "topsecret", time.Second)

	_, err := c.OrgByName(context.Background(), "Astro")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "want *APIError, got %T", err)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, http.MethodGet, apiErr.Method)
	assert.Equal(t, "/api/orgs/name/Astro", apiErr.Path)

	msg := err.Error()
	assert.Equal(t, `403 | GET | /api/orgs/name/Astro | {"message":"permission denied"}`, msg)
	assert.NotContains(t, msg, "apiuser")
	assert.NotContains(t, msg, "topsecret")
}

func TestSearchUsers(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK,
		`{"users":[{"id":7,"login":"alice","email":"alice@example.org","name":"Alice"}]}`)
	c := New(srv.URL, "u", "p", time.Second)

	users, err := c.SearchUsers(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(7), users[0].ID)
	assert.Equal(t, "alice", users[0].Login)

	assert.Equal(t, "/api/users/search", (*reqs)[0].Path)
	assert.Equal(t, "query=alice", (*reqs)[0].Query)
}

func TestCreateUser(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `{"id":42,"message":"User created"}`)
	c := New(srv.URL, "u", "p", time.Second)

	id, err := c.CreateUser(context.Background(), NewUser{
		Login:    "bob",
		Password: "hunter2",
		Email:    "bob@example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/admin/users", req.Path)
	assert.Equal(t, "bob", req.Body["login"])
	assert.Equal(t, "hunter2", req.Body["password"])
}

func TestCreateOrg(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `{"orgId":5,"message":"Organization created"}`)
	c := New(srv.URL, "u", "p", time.Second)

	id, err := c.CreateOrg(context.Background(), "Astro")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, "Astro", (*reqs)[0].Body["name"])
}

func TestOrgByName_EscapesName(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `{"id":3,"name":"Deep Space"}`)
	c := New(srv.URL, "u", "p", time.Second)

	org, err := c.OrgByName(context.Background(), "Deep Space")
	require.NoError(t, err)
	assert.Equal(t, int64(3), org.ID)
	// httptest decodes the escaped segment back to the raw name.
	assert.Equal(t, "/api/orgs/name/Deep Space", (*reqs)[0].Path)
}

func TestUserOrgs(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK,
		`[{"orgId":2,"name":"Astro","role":"Viewer"},{"orgId":3,"name":"Geo","role":"Admin"}]`)
	c := New(srv.URL, "u", "p", time.Second)

	orgs, err := c.UserOrgs(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Viewer", orgs[0].Role)
	assert.Equal(t, int64(3), orgs[1].OrgID)
}

func TestMembershipMutations(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		wantVerb string
		wantPath string
	}{
		{
			name: "add user to org",
			call: func(c *Client) error {
				return c.AddUserToOrg(context.Background(), 2, "alice", "Editor")
			},
			wantVerb: http.MethodPost,
			wantPath: "/api/orgs/2/users",
		},
		{
			name: "patch role",
			call: func(c *Client) error {
				return c.UpdateUserRole(context.Background(), 2, 7, "Editor")
			},
			wantVerb: http.MethodPatch,
			wantPath: "/api/orgs/2/users/7",
		},
		{
			name: "remove from org",
			call: func(c *Client) error {
				return c.RemoveUserFromOrg(context.Background(), 2, 7)
			},
			wantVerb: http.MethodDelete,
			wantPath: "/api/orgs/2/users/7",
		},
		{
			name: "switch context org",
			call: func(c *Client) error {
				return c.SwitchUserOrg(context.Background(), 7, 2)
			},
			wantVerb: http.MethodPost,
			wantPath: "/api/users/7/using/2",
		},
		{
			name: "set grafana admin",
			call: func(c *Client) error {
				return c.SetGrafanaAdmin(context.Background(), 7, true)
			},
			wantVerb: http.MethodPut,
			wantPath: "/api/admin/users/7/permissions",
		},
		{
			name: "change password",
			call: func(c *Client) error {
				return c.ChangeUserPassword(context.Background(), 1, "newpass")
			},
			wantVerb: http.MethodPut,
			wantPath: "/api/admin/users/1/password",
		},
		{
			name: "rename org",
			call: func(c *Client) error {
				return c.UpdateOrg(context.Background(), 1, "Kiosk")
			},
			wantVerb: http.MethodPut,
			wantPath: "/api/orgs/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, reqs := newTestServer(t, http.StatusOK, `{"message":"ok"}`)
			c := New(srv.URL, "u", "p", time.Second)

			require.NoError(t, tt.call(c))
			require.Len(t, *reqs, 1)
			assert.Equal(t, tt.wantVerb, (*reqs)[0].Method)
			assert.Equal(t, tt.wantPath, (*reqs)[0].Path)
		})
	}
}

func TestWithCredentials(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, "admin", "admin", time.Second)

	api := c.WithCredentials("api", "apipass")
	_, err := api.Orgs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api", (*reqs)[0].User)

	// Original client is unchanged.
	_, err = c.Orgs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", (*reqs)[1].User)
}

func TestClient_ServerDownError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `[]`)
	url := srv.URL
	srv.Close()

	c := New(url, "u", "secretpass", 200*time.Millisecond)
	_, err := c.Orgs(context.Background())
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "secretpass"),
		"transport error must not contain the password")
}

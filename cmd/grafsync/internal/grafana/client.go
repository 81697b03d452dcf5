// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package grafana is a thin client for the subset of Grafana's HTTP API
that the provisioner uses.

# Problem Statement

Every remote mutation in a provisioning run goes through Grafana's
admin API with basic authentication. The API offers no idempotent
create primitives and no exact "get or 404" account lookup, so the
client must expose the raw operations faithfully and leave convergence
decisions to the caller. Error output has to carry enough context to
diagnose a failed run (status, method, path, response body) without
ever exposing the admin credentials.

# Solution

Client wraps net/http with a uniform per-call timeout and JSON
encoding. Credentials are sent via the Authorization header, never
embedded in URLs, so they cannot leak through error values or logs.
4xx/5xx responses become *APIError values formatted the same way the
run output has always reported them:

	422 | POST | /api/admin/users | {"message":"..."}

There is deliberately no retry logic anywhere in this package: a failed
call is fatal to the current run, which is safe to re-run.
*/
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout matches the historical 5 second per-request limit.
const DefaultTimeout = 5 * time.Second

// -----------------------------------------------------------------------------
// Error Type
// -----------------------------------------------------------------------------

// APIError represents a Grafana API request that returned 4xx or 5xx.
//
// The formatted message contains the status code, HTTP method, request
// path and response body. Credentials are never part of any of those
// four fields.
type APIError struct {
	// StatusCode is the HTTP status returned by Grafana.
	StatusCode int

	// Method is the HTTP method of the failed request.
	Method string

	// Path is the request path, without host or credentials.
	Path string

	// Body is Grafana's response body, usually a JSON error message.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%d | %s | %s | %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client talks to one Grafana instance with one set of credentials.
//
// The zero value is not usable; construct with New. A provisioning run
// is single-threaded, but Client itself is stateless and safe to share.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// New creates a Client for the Grafana instance at baseURL.
//
// # Inputs
//
//   - baseURL: e.g. "http://localhost:3000"; a trailing slash is trimmed
//   - username, password: credentials of the account making API calls
//   - timeout: per-call timeout; <= 0 selects DefaultTimeout
func New(baseURL, username, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithCredentials returns a Client identical to c but authenticating as
// a different account. The bootstrap sequence needs this: it starts as
// the default admin and finishes as the API service account.
func (c *Client) WithCredentials(username, password string) *Client {
	return &Client{
		baseURL:    c.baseURL,
		username:   username,
		password:   password,
		httpClient: c.httpClient,
	}
}

// BaseURL returns the configured Grafana URL.
func (c *Client) BaseURL() string { return c.baseURL }

// do performs one JSON request against the API.
//
// body may be nil. When out is non-nil the response body is decoded
// into it. 4xx/5xx responses return *APIError; the response body is
// read fully so the error message is complete.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request for %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request for %s %s: %w", method, path, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// err may wrap a *url.Error containing the request URL; the URL
		// never contains credentials, so it is safe to propagate.
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
		}
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"fmt"
	"strings"
)

// Role is an organization role in Grafana's canonical capitalization.
type Role string

const (
	// RoleAdmin can manage the organization, its users and resources.
	RoleAdmin Role = "Admin"

	// RoleEditor can create and edit dashboards.
	RoleEditor Role = "Editor"

	// RoleViewer has read-only access.
	RoleViewer Role = "Viewer"
)

// ParseRole canonicalizes a declared role string.
//
// Input is case-insensitive ("viewer", "VIEWER" and "Viewer" are all
// accepted). Anything outside {Admin, Editor, Viewer} is a configuration
// error: roles are never forwarded to Grafana unchecked.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "editor":
		return RoleEditor, nil
	case "viewer":
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("unknown role %q: must be one of Admin, Editor, Viewer", s)
	}
}

// String returns the canonical role string sent to the API.
func (r Role) String() string { return string(r) }

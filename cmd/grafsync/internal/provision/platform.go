// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"context"

	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/grafana"
)

// Platform is the slice of the Grafana API the reconciliation engine
// depends on.
//
// *grafana.Client satisfies it; tests substitute an in-memory fake so
// the convergence logic runs without a network. Keeping the interface
// to exactly the operations the engine performs also documents the
// engine's full remote mutation surface in one place.
type Platform interface {
	SearchUsers(ctx context.Context, query string) ([]grafana.User, error)
	LookupUser(ctx context.Context, loginOrEmail string) (grafana.User, error)
	CreateUser(ctx context.Context, user grafana.NewUser) (int64, error)
	RemoveUserFromOrg(ctx context.Context, orgID, userID int64) error
	UserOrgs(ctx context.Context, userID int64) ([]grafana.UserOrg, error)
	AddUserToOrg(ctx context.Context, orgID int64, loginOrEmail, role string) error
	UpdateUserRole(ctx context.Context, orgID, userID int64, role string) error
	SwitchUserOrg(ctx context.Context, userID, orgID int64) error
	CreateOrg(ctx context.Context, name string) (int64, error)
	OrgByName(ctx context.Context, name string) (grafana.Org, error)
}

var _ Platform = (*grafana.Client)(nil)

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

	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/grafana"
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/registry"
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// Resolver maps declared accounts to their Grafana ids, creating the
// account remotely when no match exists.
type Resolver struct {
	platform Platform
	log      *logging.Logger
}

// NewResolver creates a Resolver.
func NewResolver(platform Platform, log *logging.Logger) *Resolver {
	return &Resolver{platform: platform, log: log}
}

// Resolve returns the Grafana id for one declared account.
//
// # Description
//
// Grafana has no exact "get account or 404" primitive, so Resolve uses
// the fuzzy search (login/email/name substring match) and filters the
// results for an exact login match. If no result matches, the account
// is created and then removed from the default organization, which
// Grafana auto-joins every new account to.
//
// Creation failures (duplicate email, invalid field, permissions) are
// fatal; the run does not retry.
func (r *Resolver) Resolve(ctx context.Context, account registry.Account) (int64, error) {
	users, err := r.platform.SearchUsers(ctx, account.Login)
	if err != nil {
		return 0, fmt.Errorf("searching for account %q: %w", account.Login, err)
	}

	for _, u := range users {
		if u.Login == account.Login {
			r.log.Debug("account already exists", "login", account.Login, "id", u.ID)
			return u.ID, nil
		}
	}

	id, err := r.platform.CreateUser(ctx, grafana.NewUser{
		Login:    account.Login,
		Password: account.Password,
		Name:     account.Name,
		Email:    account.Email,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create user account %q: %w", account.Login, err)
	}

	// New accounts are auto-joined to the default org; that membership
	// must not survive.
	if err := r.platform.RemoveUserFromOrg(ctx, grafana.DefaultOrgID, id); err != nil {
		return 0, fmt.Errorf("removing new account %q from the default org: %w", account.Login, err)
	}

	r.log.Info("created account", "login", account.Login, "id", id)
	return id, nil
}

// ResolveAll resolves every declared account, in order, returning the
// login→id map the membership reconciler consumes. Each login is
// resolved exactly once per run.
func (r *Resolver) ResolveAll(ctx context.Context, accounts []registry.Account) (map[string]int64, error) {
	ids := make(map[string]int64, len(accounts))
	for _, account := range accounts {
		id, err := r.Resolve(ctx, account)
		if err != nil {
			return nil, err
		}
		ids[account.Login] = id
	}
	return ids, nil
}

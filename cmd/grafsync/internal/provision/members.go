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

	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/registry"
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// memberAction is what ensureMember did to converge one membership.
type memberAction int

const (
	actionNone memberAction = iota
	actionInvited
	actionPatched
)

// MemberStats counts the remote mutations a reconciliation performed.
// Two consecutive runs over unchanged state must show Invited == 0 and
// Patched == 0 on the second run.
type MemberStats struct {
	// Invited counts memberships created.
	Invited int

	// Patched counts role changes applied.
	Patched int

	// Unchanged counts memberships already at the declared role.
	Unchanged int

	// Skipped counts declared entries dropped with a warning
	// (unknown login or duplicate declaration).
	Skipped int
}

// MemberReconciler converges an organization's actual member set toward
// its declared set.
type MemberReconciler struct {
	platform Platform
	log      *logging.Logger
}

// NewMemberReconciler creates a MemberReconciler.
func NewMemberReconciler(platform Platform, log *logging.Logger) *MemberReconciler {
	return &MemberReconciler{platform: platform, log: log}
}

// ensureMember makes one (org, user, role) membership hold remotely.
//
// # Description
//
// Fetches the user's current org memberships and converges:
//
//   - no membership in orgID: invite with the declared role, then set
//     orgID as the user's active context organization
//   - membership with a different role: patch the role
//   - membership with the declared role: no-op
//
// The declared role is already canonical (registry.ParseRole ran at
// aggregation time), so comparison against Grafana's capitalization is
// exact. A remote role outside the canonical set simply compares as
// different and is patched back to the declared value.
func (m *MemberReconciler) ensureMember(ctx context.Context, orgID, userID int64, login string, role registry.Role) (memberAction, error) {
	orgs, err := m.platform.UserOrgs(ctx, userID)
	if err != nil {
		return actionNone, fmt.Errorf("listing org memberships of %q: %w", login, err)
	}

	var current string
	var member bool
	for _, o := range orgs {
		if o.OrgID == orgID {
			current, member = o.Role, true
			break
		}
	}

	switch {
	case !member:
		if err := m.platform.AddUserToOrg(ctx, orgID, login, role.String()); err != nil {
			return actionNone, fmt.Errorf("adding %q to org %d: %w", login, orgID, err)
		}
		if err := m.platform.SwitchUserOrg(ctx, userID, orgID); err != nil {
			return actionNone, fmt.Errorf("setting context org for %q: %w", login, err)
		}
		m.log.Info("invited member", "login", login, "org_id", orgID, "role", role)
		return actionInvited, nil
	case current != role.String():
		if err := m.platform.UpdateUserRole(ctx, orgID, userID, role.String()); err != nil {
			return actionNone, fmt.Errorf("patching role of %q in org %d: %w", login, orgID, err)
		}
		m.log.Info("patched member role", "login", login, "org_id", orgID,
			"from", current, "to", role)
		return actionPatched, nil
	default:
		m.log.Debug("membership up to date", "login", login, "org_id", orgID, "role", role)
		return actionNone, nil
	}
}

// Reconcile applies an organization's declared member list.
//
// # Description
//
// The declared list is first deduplicated (first occurrence wins, later
// duplicates warn). Each remaining (login, role) pair is applied via
// ensureMember, in declaration order. A login missing from the resolved
// account map is a configuration warning, not an error: the entry is
// skipped and the rest of the organization still converges.
//
// # Inputs
//
//   - orgID: resolved id of the organization
//   - members: declared member list, declaration order
//   - logins: login→id map produced by Resolver.ResolveAll
//
// # Outputs
//
//   - MemberStats: mutation counts for the organization
//   - error: first fatal API error, if any
func (m *MemberReconciler) Reconcile(ctx context.Context, orgID int64, members []registry.Member, logins map[string]int64) (MemberStats, error) {
	var stats MemberStats

	clean, warnings := registry.DedupeMembers(members)
	for _, w := range warnings {
		stats.Skipped++
		m.log.Warn("duplicate membership entry", "login", w.Login, "org_id", orgID, "detail", w.Msg)
	}

	for _, member := range clean {
		userID, ok := logins[member.Login]
		if !ok {
			stats.Skipped++
			m.log.Warn("membership references unknown account",
				"login", member.Login, "org_id", orgID,
				"detail", "account not found in the configuration files; entry skipped")
			continue
		}

		action, err := m.ensureMember(ctx, orgID, userID, member.Login, member.Role)
		if err != nil {
			return stats, err
		}
		switch action {
		case actionInvited:
			stats.Invited++
		case actionPatched:
			stats.Patched++
		default:
			stats.Unchanged++
		}
	}
	return stats, nil
}

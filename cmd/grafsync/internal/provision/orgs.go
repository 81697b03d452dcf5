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
	"github.com/AleutianAI/grafsync/cmd/grafsync/internal/statestore"
	"github.com/AleutianAI/grafsync/pkg/logging"
)

// InconsistencyError reports that the local existence marker and the
// remote platform disagree about an organization.
//
// This is never auto-healed: deleting and recreating remote objects on
// a hunch is exactly the kind of silent duplication the marker exists
// to prevent. The operator has to decide which side is right.
type InconsistencyError struct {
	// Org is the organization name.
	Org string

	// Marker describes the local marker (path for the symlink store).
	Marker string

	// Cause is the failed remote lookup.
	Cause error
}

// Error implements the error interface.
func (e *InconsistencyError) Error() string {
	return fmt.Sprintf(
		"existence marker for org %q is present but Grafana does not know the org: %v. "+
			"If the org was deleted from Grafana on purpose, delete the marker %q manually; "+
			"otherwise repair the org in Grafana before the next run",
		e.Org, e.Cause, e.Marker)
}

// Unwrap exposes the remote lookup error.
func (e *InconsistencyError) Unwrap() error { return e.Cause }

// OrgController decides per organization whether it must be created
// remotely and sequences creation plus initial membership seeding.
type OrgController struct {
	platform Platform
	markers  statestore.Store
	members  *MemberReconciler
	log      *logging.Logger

	// primaryAdminLogin is the login of Grafana's main admin account
	// (user id 1), added to every new org with the Admin role.
	primaryAdminLogin string

	// apiLogin is the service account the provisioner authenticates
	// as. Grafana auto-joins it to every org it creates; that
	// membership is removed.
	apiLogin string

	// markerPath renders a marker key as an operator-facing location
	// for error messages. Optional; defaults to the key itself.
	markerPath func(key string) string
}

// primaryAdminID is the user id of the main admin on every Grafana
// installation.
const primaryAdminID int64 = 1

// NewOrgController creates an OrgController.
func NewOrgController(platform Platform, markers statestore.Store, members *MemberReconciler,
	primaryAdminLogin, apiLogin string, log *logging.Logger) *OrgController {
	c := &OrgController{
		platform:          platform,
		markers:           markers,
		members:           members,
		log:               log,
		primaryAdminLogin: primaryAdminLogin,
		apiLogin:          apiLogin,
		markerPath:        func(key string) string { return key },
	}
	if s, ok := markers.(*statestore.SymlinkStore); ok {
		c.markerPath = s.Path
	}
	return c
}

// EnsureOrg makes the declared organization exist remotely and returns
// its id.
//
// # Description
//
// The local existence marker is the single source of truth for "this
// org has been created in Grafana":
//
//   - marker present: the org id is fetched by exact name. A failed
//     lookup is an InconsistencyError requiring manual repair.
//   - marker absent: the marker is set first, so an interrupted run
//     leaves evidence instead of risking a duplicate create next time.
//     Then the org is created, the primary admin is seeded into it
//     with the Admin role, and the API service account is removed from
//     its automatic membership.
//
// If the remote create itself fails the marker is removed again,
// restoring the pre-call state. If a later seeding step fails the
// marker stays: the org exists but is partially configured, which the
// propagated error tells the operator to finish by re-running or by
// hand. This window is accepted; the API has no transactions to close
// it with.
func (c *OrgController) EnsureOrg(ctx context.Context, name string) (int64, error) {
	exists, err := c.markers.Exists(name)
	if err != nil {
		return 0, fmt.Errorf("checking existence marker for org %q: %w", name, err)
	}

	if exists {
		org, err := c.platform.OrgByName(ctx, name)
		if err != nil {
			return 0, &InconsistencyError{Org: name, Marker: c.markerPath(name), Cause: err}
		}
		c.log.Debug("org already provisioned", "org", name, "id", org.ID)
		return org.ID, nil
	}

	if err := c.markers.Set(name); err != nil {
		return 0, fmt.Errorf("setting existence marker for org %q: %w", name, err)
	}

	orgID, err := c.platform.CreateOrg(ctx, name)
	if err != nil {
		// Creation never happened; roll the marker back so the next
		// run starts from the same place.
		if unsetErr := c.markers.Unset(name); unsetErr != nil {
			c.log.Error("failed to roll back existence marker",
				"org", name, "error", unsetErr)
		}
		return 0, fmt.Errorf("creating org %q: %w", name, err)
	}

	// From here on the org exists remotely, so the marker stays even
	// if seeding fails.
	if err := c.seedNewOrg(ctx, orgID, name); err != nil {
		return 0, fmt.Errorf(
			"org %q was created (id %d) but its initial configuration failed: %w. "+
				"Re-run to finish, or finish by hand in Grafana", name, orgID, err)
	}

	c.log.Info("created org", "org", name, "id", orgID)
	return orgID, nil
}

// seedNewOrg performs the post-create steps on a fresh organization:
// add the primary admin with the Admin role and take the API service
// account out of the automatic membership Grafana gave it.
func (c *OrgController) seedNewOrg(ctx context.Context, orgID int64, name string) error {
	if _, err := c.members.ensureMember(ctx, orgID, primaryAdminID, c.primaryAdminLogin, registry.RoleAdmin); err != nil {
		return fmt.Errorf("adding primary admin to org %q: %w", name, err)
	}

	apiUser, err := c.platform.LookupUser(ctx, c.apiLogin)
	if err != nil {
		return fmt.Errorf("looking up API account %q: %w", c.apiLogin, err)
	}
	if err := c.platform.RemoveUserFromOrg(ctx, orgID, apiUser.ID); err != nil {
		return fmt.Errorf("removing API account from org %q: %w", name, err)
	}
	return nil
}

package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Resolver computes UserAuthContexts from the repositories. It holds no
// state between calls and is safe for concurrent use as long as the
// repositories are.
type Resolver struct {
	repos Repositories
}

// NewResolver creates a resolver over the given repositories.
func NewResolver(repos Repositories) *Resolver {
	return &Resolver{repos: repos}
}

// ResolveUserContext builds the full authorization context for a user:
//
//  1. load direct permission assignments, role assignments and group
//     memberships in parallel
//  2. drop expired assignments
//  3. batch-load the referenced role and group entities
//  4. expand direct groups into their ancestor closure
//  5. feed everything through a fresh PermissionCollector
//  6. batch-load the collected permission entities and resolve
//  7. assemble the context
//
// Assignments pointing at deleted roles, groups or permissions are
// skipped silently. Repository errors abort the resolution.
func (r *Resolver) ResolveUserContext(ctx context.Context, userID string) (*UserAuthContext, error) {
	var (
		permAssignments []PermissionAssignment
		roleAssignments []RoleAssignment
		memberships     []GroupMembership
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		permAssignments, err = r.repos.Assignments.GetUserPermissions(egCtx, userID)
		if err != nil {
			return fmt.Errorf("failed to load permission assignments for user %s: %w", userID, err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		roleAssignments, err = r.repos.Assignments.GetUserRoles(egCtx, userID)
		if err != nil {
			return fmt.Errorf("failed to load role assignments for user %s: %w", userID, err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		memberships, err = r.repos.Assignments.GetUserGroups(egCtx, userID)
		if err != nil {
			return fmt.Errorf("failed to load group memberships for user %s: %w", userID, err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	now := time.Now()
	permAssignments = activeOnly(permAssignments, now)
	roleAssignments = activeOnly(roleAssignments, now)
	memberships = activeOnly(memberships, now)

	// Batch-load the role entities referenced by active assignments.
	assignedRoleIDs := make([]string, 0, len(roleAssignments))
	for _, ra := range roleAssignments {
		assignedRoleIDs = append(assignedRoleIDs, ra.RoleID)
	}
	assignedRoleIDs = dedupe(assignedRoleIDs)

	rolesByID, err := r.loadRoles(ctx, assignedRoleIDs)
	if err != nil {
		return nil, err
	}

	// Batch-load the directly joined groups.
	directGroupIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		directGroupIDs = append(directGroupIDs, m.GroupID)
	}
	directGroupIDs = dedupe(directGroupIDs)

	var directGroups []Group
	if len(directGroupIDs) > 0 {
		directGroups, err = r.repos.Groups.FindByIDs(ctx, directGroupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load groups: %w", err)
		}
	}

	// Expand into the ancestor closure. directSet marks groups the user
	// joined explicitly; every other group in the closure is inherited.
	// Overlapping ancestor chains dedupe through the closure map, and
	// FindAncestors itself terminates on cyclic parent data.
	directSet := make(map[string]bool, len(directGroups))
	closure := make(map[string]Group, len(directGroups))
	closureOrder := make([]string, 0, len(directGroups))
	for _, g := range directGroups {
		directSet[g.ID] = true
		if _, ok := closure[g.ID]; !ok {
			closure[g.ID] = g
			closureOrder = append(closureOrder, g.ID)
		}
	}
	for _, g := range directGroups {
		if !g.HasParent() {
			continue
		}
		ancestors, err := r.repos.Groups.FindAncestors(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ancestors of group %s: %w", g.ID, err)
		}
		for _, a := range ancestors {
			if _, ok := closure[a.ID]; ok {
				continue
			}
			closure[a.ID] = a
			closureOrder = append(closureOrder, a.ID)
		}
	}

	// Group-attached roles may not be loaded yet.
	groupRoleIDs := make([]string, 0)
	for _, groupID := range closureOrder {
		for _, roleID := range closure[groupID].RoleIDs {
			if _, ok := rolesByID[roleID]; !ok {
				groupRoleIDs = append(groupRoleIDs, roleID)
			}
		}
	}
	groupRolesByID, err := r.loadRoles(ctx, dedupe(groupRoleIDs))
	if err != nil {
		return nil, err
	}
	for id, role := range groupRolesByID {
		rolesByID[id] = role
	}

	// Feed the collector: direct assignments first, then role bundles,
	// then group bundles and the bundles of roles attached to groups.
	// Arrival order does not matter for the outcome; denials stay
	// sticky either way.
	collector := NewPermissionCollector()

	for _, pa := range permAssignments {
		collector.AddDirect(pa.PermissionID, pa.Granted, userID)
	}

	activeRoleIDs := make([]string, 0, len(assignedRoleIDs))
	for _, roleID := range assignedRoleIDs {
		role, ok := rolesByID[roleID]
		if !ok {
			continue
		}
		activeRoleIDs = append(activeRoleIDs, roleID)
		for _, pid := range role.PermissionIDs {
			collector.AddFromRole(pid, role.ID, role.DisplayName)
		}
	}

	for _, groupID := range closureOrder {
		group := closure[groupID]
		inherited := !directSet[groupID]
		for _, pid := range group.PermissionIDs {
			collector.AddFromGroup(pid, group.ID, group.DisplayName, inherited)
		}
		for _, roleID := range group.RoleIDs {
			role, ok := rolesByID[roleID]
			if !ok {
				continue
			}
			name := group.DisplayName + " → " + role.DisplayName
			for _, pid := range role.PermissionIDs {
				collector.AddFromGroup(pid, group.ID, name, inherited)
			}
		}
	}

	// Materialize against the permission entities and resolve.
	permissionsByID := make(map[string]Permission)
	if ids := collector.PermissionIDs(); len(ids) > 0 {
		perms, err := r.repos.Permissions.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load permissions: %w", err)
		}
		for _, p := range perms {
			permissionsByID[p.ID] = p
		}
	}
	resolved := collector.Resolve(permissionsByID)
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Permission.Key() < resolved[j].Permission.Key()
	})

	groupIDs := append([]string{}, closureOrder...)
	sort.Strings(groupIDs)
	sort.Strings(activeRoleIDs)

	return &UserAuthContext{
		UserID:      userID,
		RoleIDs:     activeRoleIDs,
		GroupIDs:    groupIDs,
		Permissions: resolved,
		ResolvedAt:  now,
	}, nil
}

// HasPermission decides a single resource/action request. When the user
// holds an active direct assignment for the exact "resource:action"
// permission, that assignment's granted flag is authoritative and
// returned without aggregating roles or groups. Otherwise the full
// context is resolved and tested under Permission.Matches semantics.
func (r *Resolver) HasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	perm, err := r.repos.Permissions.FindByKey(ctx, resource, action)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("failed to look up permission %s: %w", PermissionKey(resource, action), err)
	}
	if perm != nil {
		assignments, err := r.repos.Assignments.GetUserPermissions(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("failed to load permission assignments for user %s: %w", userID, err)
		}
		now := time.Now()
		for _, pa := range assignments {
			if pa.PermissionID == perm.ID && pa.Active(now) {
				return pa.Granted, nil
			}
		}
	}

	authCtx, err := r.ResolveUserContext(ctx, userID)
	if err != nil {
		return false, err
	}
	return authCtx.HasPermission(resource, action), nil
}

// loadRoles batch-fetches roles and indexes them by ID. An empty input
// skips the repository round trip.
func (r *Resolver) loadRoles(ctx context.Context, ids []string) (map[string]Role, error) {
	byID := make(map[string]Role, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	roles, err := r.repos.Roles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	for _, role := range roles {
		byID[role.ID] = role
	}
	return byID, nil
}

// activeOnly filters assignments to those in effect at the given time.
func activeOnly[A interface{ Active(time.Time) bool }](assignments []A, now time.Time) []A {
	out := make([]A, 0, len(assignments))
	for _, a := range assignments {
		if a.Active(now) {
			out = append(out, a)
		}
	}
	return out
}

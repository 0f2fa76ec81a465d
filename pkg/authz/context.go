package authz

import (
	"sort"
	"time"
)

// SourceType classifies where a resolved permission came from.
type SourceType string

const (
	// SourceDirect marks a permission assigned straight to the user.
	SourceDirect SourceType = "direct"
	// SourceRole marks a permission contributed by an assigned role.
	SourceRole SourceType = "role"
	// SourceGroup marks a permission contributed by a group the user
	// belongs to, directly or through an ancestor.
	SourceGroup SourceType = "group"
)

// PermissionSource records one contribution to a resolved permission,
// kept for auditability even when the permission ends up denied.
type PermissionSource struct {
	Type SourceType `json:"type"`
	// SourceID is the contributing entity's ID: the user for direct
	// assignments, otherwise the role or group.
	SourceID string `json:"source_id"`
	// SourceName is a human-readable label. Permissions reached through
	// a role attached to a group compose it as "Group → Role".
	SourceName string `json:"source_name"`
	// Inherited is true when the contributing group is an ancestor
	// rather than a direct membership.
	Inherited bool `json:"inherited"`
}

// ResolvedPermission is the final decision for one permission, with the
// full list of sources that contributed to it. Granted reflects the
// precedence outcome, not any single source.
type ResolvedPermission struct {
	Permission Permission         `json:"permission"`
	Sources    []PermissionSource `json:"sources"`
	Granted    bool               `json:"granted"`
}

// HasDirectSource reports whether any contribution came from a direct
// user assignment.
func (rp ResolvedPermission) HasDirectSource() bool {
	for _, s := range rp.Sources {
		if s.Type == SourceDirect {
			return true
		}
	}
	return false
}

// UserAuthContext is the fully resolved authorization state of one user:
// active roles, the complete group set including ancestors, and one
// ResolvedPermission per distinct permission. Contexts are computed on
// demand and cached; they are never persisted.
type UserAuthContext struct {
	UserID      string               `json:"user_id"`
	RoleIDs     []string             `json:"role_ids"`
	GroupIDs    []string             `json:"group_ids"`
	Permissions []ResolvedPermission `json:"permissions"`
	ResolvedAt  time.Time            `json:"resolved_at"`
}

// HasPermission reports whether the context allows the given resource
// and action. A permission whose key is exactly "resource:action" and
// which carries a direct source is authoritative either way, mirroring
// the resolver's direct fast path. Otherwise any granted permission
// matching under Permission.Matches allows the request.
func (c *UserAuthContext) HasPermission(resource, action string) bool {
	key := PermissionKey(resource, action)
	for i := range c.Permissions {
		rp := &c.Permissions[i]
		if rp.Permission.Key() == key && rp.HasDirectSource() {
			return rp.Granted
		}
	}
	for i := range c.Permissions {
		rp := &c.Permissions[i]
		if rp.Granted && rp.Permission.Matches(resource, action) {
			return true
		}
	}
	return false
}

// GrantedActions lists the actions granted on exactly the given
// resource, sorted. It filters the resolved set literally: manage and
// wildcard permissions on other resources do not expand into entries
// here.
func (c *UserAuthContext) GrantedActions(resource string) []string {
	seen := make(map[string]bool)
	actions := make([]string, 0)
	for i := range c.Permissions {
		rp := &c.Permissions[i]
		if !rp.Granted || rp.Permission.Resource != resource {
			continue
		}
		if seen[rp.Permission.Action] {
			continue
		}
		seen[rp.Permission.Action] = true
		actions = append(actions, rp.Permission.Action)
	}
	sort.Strings(actions)
	return actions
}

// Find returns the resolved permission with the given permission ID.
func (c *UserAuthContext) Find(permissionID string) (ResolvedPermission, bool) {
	for i := range c.Permissions {
		if c.Permissions[i].Permission.ID == permissionID {
			return c.Permissions[i], true
		}
	}
	return ResolvedPermission{}, false
}

// Check names one resource/action pair for batch permission queries.
type Check struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

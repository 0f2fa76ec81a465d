package authz

import "time"

// Role is a named bundle of permissions. Name is a unique lowercase
// token; DisplayName is free-form. Priority orders roles for display
// and administrative listings only, it carries no weight during
// permission resolution.
type Role struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description,omitempty"`
	IsSystem      bool      `json:"is_system"`
	Priority      int       `json:"priority"`
	PermissionIDs []string  `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewRole builds an unpersisted role after validating the name token.
func NewRole(name, displayName, description string, priority int) (Role, error) {
	if err := validateToken("name", name); err != nil {
		return Role{}, err
	}
	if displayName == "" {
		return Role{}, &ValidationError{Field: "display_name", Value: displayName, Reason: "must not be empty"}
	}
	now := time.Now()
	return Role{
		Name:        name,
		DisplayName: displayName,
		Description: description,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ReconstituteRole rebuilds a role from stored fields without
// re-validating.
func ReconstituteRole(id, name, displayName, description string, isSystem bool, priority int, permissionIDs []string, createdAt, updatedAt time.Time) Role {
	return Role{
		ID:            id,
		Name:          name,
		DisplayName:   displayName,
		Description:   description,
		IsSystem:      isSystem,
		Priority:      priority,
		PermissionIDs: dedupe(permissionIDs),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// HasPermission reports whether the role bundles the given permission ID.
func (r Role) HasPermission(permissionID string) bool {
	for _, id := range r.PermissionIDs {
		if id == permissionID {
			return true
		}
	}
	return false
}

// WithPermissions returns a copy with the permission IDs added,
// preserving set semantics.
func (r Role) WithPermissions(permissionIDs ...string) Role {
	r.PermissionIDs = dedupe(append(append([]string{}, r.PermissionIDs...), permissionIDs...))
	r.UpdatedAt = time.Now()
	return r
}

// WithoutPermission returns a copy with the permission ID removed.
func (r Role) WithoutPermission(permissionID string) Role {
	kept := make([]string, 0, len(r.PermissionIDs))
	for _, id := range r.PermissionIDs {
		if id != permissionID {
			kept = append(kept, id)
		}
	}
	r.PermissionIDs = kept
	r.UpdatedAt = time.Now()
	return r
}

// dedupe removes duplicate IDs while preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

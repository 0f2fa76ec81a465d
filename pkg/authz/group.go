package authz

import "time"

// Group collects users and carries its own permissions and roles.
// Groups nest through ParentID: members inherit the permissions and
// roles of every ancestor. The hierarchy is a forest in healthy data,
// but nothing at write time prevents a cycle, so every traversal over
// ParentID must keep a visited set.
type Group struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description,omitempty"`
	IsSystem      bool      `json:"is_system"`
	ParentID      *string   `json:"parent_id,omitempty"`
	PermissionIDs []string  `json:"permission_ids"`
	RoleIDs       []string  `json:"role_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewGroup builds an unpersisted group after validating the name token.
func NewGroup(name, displayName, description string) (Group, error) {
	if err := validateToken("name", name); err != nil {
		return Group{}, err
	}
	if displayName == "" {
		return Group{}, &ValidationError{Field: "display_name", Value: displayName, Reason: "must not be empty"}
	}
	now := time.Now()
	return Group{
		Name:        name,
		DisplayName: displayName,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ReconstituteGroup rebuilds a group from stored fields without
// re-validating.
func ReconstituteGroup(id, name, displayName, description string, isSystem bool, parentID *string, permissionIDs, roleIDs []string, createdAt, updatedAt time.Time) Group {
	return Group{
		ID:            id,
		Name:          name,
		DisplayName:   displayName,
		Description:   description,
		IsSystem:      isSystem,
		ParentID:      parentID,
		PermissionIDs: dedupe(permissionIDs),
		RoleIDs:       dedupe(roleIDs),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// HasParent reports whether the group has a parent group.
func (g Group) HasParent() bool {
	return g.ParentID != nil && *g.ParentID != ""
}

// WithParent returns a copy attached to the given parent group.
func (g Group) WithParent(parentID string) Group {
	g.ParentID = &parentID
	g.UpdatedAt = time.Now()
	return g
}

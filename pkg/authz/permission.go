package authz

import (
	"regexp"
	"strings"
	"time"
)

const (
	// WildcardResource is the only resource value exempt from token
	// validation. Combined with ActionManage it grants everything.
	WildcardResource = "*"

	// ActionManage implies every action on the permission's resource.
	ActionManage = "manage"
)

// tokenPattern constrains resource and action identifiers: lowercase
// letter first, then lowercase letters, digits or underscores.
var tokenPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Permission pairs a resource with an action. Permissions are immutable
// values: mutating helpers return a new instance. The ID is empty until
// a store persists the permission.
type Permission struct {
	ID          string    `json:"id"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewPermission builds an unpersisted permission after validating the
// resource and action tokens.
func NewPermission(resource, action, description string) (Permission, error) {
	if err := validateResource(resource); err != nil {
		return Permission{}, err
	}
	if err := validateAction(action); err != nil {
		return Permission{}, err
	}
	now := time.Now()
	return Permission{
		Resource:    resource,
		Action:      action,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ReconstitutePermission rebuilds a permission from stored fields without
// re-validating. Stores use it when scanning rows.
func ReconstitutePermission(id, resource, action, description string, isSystem bool, createdAt, updatedAt time.Time) Permission {
	return Permission{
		ID:          id,
		Resource:    resource,
		Action:      action,
		Description: description,
		IsSystem:    isSystem,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

// PermissionKey renders the canonical "resource:action" form.
func PermissionKey(resource, action string) string {
	return resource + ":" + action
}

// Key returns the permission's canonical "resource:action" identifier.
func (p Permission) Key() string {
	return PermissionKey(p.Resource, p.Action)
}

// Matches reports whether this permission satisfies a request for the
// given resource and action. Three cases match:
//
//  1. exact resource and action
//  2. this permission's action is "manage" and the resource matches,
//     since manage implies every action on that resource
//  3. this permission is "*:manage", the super-admin wildcard
func (p Permission) Matches(resource, action string) bool {
	if p.Resource == resource && p.Action == action {
		return true
	}
	if p.Action == ActionManage && p.Resource == resource {
		return true
	}
	if p.Resource == WildcardResource && p.Action == ActionManage {
		return true
	}
	return false
}

// WithDescription returns a copy with an updated description.
func (p Permission) WithDescription(description string) Permission {
	p.Description = description
	p.UpdatedAt = time.Now()
	return p
}

// AsSystem returns a copy marked as system-managed.
func (p Permission) AsSystem() Permission {
	p.IsSystem = true
	p.UpdatedAt = time.Now()
	return p
}

func validateResource(resource string) error {
	if resource == WildcardResource {
		return nil
	}
	return validateToken("resource", resource)
}

func validateAction(action string) error {
	// "*" is never a valid action; only resources may carry the wildcard.
	return validateToken("action", action)
}

func validateToken(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Value: value, Reason: "must not be empty"}
	}
	if strings.Contains(value, ":") {
		return &ValidationError{Field: field, Value: value, Reason: "must not contain ':'"}
	}
	if !tokenPattern.MatchString(value) {
		return &ValidationError{Field: field, Value: value, Reason: "must start with a lowercase letter followed by lowercase letters, digits or underscores"}
	}
	return nil
}

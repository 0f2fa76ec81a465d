package authz

import "time"

// RoleAssignment binds a role to a user, optionally until ExpiresAt.
type RoleAssignment struct {
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	AssignedBy *string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
}

// Active reports whether the assignment is in effect at the given time.
func (a RoleAssignment) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// PermissionAssignment binds a permission directly to a user. Granted
// false records an explicit denial, which overrides every grant of the
// same permission from any source.
type PermissionAssignment struct {
	UserID       string     `json:"user_id"`
	PermissionID string     `json:"permission_id"`
	Granted      bool       `json:"granted"`
	Reason       *string    `json:"reason,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AssignedBy   *string    `json:"assigned_by,omitempty"`
	AssignedAt   time.Time  `json:"assigned_at"`
}

// Active reports whether the assignment is in effect at the given time.
func (a PermissionAssignment) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// GroupMembership binds a user to a group, optionally until ExpiresAt.
type GroupMembership struct {
	UserID     string     `json:"user_id"`
	GroupID    string     `json:"group_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	AssignedBy *string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
}

// Active reports whether the membership is in effect at the given time.
func (m GroupMembership) Active(now time.Time) bool {
	return m.ExpiresAt == nil || m.ExpiresAt.After(now)
}

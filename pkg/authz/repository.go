package authz

import "context"

// PermissionRepository loads permission entities. Implementations
// return ErrNotFound (wrapped) for single lookups that miss; batch
// lookups omit missing IDs without error.
type PermissionRepository interface {
	FindByID(ctx context.Context, id string) (*Permission, error)
	FindByIDs(ctx context.Context, ids []string) ([]Permission, error)
	FindByKey(ctx context.Context, resource, action string) (*Permission, error)
	FindAll(ctx context.Context) ([]Permission, error)
	FindByResource(ctx context.Context, resource string) ([]Permission, error)
}

// RoleRepository loads role entities.
type RoleRepository interface {
	FindByID(ctx context.Context, id string) (*Role, error)
	FindByIDs(ctx context.Context, ids []string) ([]Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	FindAll(ctx context.Context) ([]Role, error)
}

// GroupRepository loads group entities and walks the hierarchy.
type GroupRepository interface {
	FindByID(ctx context.Context, id string) (*Group, error)
	FindByIDs(ctx context.Context, ids []string) ([]Group, error)
	// FindAncestors returns the chain of ancestor groups starting from
	// the given group's parent, root-ward. The starting group is not
	// included. Implementations must terminate on cyclic parent data.
	FindAncestors(ctx context.Context, groupID string) ([]Group, error)
	FindAll(ctx context.Context) ([]Group, error)
}

// UserAssignmentRepository reads and writes the bindings between users
// and permissions, roles and groups. Reads return every stored
// assignment including expired ones; filtering by expiry is the
// resolver's responsibility, and purging is a maintenance task that by
// contract never changes resolution results.
type UserAssignmentRepository interface {
	GetUserPermissions(ctx context.Context, userID string) ([]PermissionAssignment, error)
	GetUserRoles(ctx context.Context, userID string) ([]RoleAssignment, error)
	GetUserGroups(ctx context.Context, userID string) ([]GroupMembership, error)

	// AssignRole upserts a role assignment: assigning an already held
	// role refreshes its expiry and assigner instead of duplicating.
	AssignRole(ctx context.Context, a RoleAssignment) error
	// RevokeRole removes a role assignment, returning ErrNotFound when
	// the user does not hold the role.
	RevokeRole(ctx context.Context, userID, roleID string) error
	// GrantPermission upserts a granting permission assignment.
	GrantPermission(ctx context.Context, a PermissionAssignment) error
	// DenyPermission upserts a denying permission assignment.
	DenyPermission(ctx context.Context, a PermissionAssignment) error
	// AddToGroup upserts a group membership.
	AddToGroup(ctx context.Context, m GroupMembership) error
	// RemoveFromGroup removes a membership, returning ErrNotFound when
	// the user is not a member.
	RemoveFromGroup(ctx context.Context, userID, groupID string) error
}

// Repositories bundles the four ports for components that need them all.
type Repositories struct {
	Permissions PermissionRepository
	Roles       RoleRepository
	Groups      GroupRepository
	Assignments UserAssignmentRepository
}

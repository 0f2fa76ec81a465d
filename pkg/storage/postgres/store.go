package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/resumekit/authz/pkg/authz"
)

// Store implements all four authz repository ports over database/sql.
// Writes go through regular INSERT ... ON CONFLICT upserts keyed the
// same way the domain keys them: permissions by (resource, action),
// roles by name, assignments by (user, target).
//
// The three entity ports share method names (FindByID and friends), so
// they are exposed as facets: Permissions(), Roles() and Groups()
// return views of the same store, and Repositories() bundles all four
// ports for authz.NewEngine.
//
// All timestamps are normalized to UTC before they hit the database so
// the stored wall clock reads back as the same instant regardless of
// the process timezone.
type Store struct {
	db *sql.DB
}

var (
	_ authz.PermissionRepository     = permissionRepo{}
	_ authz.RoleRepository           = roleRepo{}
	_ authz.GroupRepository          = groupRepo{}
	_ authz.UserAssignmentRepository = (*Store)(nil)
)

// NewStore wraps an open database handle. The caller owns the handle
// and is responsible for running migrations before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and pool metrics.
func (s *Store) DB() *sql.DB { return s.db }

// Permissions returns the store's PermissionRepository facet.
func (s *Store) Permissions() authz.PermissionRepository { return permissionRepo{s} }

// Roles returns the store's RoleRepository facet.
func (s *Store) Roles() authz.RoleRepository { return roleRepo{s} }

// Groups returns the store's GroupRepository facet.
func (s *Store) Groups() authz.GroupRepository { return groupRepo{s} }

// Repositories bundles the store's four ports, ready for
// authz.NewEngine.
func (s *Store) Repositories() authz.Repositories {
	return authz.Repositories{
		Permissions: s.Permissions(),
		Roles:       s.Roles(),
		Groups:      s.Groups(),
		Assignments: s,
	}
}

// CreatePermission stores a permission, assigning an ID when empty.
// The "resource:action" key must be unique.
func (s *Store) CreatePermission(ctx context.Context, p authz.Permission) (authz.Permission, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.Permission{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM permissions WHERE resource = $1 AND action = $2",
		p.Resource, p.Action,
	).Scan(&existingID)
	if err == nil && existingID != p.ID {
		return authz.Permission{}, &authz.ValidationError{
			Field: "key", Value: p.Key(), Reason: "permission key already exists",
		}
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return authz.Permission{}, fmt.Errorf("failed to check permission key: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO permissions (id, resource, action, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			resource = EXCLUDED.resource,
			action = EXCLUDED.action,
			description = EXCLUDED.description,
			is_system = EXCLUDED.is_system,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.Resource, p.Action, p.Description, p.IsSystem, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return authz.Permission{}, fmt.Errorf("failed to insert permission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return authz.Permission{}, fmt.Errorf("failed to commit permission: %w", err)
	}
	return p, nil
}

// CreateRole stores a role, assigning an ID when empty. Name must be
// unique.
func (s *Store) CreateRole(ctx context.Context, r authz.Role) (authz.Role, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	permissionIDs, err := encodeIDs(r.PermissionIDs)
	if err != nil {
		return authz.Role{}, fmt.Errorf("failed to encode permission ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.Role{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM roles WHERE name = $1", r.Name,
	).Scan(&existingID)
	if err == nil && existingID != r.ID {
		return authz.Role{}, &authz.ValidationError{
			Field: "name", Value: r.Name, Reason: "role name already exists",
		}
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return authz.Role{}, fmt.Errorf("failed to check role name: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO roles (id, name, display_name, description, is_system, priority, permission_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			is_system = EXCLUDED.is_system,
			priority = EXCLUDED.priority,
			permission_ids = EXCLUDED.permission_ids,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.Name, r.DisplayName, r.Description, r.IsSystem, r.Priority, permissionIDs, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		return authz.Role{}, fmt.Errorf("failed to insert role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return authz.Role{}, fmt.Errorf("failed to commit role: %w", err)
	}
	return r, nil
}

// CreateGroup stores a group, assigning an ID when empty.
func (s *Store) CreateGroup(ctx context.Context, g authz.Group) (authz.Group, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	permissionIDs, err := encodeIDs(g.PermissionIDs)
	if err != nil {
		return authz.Group{}, fmt.Errorf("failed to encode permission ids: %w", err)
	}
	roleIDs, err := encodeIDs(g.RoleIDs)
	if err != nil {
		return authz.Group{}, fmt.Errorf("failed to encode role ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, display_name, description, is_system, parent_id, permission_ids, role_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			is_system = EXCLUDED.is_system,
			parent_id = EXCLUDED.parent_id,
			permission_ids = EXCLUDED.permission_ids,
			role_ids = EXCLUDED.role_ids,
			updated_at = EXCLUDED.updated_at
	`, g.ID, g.Name, g.DisplayName, g.Description, g.IsSystem, g.ParentID, permissionIDs, roleIDs, g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	if err != nil {
		return authz.Group{}, fmt.Errorf("failed to insert group: %w", err)
	}
	return g, nil
}

// UpdateRole replaces a stored role.
func (s *Store) UpdateRole(ctx context.Context, r authz.Role) error {
	permissionIDs, err := encodeIDs(r.PermissionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode permission ids: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE roles
		SET name = $1, display_name = $2, description = $3, is_system = $4,
			priority = $5, permission_ids = $6, updated_at = $7
		WHERE id = $8
	`, r.Name, r.DisplayName, r.Description, r.IsSystem, r.Priority, permissionIDs, r.UpdatedAt.UTC(), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return authz.NotFoundError("role", r.ID)
	}
	return nil
}

// UpdateGroup replaces a stored group.
func (s *Store) UpdateGroup(ctx context.Context, g authz.Group) error {
	permissionIDs, err := encodeIDs(g.PermissionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode permission ids: %w", err)
	}
	roleIDs, err := encodeIDs(g.RoleIDs)
	if err != nil {
		return fmt.Errorf("failed to encode role ids: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE groups
		SET name = $1, display_name = $2, description = $3, is_system = $4,
			parent_id = $5, permission_ids = $6, role_ids = $7, updated_at = $8
		WHERE id = $9
	`, g.Name, g.DisplayName, g.Description, g.IsSystem, g.ParentID, permissionIDs, roleIDs, g.UpdatedAt.UTC(), g.ID)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return authz.NotFoundError("group", g.ID)
	}
	return nil
}

// permissionRepo is the PermissionRepository facet.
type permissionRepo struct{ s *Store }

const permissionColumns = "id, resource, action, description, is_system, created_at, updated_at"

// FindByID returns the permission with the given ID.
func (r permissionRepo) FindByID(ctx context.Context, id string) (*authz.Permission, error) {
	row := r.s.db.QueryRowContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE id = $1", id)

	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.NotFoundError("permission", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find permission: %w", err)
	}
	return &p, nil
}

// FindByIDs returns the permissions matching the given IDs, omitting
// missing ones. Results come back in input order.
func (r permissionRepo) FindByIDs(ctx context.Context, ids []string) ([]authz.Permission, error) {
	if len(ids) == 0 {
		return []authz.Permission{}, nil
	}

	query := "SELECT " + permissionColumns + " FROM permissions WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := r.s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to find permissions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]authz.Permission, len(ids))
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permissions: %w", err)
	}

	out := make([]authz.Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindByKey returns the permission with the exact "resource:action" key.
func (r permissionRepo) FindByKey(ctx context.Context, resource, action string) (*authz.Permission, error) {
	row := r.s.db.QueryRowContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE resource = $1 AND action = $2",
		resource, action)

	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.NotFoundError("permission", authz.PermissionKey(resource, action))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find permission: %w", err)
	}
	return &p, nil
}

// FindAll returns every stored permission sorted by key.
func (r permissionRepo) FindAll(ctx context.Context) ([]authz.Permission, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions ORDER BY resource, action")
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

// FindByResource returns every permission on the given resource sorted
// by action.
func (r permissionRepo) FindByResource(ctx context.Context, resource string) ([]authz.Permission, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions WHERE resource = $1 ORDER BY action",
		resource)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

// roleRepo is the RoleRepository facet.
type roleRepo struct{ s *Store }

const roleColumns = "id, name, display_name, description, is_system, priority, permission_ids, created_at, updated_at"

// FindByID returns the role with the given ID.
func (r roleRepo) FindByID(ctx context.Context, id string) (*authz.Role, error) {
	row := r.s.db.QueryRowContext(ctx,
		"SELECT "+roleColumns+" FROM roles WHERE id = $1", id)

	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.NotFoundError("role", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	return &role, nil
}

// FindByIDs returns the roles matching the given IDs, omitting missing
// ones. Results come back in input order.
func (r roleRepo) FindByIDs(ctx context.Context, ids []string) ([]authz.Role, error) {
	if len(ids) == 0 {
		return []authz.Role{}, nil
	}

	query := "SELECT " + roleColumns + " FROM roles WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := r.s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to find roles: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]authz.Role, len(ids))
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		byID[role.ID] = role
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}

	out := make([]authz.Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := byID[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

// FindByName returns the role with the given unique name.
func (r roleRepo) FindByName(ctx context.Context, name string) (*authz.Role, error) {
	row := r.s.db.QueryRowContext(ctx,
		"SELECT "+roleColumns+" FROM roles WHERE name = $1", name)

	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.NotFoundError("role", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	return &role, nil
}

// FindAll returns every stored role sorted by priority descending,
// then name.
func (r roleRepo) FindAll(ctx context.Context) ([]authz.Role, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+roleColumns+" FROM roles ORDER BY priority DESC, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	out := make([]authz.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}
	return out, nil
}

// groupRepo is the GroupRepository facet.
type groupRepo struct{ s *Store }

const groupColumns = "id, name, display_name, description, is_system, parent_id, permission_ids, role_ids, created_at, updated_at"

// FindByID returns the group with the given ID.
func (r groupRepo) FindByID(ctx context.Context, id string) (*authz.Group, error) {
	row := r.s.db.QueryRowContext(ctx,
		"SELECT "+groupColumns+" FROM groups WHERE id = $1", id)

	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.NotFoundError("group", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	return &g, nil
}

// FindByIDs returns the groups matching the given IDs, omitting
// missing ones. Results come back in input order.
func (r groupRepo) FindByIDs(ctx context.Context, ids []string) ([]authz.Group, error) {
	if len(ids) == 0 {
		return []authz.Group{}, nil
	}

	query := "SELECT " + groupColumns + " FROM groups WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := r.s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to find groups: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]authz.Group, len(ids))
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		byID[g.ID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}

	out := make([]authz.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// FindAncestors walks the parent chain root-ward from the given group,
// excluding the group itself. A visited set bounds the walk on cyclic
// parent data, and a dangling parent reference ends the walk without
// error.
func (r groupRepo) FindAncestors(ctx context.Context, groupID string) ([]authz.Group, error) {
	g, err := r.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{g.ID: true}
	var ancestors []authz.Group
	current := *g
	for current.HasParent() {
		parentID := *current.ParentID
		if visited[parentID] {
			break
		}
		parent, err := r.FindByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				break
			}
			return nil, err
		}
		visited[parentID] = true
		ancestors = append(ancestors, *parent)
		current = *parent
	}
	return ancestors, nil
}

// FindAll returns every stored group sorted by name.
func (r groupRepo) FindAll(ctx context.Context) ([]authz.Group, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+groupColumns+" FROM groups ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	out := make([]authz.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}
	return out, nil
}

// GetUserPermissions returns every direct permission assignment for
// the user, expired ones included.
func (s *Store) GetUserPermissions(ctx context.Context, userID string) ([]authz.PermissionAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, permission_id, granted, reason, expires_at, assigned_by, assigned_at
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY permission_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	defer rows.Close()

	out := make([]authz.PermissionAssignment, 0)
	for rows.Next() {
		var (
			a          authz.PermissionAssignment
			reason     sql.NullString
			expiresAt  sql.NullTime
			assignedBy sql.NullString
		)
		if err := rows.Scan(&a.UserID, &a.PermissionID, &a.Granted, &reason, &expiresAt, &assignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission assignment: %w", err)
		}
		a.Reason = nullStringPtr(reason)
		a.ExpiresAt = nullTimePtr(expiresAt)
		a.AssignedBy = nullStringPtr(assignedBy)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permission assignments: %w", err)
	}
	return out, nil
}

// GetUserRoles returns every role assignment for the user, expired
// ones included.
func (s *Store) GetUserRoles(ctx context.Context, userID string) ([]authz.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role_id, expires_at, assigned_by, assigned_at
		FROM user_roles
		WHERE user_id = $1
		ORDER BY role_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	out := make([]authz.RoleAssignment, 0)
	for rows.Next() {
		var (
			a          authz.RoleAssignment
			expiresAt  sql.NullTime
			assignedBy sql.NullString
		)
		if err := rows.Scan(&a.UserID, &a.RoleID, &expiresAt, &assignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		a.ExpiresAt = nullTimePtr(expiresAt)
		a.AssignedBy = nullStringPtr(assignedBy)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role assignments: %w", err)
	}
	return out, nil
}

// GetUserGroups returns every group membership for the user, expired
// ones included.
func (s *Store) GetUserGroups(ctx context.Context, userID string) ([]authz.GroupMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, group_id, expires_at, assigned_by, assigned_at
		FROM user_groups
		WHERE user_id = $1
		ORDER BY group_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}
	defer rows.Close()

	out := make([]authz.GroupMembership, 0)
	for rows.Next() {
		var (
			m          authz.GroupMembership
			expiresAt  sql.NullTime
			assignedBy sql.NullString
		)
		if err := rows.Scan(&m.UserID, &m.GroupID, &expiresAt, &assignedBy, &m.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group membership: %w", err)
		}
		m.ExpiresAt = nullTimePtr(expiresAt)
		m.AssignedBy = nullStringPtr(assignedBy)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read group memberships: %w", err)
	}
	return out, nil
}

// AssignRole upserts a role assignment keyed by (user, role).
func (s *Store) AssignRole(ctx context.Context, a authz.RoleAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, expires_at, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, role_id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			assigned_by = EXCLUDED.assigned_by,
			assigned_at = EXCLUDED.assigned_at
	`, a.UserID, a.RoleID, utcPtr(a.ExpiresAt), a.AssignedBy, a.AssignedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a role assignment.
func (s *Store) RevokeRole(ctx context.Context, userID, roleID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2", userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return authz.NotFoundError("role assignment", roleID)
	}
	return nil
}

// GrantPermission upserts a granting assignment keyed by
// (user, permission). Granting over an existing denial lifts it.
func (s *Store) GrantPermission(ctx context.Context, a authz.PermissionAssignment) error {
	return s.writePermission(ctx, a)
}

// DenyPermission upserts a denying assignment keyed by
// (user, permission).
func (s *Store) DenyPermission(ctx context.Context, a authz.PermissionAssignment) error {
	return s.writePermission(ctx, a)
}

func (s *Store) writePermission(ctx context.Context, a authz.PermissionAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, granted, reason, expires_at, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, permission_id) DO UPDATE SET
			granted = EXCLUDED.granted,
			reason = EXCLUDED.reason,
			expires_at = EXCLUDED.expires_at,
			assigned_by = EXCLUDED.assigned_by,
			assigned_at = EXCLUDED.assigned_at
	`, a.UserID, a.PermissionID, a.Granted, a.Reason, utcPtr(a.ExpiresAt), a.AssignedBy, a.AssignedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to write permission assignment: %w", err)
	}
	return nil
}

// AddToGroup upserts a group membership keyed by (user, group).
func (s *Store) AddToGroup(ctx context.Context, m authz.GroupMembership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_groups (user_id, group_id, expires_at, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, group_id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			assigned_by = EXCLUDED.assigned_by,
			assigned_at = EXCLUDED.assigned_at
	`, m.UserID, m.GroupID, utcPtr(m.ExpiresAt), m.AssignedBy, m.AssignedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add to group: %w", err)
	}
	return nil
}

// RemoveFromGroup removes a group membership.
func (s *Store) RemoveFromGroup(ctx context.Context, userID, groupID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2", userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to remove from group: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return authz.NotFoundError("group membership", groupID)
	}
	return nil
}

// PurgeExpiredAssignments deletes every assignment whose expiry is at
// or before the cutoff and returns the affected user IDs with the
// number of rows removed. Resolution already ignores expired rows, so
// purging never changes a decision.
func (s *Store) PurgeExpiredAssignments(ctx context.Context, cutoff time.Time) ([]string, int64, error) {
	affected := make(map[string]bool)
	var removed int64

	for _, table := range []string{"user_permissions", "user_roles", "user_groups"} {
		query := "DELETE FROM " + table + " WHERE expires_at IS NOT NULL AND expires_at <= $1 RETURNING user_id"

		rows, err := s.db.QueryContext(ctx, query, cutoff.UTC())
		if err != nil {
			return nil, 0, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		for rows.Next() {
			var userID string
			if err := rows.Scan(&userID); err != nil {
				rows.Close()
				return nil, 0, fmt.Errorf("failed to scan purged user: %w", err)
			}
			affected[userID] = true
			removed++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, 0, fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}

	userIDs := make([]string, 0, len(affected))
	for id := range affected {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	return userIDs, removed, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPermission(s scanner) (authz.Permission, error) {
	var (
		id, resource, action, description string
		isSystem                          bool
		createdAt, updatedAt              time.Time
	)
	if err := s.Scan(&id, &resource, &action, &description, &isSystem, &createdAt, &updatedAt); err != nil {
		return authz.Permission{}, err
	}
	return authz.ReconstitutePermission(id, resource, action, description, isSystem, createdAt, updatedAt), nil
}

func scanRole(s scanner) (authz.Role, error) {
	var (
		id, name, displayName, description string
		isSystem                           bool
		priority                           int
		permissionsJSON                    []byte
		createdAt, updatedAt               time.Time
	)
	if err := s.Scan(&id, &name, &displayName, &description, &isSystem, &priority, &permissionsJSON, &createdAt, &updatedAt); err != nil {
		return authz.Role{}, err
	}
	permissionIDs, err := decodeIDs(permissionsJSON)
	if err != nil {
		return authz.Role{}, fmt.Errorf("failed to decode permission ids: %w", err)
	}
	return authz.ReconstituteRole(id, name, displayName, description, isSystem, priority, permissionIDs, createdAt, updatedAt), nil
}

func scanGroup(s scanner) (authz.Group, error) {
	var (
		id, name, displayName, description string
		isSystem                           bool
		parentID                           sql.NullString
		permissionsJSON, rolesJSON         []byte
		createdAt, updatedAt               time.Time
	)
	if err := s.Scan(&id, &name, &displayName, &description, &isSystem, &parentID, &permissionsJSON, &rolesJSON, &createdAt, &updatedAt); err != nil {
		return authz.Group{}, err
	}
	permissionIDs, err := decodeIDs(permissionsJSON)
	if err != nil {
		return authz.Group{}, fmt.Errorf("failed to decode permission ids: %w", err)
	}
	roleIDs, err := decodeIDs(rolesJSON)
	if err != nil {
		return authz.Group{}, fmt.Errorf("failed to decode role ids: %w", err)
	}
	return authz.ReconstituteGroup(id, name, displayName, description, isSystem, nullStringPtr(parentID), permissionIDs, roleIDs, createdAt, updatedAt), nil
}

func collectPermissions(rows *sql.Rows) ([]authz.Permission, error) {
	out := make([]authz.Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permissions: %w", err)
	}
	return out, nil
}

// encodeIDs marshals an ID list for a JSON column, normalizing nil to
// an empty array.
func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeIDs(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// placeholders renders "$1, $2, ..." for IN clauses.
func placeholders(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i)
	}
	return b.String()
}

func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resumekit/authz/pkg/authz"
)

// Store implements all four authz repository ports in process memory.
// It backs tests, the embedding examples, and the daemon's default
// storage backend. All methods are safe for concurrent use.
//
// The three entity ports share method names (FindByID and friends), so
// they are exposed as facets: Permissions(), Roles() and Groups()
// return views of the same store, and Repositories() bundles all four
// ports for authz.NewEngine.
type Store struct {
	mu sync.RWMutex

	permissions      map[string]authz.Permission // by ID
	permissionsByKey map[string]string           // "resource:action" -> ID
	roles            map[string]authz.Role       // by ID
	rolesByName      map[string]string           // name -> ID
	groups           map[string]authz.Group      // by ID

	userPermissions map[string][]authz.PermissionAssignment
	userRoles       map[string][]authz.RoleAssignment
	userGroups      map[string][]authz.GroupMembership
}

var (
	_ authz.PermissionRepository     = permissionRepo{}
	_ authz.RoleRepository           = roleRepo{}
	_ authz.GroupRepository          = groupRepo{}
	_ authz.UserAssignmentRepository = (*Store)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		permissions:      make(map[string]authz.Permission),
		permissionsByKey: make(map[string]string),
		roles:            make(map[string]authz.Role),
		rolesByName:      make(map[string]string),
		groups:           make(map[string]authz.Group),
		userPermissions:  make(map[string][]authz.PermissionAssignment),
		userRoles:        make(map[string][]authz.RoleAssignment),
		userGroups:       make(map[string][]authz.GroupMembership),
	}
}

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
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if existing, ok := s.permissionsByKey[p.Key()]; ok && existing != p.ID {
		return authz.Permission{}, &authz.ValidationError{
			Field: "key", Value: p.Key(), Reason: "permission key already exists",
		}
	}
	s.permissions[p.ID] = p
	s.permissionsByKey[p.Key()] = p.ID
	return p, nil
}

// CreateRole stores a role, assigning an ID when empty. Name must be
// unique.
func (s *Store) CreateRole(ctx context.Context, r authz.Role) (authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if existing, ok := s.rolesByName[r.Name]; ok && existing != r.ID {
		return authz.Role{}, &authz.ValidationError{
			Field: "name", Value: r.Name, Reason: "role name already exists",
		}
	}
	s.roles[r.ID] = r
	s.rolesByName[r.Name] = r.ID
	return r, nil
}

// CreateGroup stores a group, assigning an ID when empty.
func (s *Store) CreateGroup(ctx context.Context, g authz.Group) (authz.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	s.groups[g.ID] = g
	return g, nil
}

// UpdateRole replaces a stored role.
func (s *Store) UpdateRole(ctx context.Context, r authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.roles[r.ID]
	if !ok {
		return authz.NotFoundError("role", r.ID)
	}
	if old.Name != r.Name {
		delete(s.rolesByName, old.Name)
		s.rolesByName[r.Name] = r.ID
	}
	s.roles[r.ID] = r
	return nil
}

// UpdateGroup replaces a stored group.
func (s *Store) UpdateGroup(ctx context.Context, g authz.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[g.ID]; !ok {
		return authz.NotFoundError("group", g.ID)
	}
	s.groups[g.ID] = g
	return nil
}

// permissionRepo is the PermissionRepository facet.
type permissionRepo struct{ s *Store }

// FindByID returns the permission with the given ID.
func (r permissionRepo) FindByID(ctx context.Context, id string) (*authz.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.permissions[id]
	if !ok {
		return nil, authz.NotFoundError("permission", id)
	}
	return &p, nil
}

// FindByIDs returns the permissions matching the given IDs, omitting
// missing ones.
func (r permissionRepo) FindByIDs(ctx context.Context, ids []string) ([]authz.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]authz.Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.permissions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindByKey returns the permission with the exact "resource:action" key.
func (r permissionRepo) FindByKey(ctx context.Context, resource, action string) (*authz.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	key := authz.PermissionKey(resource, action)
	id, ok := r.s.permissionsByKey[key]
	if !ok {
		return nil, authz.NotFoundError("permission", key)
	}
	p := r.s.permissions[id]
	return &p, nil
}

// FindAll returns every stored permission sorted by key.
func (r permissionRepo) FindAll(ctx context.Context) ([]authz.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]authz.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// FindByResource returns every permission on the given resource sorted
// by action.
func (r permissionRepo) FindByResource(ctx context.Context, resource string) ([]authz.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]authz.Permission, 0)
	for _, p := range r.s.permissions {
		if p.Resource == resource {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out, nil
}

// roleRepo is the RoleRepository facet.
type roleRepo struct{ s *Store }

// FindByID returns the role with the given ID.
func (r roleRepo) FindByID(ctx context.Context, id string) (*authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	role, ok := r.s.roles[id]
	if !ok {
		return nil, authz.NotFoundError("role", id)
	}
	return &role, nil
}

// FindByIDs returns the roles matching the given IDs, omitting missing
// ones.
func (r roleRepo) FindByIDs(ctx context.Context, ids []string) ([]authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]authz.Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := r.s.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

// FindByName returns the role with the given unique name.
func (r roleRepo) FindByName(ctx context.Context, name string) (*authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.rolesByName[name]
	if !ok {
		return nil, authz.NotFoundError("role", name)
	}
	role := r.s.roles[id]
	return &role, nil
}

// FindAll returns every stored role sorted by priority descending,
// then name.
func (r roleRepo) FindAll(ctx context.Context) ([]authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]authz.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// groupRepo is the GroupRepository facet.
type groupRepo struct{ s *Store }

// FindByID returns the group with the given ID.
func (r groupRepo) FindByID(ctx context.Context, id string) (*authz.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.groups[id]
	if !ok {
		return nil, authz.NotFoundError("group", id)
	}
	return &g, nil
}

// FindByIDs returns the groups matching the given IDs, omitting
// missing ones.
func (r groupRepo) FindByIDs(ctx context.Context, ids []string) ([]authz.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]authz.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := r.s.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// FindAncestors walks the parent chain root-ward from the given group,
// excluding the group itself. A visited set bounds the walk on cyclic
// parent data.
func (r groupRepo) FindAncestors(ctx context.Context, groupID string) ([]authz.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.groups[groupID]
	if !ok {
		return nil, authz.NotFoundError("group", groupID)
	}

	visited := map[string]bool{g.ID: true}
	var ancestors []authz.Group
	for g.HasParent() {
		parentID := *g.ParentID
		if visited[parentID] {
			break
		}
		parent, ok := r.s.groups[parentID]
		if !ok {
			break
		}
		visited[parentID] = true
		ancestors = append(ancestors, parent)
		g = parent
	}
	return ancestors, nil
}

// FindAll returns every stored group sorted by name.
func (r groupRepo) FindAll(ctx context.Context) ([]authz.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]authz.Group, 0, len(r.s.groups))
	for _, g := range r.s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetUserPermissions returns every direct permission assignment for
// the user, expired ones included.
func (s *Store) GetUserPermissions(ctx context.Context, userID string) ([]authz.PermissionAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]authz.PermissionAssignment{}, s.userPermissions[userID]...), nil
}

// GetUserRoles returns every role assignment for the user, expired
// ones included.
func (s *Store) GetUserRoles(ctx context.Context, userID string) ([]authz.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]authz.RoleAssignment{}, s.userRoles[userID]...), nil
}

// GetUserGroups returns every group membership for the user, expired
// ones included.
func (s *Store) GetUserGroups(ctx context.Context, userID string) ([]authz.GroupMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]authz.GroupMembership{}, s.userGroups[userID]...), nil
}

// AssignRole upserts a role assignment keyed by (user, role).
func (s *Store) AssignRole(ctx context.Context, a authz.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignments := s.userRoles[a.UserID]
	for i := range assignments {
		if assignments[i].RoleID == a.RoleID {
			assignments[i] = a
			return nil
		}
	}
	s.userRoles[a.UserID] = append(assignments, a)
	return nil
}

// RevokeRole removes a role assignment.
func (s *Store) RevokeRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignments := s.userRoles[userID]
	for i := range assignments {
		if assignments[i].RoleID == roleID {
			s.userRoles[userID] = append(assignments[:i], assignments[i+1:]...)
			return nil
		}
	}
	return authz.NotFoundError("role assignment", roleID)
}

// GrantPermission upserts a granting assignment keyed by
// (user, permission). Granting over an existing denial lifts it.
func (s *Store) GrantPermission(ctx context.Context, a authz.PermissionAssignment) error {
	return s.writePermission(a)
}

// DenyPermission upserts a denying assignment keyed by
// (user, permission).
func (s *Store) DenyPermission(ctx context.Context, a authz.PermissionAssignment) error {
	return s.writePermission(a)
}

func (s *Store) writePermission(a authz.PermissionAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignments := s.userPermissions[a.UserID]
	for i := range assignments {
		if assignments[i].PermissionID == a.PermissionID {
			assignments[i] = a
			return nil
		}
	}
	s.userPermissions[a.UserID] = append(assignments, a)
	return nil
}

// AddToGroup upserts a group membership keyed by (user, group).
func (s *Store) AddToGroup(ctx context.Context, m authz.GroupMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	memberships := s.userGroups[m.UserID]
	for i := range memberships {
		if memberships[i].GroupID == m.GroupID {
			memberships[i] = m
			return nil
		}
	}
	s.userGroups[m.UserID] = append(memberships, m)
	return nil
}

// RemoveFromGroup removes a group membership.
func (s *Store) RemoveFromGroup(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	memberships := s.userGroups[userID]
	for i := range memberships {
		if memberships[i].GroupID == groupID {
			s.userGroups[userID] = append(memberships[:i], memberships[i+1:]...)
			return nil
		}
	}
	return authz.NotFoundError("group membership", groupID)
}

// PurgeExpiredAssignments deletes every assignment whose expiry is at
// or before the cutoff and returns the affected user IDs with the
// number of rows removed. Resolution already ignores expired rows, so
// purging never changes a decision.
func (s *Store) PurgeExpiredAssignments(ctx context.Context, cutoff time.Time) ([]string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := make(map[string]bool)
	var removed int64

	for userID, assignments := range s.userPermissions {
		kept := assignments[:0]
		for _, a := range assignments {
			if a.ExpiresAt != nil && !a.ExpiresAt.After(cutoff) {
				affected[userID] = true
				removed++
				continue
			}
			kept = append(kept, a)
		}
		s.userPermissions[userID] = kept
	}
	for userID, assignments := range s.userRoles {
		kept := assignments[:0]
		for _, a := range assignments {
			if a.ExpiresAt != nil && !a.ExpiresAt.After(cutoff) {
				affected[userID] = true
				removed++
				continue
			}
			kept = append(kept, a)
		}
		s.userRoles[userID] = kept
	}
	for userID, memberships := range s.userGroups {
		kept := memberships[:0]
		for _, m := range memberships {
			if m.ExpiresAt != nil && !m.ExpiresAt.After(cutoff) {
				affected[userID] = true
				removed++
				continue
			}
			kept = append(kept, m)
		}
		s.userGroups[userID] = kept
	}

	userIDs := make([]string, 0, len(affected))
	for id := range affected {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	return userIDs, removed, nil
}

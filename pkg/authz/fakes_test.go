package authz

import (
	"context"
	"sync"
)

// fakeStore backs the repository ports with maps for tests in this
// package. Error fields inject failures, counters observe repository
// traffic, and the GetUserPermissions hook lets tests interleave work
// with an in-flight resolution.
type fakeStore struct {
	mu sync.Mutex

	perms  map[string]Permission
	roles  map[string]Role
	groups map[string]Group

	userPerms  map[string][]PermissionAssignment
	userRoles  map[string][]RoleAssignment
	userGroups map[string][]GroupMembership

	permsErr     error
	rolesErr     error
	groupsErr    error
	ancestorsErr error

	assignPermsErr  error
	assignRolesErr  error
	assignGroupsErr error
	writeErr        error

	// permissionLoads counts FindByIDs calls on permissions, i.e. full
	// resolutions reaching the batch fetch. assignmentLoads counts
	// GetUserPermissions calls.
	permissionLoads int
	assignmentLoads int

	onGetUserPermissions func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		perms:      make(map[string]Permission),
		roles:      make(map[string]Role),
		groups:     make(map[string]Group),
		userPerms:  make(map[string][]PermissionAssignment),
		userRoles:  make(map[string][]RoleAssignment),
		userGroups: make(map[string][]GroupMembership),
	}
}

func (f *fakeStore) repositories() Repositories {
	return Repositories{
		Permissions: fakePermissionRepo{f},
		Roles:       fakeRoleRepo{f},
		Groups:      fakeGroupRepo{f},
		Assignments: f,
	}
}

func (f *fakeStore) addPermission(id, resource, action string) Permission {
	p := Permission{ID: id, Resource: resource, Action: action}
	f.perms[id] = p
	return p
}

func (f *fakeStore) addRole(id, displayName string, permissionIDs ...string) Role {
	r := Role{ID: id, Name: id, DisplayName: displayName, PermissionIDs: permissionIDs}
	f.roles[id] = r
	return r
}

func (f *fakeStore) addGroup(g Group) Group {
	f.groups[g.ID] = g
	return g
}

func (f *fakeStore) loads() (permission, assignment int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permissionLoads, f.assignmentLoads
}

type fakePermissionRepo struct{ s *fakeStore }

func (r fakePermissionRepo) FindByID(ctx context.Context, id string) (*Permission, error) {
	if r.s.permsErr != nil {
		return nil, r.s.permsErr
	}
	p, ok := r.s.perms[id]
	if !ok {
		return nil, NotFoundError("permission", id)
	}
	return &p, nil
}

func (r fakePermissionRepo) FindByIDs(ctx context.Context, ids []string) ([]Permission, error) {
	r.s.mu.Lock()
	r.s.permissionLoads++
	r.s.mu.Unlock()
	if r.s.permsErr != nil {
		return nil, r.s.permsErr
	}
	out := make([]Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r fakePermissionRepo) FindByKey(ctx context.Context, resource, action string) (*Permission, error) {
	if r.s.permsErr != nil {
		return nil, r.s.permsErr
	}
	for _, p := range r.s.perms {
		if p.Resource == resource && p.Action == action {
			found := p
			return &found, nil
		}
	}
	return nil, NotFoundError("permission", PermissionKey(resource, action))
}

func (r fakePermissionRepo) FindAll(ctx context.Context) ([]Permission, error) {
	if r.s.permsErr != nil {
		return nil, r.s.permsErr
	}
	out := make([]Permission, 0, len(r.s.perms))
	for _, p := range r.s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (r fakePermissionRepo) FindByResource(ctx context.Context, resource string) ([]Permission, error) {
	if r.s.permsErr != nil {
		return nil, r.s.permsErr
	}
	out := make([]Permission, 0)
	for _, p := range r.s.perms {
		if p.Resource == resource {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeRoleRepo struct{ s *fakeStore }

func (r fakeRoleRepo) FindByID(ctx context.Context, id string) (*Role, error) {
	if r.s.rolesErr != nil {
		return nil, r.s.rolesErr
	}
	role, ok := r.s.roles[id]
	if !ok {
		return nil, NotFoundError("role", id)
	}
	return &role, nil
}

func (r fakeRoleRepo) FindByIDs(ctx context.Context, ids []string) ([]Role, error) {
	if r.s.rolesErr != nil {
		return nil, r.s.rolesErr
	}
	out := make([]Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := r.s.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r fakeRoleRepo) FindByName(ctx context.Context, name string) (*Role, error) {
	if r.s.rolesErr != nil {
		return nil, r.s.rolesErr
	}
	for _, role := range r.s.roles {
		if role.Name == name {
			found := role
			return &found, nil
		}
	}
	return nil, NotFoundError("role", name)
}

func (r fakeRoleRepo) FindAll(ctx context.Context) ([]Role, error) {
	if r.s.rolesErr != nil {
		return nil, r.s.rolesErr
	}
	out := make([]Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, role)
	}
	return out, nil
}

type fakeGroupRepo struct{ s *fakeStore }

func (r fakeGroupRepo) FindByID(ctx context.Context, id string) (*Group, error) {
	if r.s.groupsErr != nil {
		return nil, r.s.groupsErr
	}
	g, ok := r.s.groups[id]
	if !ok {
		return nil, NotFoundError("group", id)
	}
	return &g, nil
}

func (r fakeGroupRepo) FindByIDs(ctx context.Context, ids []string) ([]Group, error) {
	if r.s.groupsErr != nil {
		return nil, r.s.groupsErr
	}
	out := make([]Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := r.s.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r fakeGroupRepo) FindAncestors(ctx context.Context, groupID string) ([]Group, error) {
	if r.s.ancestorsErr != nil {
		return nil, r.s.ancestorsErr
	}
	g, ok := r.s.groups[groupID]
	if !ok {
		return nil, NotFoundError("group", groupID)
	}
	visited := map[string]bool{g.ID: true}
	out := make([]Group, 0)
	for g.HasParent() {
		parent, ok := r.s.groups[*g.ParentID]
		if !ok || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		out = append(out, parent)
		g = parent
	}
	return out, nil
}

func (r fakeGroupRepo) FindAll(ctx context.Context) ([]Group, error) {
	if r.s.groupsErr != nil {
		return nil, r.s.groupsErr
	}
	out := make([]Group, 0, len(r.s.groups))
	for _, g := range r.s.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) GetUserPermissions(ctx context.Context, userID string) ([]PermissionAssignment, error) {
	f.mu.Lock()
	f.assignmentLoads++
	hook := f.onGetUserPermissions
	out := append([]PermissionAssignment{}, f.userPerms[userID]...)
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.assignPermsErr != nil {
		return nil, f.assignPermsErr
	}
	return out, nil
}

func (f *fakeStore) GetUserRoles(ctx context.Context, userID string) ([]RoleAssignment, error) {
	if f.assignRolesErr != nil {
		return nil, f.assignRolesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoleAssignment{}, f.userRoles[userID]...), nil
}

func (f *fakeStore) GetUserGroups(ctx context.Context, userID string) ([]GroupMembership, error) {
	if f.assignGroupsErr != nil {
		return nil, f.assignGroupsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GroupMembership{}, f.userGroups[userID]...), nil
}

func (f *fakeStore) AssignRole(ctx context.Context, a RoleAssignment) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.userRoles[a.UserID]
	for i := range list {
		if list[i].RoleID == a.RoleID {
			list[i] = a
			return nil
		}
	}
	f.userRoles[a.UserID] = append(list, a)
	return nil
}

func (f *fakeStore) RevokeRole(ctx context.Context, userID, roleID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.userRoles[userID]
	for i := range list {
		if list[i].RoleID == roleID {
			f.userRoles[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return NotFoundError("role assignment", roleID)
}

func (f *fakeStore) GrantPermission(ctx context.Context, a PermissionAssignment) error {
	return f.upsertPermission(a)
}

func (f *fakeStore) DenyPermission(ctx context.Context, a PermissionAssignment) error {
	return f.upsertPermission(a)
}

func (f *fakeStore) upsertPermission(a PermissionAssignment) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.userPerms[a.UserID]
	for i := range list {
		if list[i].PermissionID == a.PermissionID {
			list[i] = a
			return nil
		}
	}
	f.userPerms[a.UserID] = append(list, a)
	return nil
}

func (f *fakeStore) AddToGroup(ctx context.Context, m GroupMembership) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.userGroups[m.UserID]
	for i := range list {
		if list[i].GroupID == m.GroupID {
			list[i] = m
			return nil
		}
	}
	f.userGroups[m.UserID] = append(list, m)
	return nil
}

func (f *fakeStore) RemoveFromGroup(ctx context.Context, userID, groupID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.userGroups[userID]
	for i := range list {
		if list[i].GroupID == groupID {
			f.userGroups[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return NotFoundError("group membership", groupID)
}

// fakeCache is an in-memory ContextCache with injectable failures and
// call counters.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*UserAuthContext

	getErr           error
	setErr           error
	invalidateErr    error
	invalidateAllErr error

	sets           int
	invalidations  int
	invalidateAlls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*UserAuthContext)}
}

func (c *fakeCache) Get(ctx context.Context, userID string) (*UserAuthContext, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[userID], nil
}

func (c *fakeCache) Set(ctx context.Context, userID string, authCtx *UserAuthContext) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = authCtx
	c.sets++
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, userID string) error {
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.invalidations++
	return nil
}

func (c *fakeCache) InvalidateAll(ctx context.Context) error {
	if c.invalidateAllErr != nil {
		return c.invalidateAllErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*UserAuthContext)
	c.invalidateAlls++
	return nil
}

func (c *fakeCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

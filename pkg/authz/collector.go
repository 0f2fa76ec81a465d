package authz

// collectedEntry accumulates the sources and running decision for one
// permission ID while a resolution is in flight.
type collectedEntry struct {
	sources []PermissionSource
	// denied is sticky: once a direct denial arrives the permission
	// stays denied no matter what is added afterwards.
	denied bool
	// granted records that at least one grant contribution arrived.
	granted bool
}

func (e *collectedEntry) effective() bool {
	return e.granted && !e.denied
}

// PermissionCollector aggregates permission contributions from direct
// assignments, roles and groups, applying the precedence contract:
//
//   - a direct denial always wins, regardless of the order in which
//     contributions arrive
//   - a direct grant allows the permission unless denied
//   - role and group contributions only ever add grants
//   - every contribution is recorded as a source, even on a denied
//     permission, so the audit trail stays complete
//
// The decision is recomputed on every Add call, so a denial arriving
// after a grant retroactively suppresses it. A collector is not safe
// for concurrent use; each resolution drives its own.
type PermissionCollector struct {
	entries map[string]*collectedEntry
	order   []string
}

// NewPermissionCollector returns an empty collector.
func NewPermissionCollector() *PermissionCollector {
	return &PermissionCollector{
		entries: make(map[string]*collectedEntry),
	}
}

func (c *PermissionCollector) entry(permissionID string) *collectedEntry {
	e, ok := c.entries[permissionID]
	if !ok {
		e = &collectedEntry{}
		c.entries[permissionID] = e
		c.order = append(c.order, permissionID)
	}
	return e
}

// AddDirect records a permission assigned straight to the user. A
// granted=false call is an explicit denial and permanently wins over
// every grant of the same permission.
func (c *PermissionCollector) AddDirect(permissionID string, granted bool, userID string) {
	e := c.entry(permissionID)
	e.sources = append(e.sources, PermissionSource{
		Type:       SourceDirect,
		SourceID:   userID,
		SourceName: "direct",
	})
	if granted {
		e.granted = true
	} else {
		e.denied = true
	}
}

// AddFromRole records a permission contributed by an assigned role.
// Roles can only grant; an earlier denial still stands.
func (c *PermissionCollector) AddFromRole(permissionID, roleID, roleName string) {
	e := c.entry(permissionID)
	e.sources = append(e.sources, PermissionSource{
		Type:       SourceRole,
		SourceID:   roleID,
		SourceName: roleName,
	})
	e.granted = true
}

// AddFromGroup records a permission contributed by a group. The name is
// the group's display name, or "Group → Role" when the permission
// reaches the group through one of its attached roles. Inherited marks
// contributions from ancestor groups. Groups can only grant.
func (c *PermissionCollector) AddFromGroup(permissionID, groupID, groupName string, inherited bool) {
	e := c.entry(permissionID)
	e.sources = append(e.sources, PermissionSource{
		Type:       SourceGroup,
		SourceID:   groupID,
		SourceName: groupName,
		Inherited:  inherited,
	})
	e.granted = true
}

// PermissionIDs returns every collected permission ID in first-seen
// order, for the batch entity fetch that precedes Resolve.
func (c *PermissionCollector) PermissionIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// Resolve materializes the collected contributions against the fetched
// permission entities. IDs missing from the map are stale references
// (the permission was deleted after being attached somewhere) and are
// dropped silently; the remaining entries each yield exactly one
// ResolvedPermission.
func (c *PermissionCollector) Resolve(permissionsByID map[string]Permission) []ResolvedPermission {
	resolved := make([]ResolvedPermission, 0, len(c.order))
	for _, id := range c.order {
		perm, ok := permissionsByID[id]
		if !ok {
			continue
		}
		e := c.entries[id]
		sources := make([]PermissionSource, len(e.sources))
		copy(sources, e.sources)
		resolved = append(resolved, ResolvedPermission{
			Permission: perm,
			Sources:    sources,
			Granted:    e.effective(),
		})
	}
	return resolved
}

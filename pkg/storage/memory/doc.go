// Package memory provides an in-process implementation of the authz
// repository ports.
//
// # Overview
//
// The Store keeps permissions, roles, groups and user assignments in
// maps guarded by one RWMutex. It is the daemon's default backend, the
// fixture store for tests, and the quickest way to embed the engine
// without external infrastructure.
//
// # Usage Example
//
//	store := memory.NewStore()
//
//	perm, _ := authz.NewPermission("resume", "read", "")
//	perm, _ = store.CreatePermission(ctx, perm)
//
//	role, _ := authz.NewRole("editor", "Editor", "", 100)
//	role, _ = store.CreateRole(ctx, role.WithPermissions(perm.ID))
//
//	engine := authz.NewEngine(store.Repositories(), authz.Options{})
//
// # Facets
//
// The entity ports share method names, so one Store cannot satisfy all
// of them directly. Permissions(), Roles() and Groups() return facet
// views over the same data; Repositories() bundles everything.
//
// # Related Packages
//
//   - pkg/storage/postgres: the production PostgreSQL backend
//   - pkg/catalog: seeds a Store from the embedded catalogue
package memory

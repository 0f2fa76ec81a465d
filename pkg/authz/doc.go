// Package authz implements a dynamic permission-resolution engine
// combining role-based access control, direct per-user grants and
// denials, and nested group inheritance, with per-user caching behind
// explicit invalidation.
//
// # Overview
//
// A user's effective permissions come from three places:
//
//  1. Direct assignments: a permission granted or explicitly denied to
//     the user. A denial always wins over every grant of the same
//     permission, whatever its source.
//  2. Roles: named permission bundles assigned to the user, optionally
//     with an expiry.
//  3. Groups: users join groups; groups carry their own permissions and
//     roles, and nest through a parent pointer. Members inherit from
//     every ancestor group.
//
// The engine resolves these into a UserAuthContext: one
// ResolvedPermission per distinct permission, each carrying the full
// list of sources that contributed it, granted or not.
//
// # Permissions
//
// A permission pairs a resource with an action, keyed "resource:action":
//
//	perm, err := authz.NewPermission("resume", "read", "View resumes")
//	perm.Key() // "resume:read"
//
// Matching is wider than equality: a "resume:manage" permission matches
// every action on resume, and "*:manage" matches everything. Resource
// and action are lowercase tokens; only the resource may be the literal
// "*", and only together with the "manage" action.
//
// # Precedence
//
// The PermissionCollector enforces the precedence contract. Direct
// denials are sticky: once recorded, no grant of that permission from
// any source can win, no matter the order contributions arrive in.
// Roles and groups can only add grants. Every contribution stays in
// the source list for audit, even under a denial.
//
// # Resolution
//
// Resolver.ResolveUserContext loads the user's assignments in parallel,
// drops expired ones, expands direct groups into their ancestor closure
// (cycle-safe), feeds a collector, and materializes the result against
// the permission entities. Assignments pointing at deleted entities are
// skipped silently.
//
//	resolver := authz.NewResolver(repos)
//	authCtx, err := resolver.ResolveUserContext(ctx, userID)
//	for _, rp := range authCtx.Permissions {
//		fmt.Printf("%s granted=%v via %d sources\n",
//			rp.Permission.Key(), rp.Granted, len(rp.Sources))
//	}
//
// Resolver.HasPermission short-circuits: an active direct assignment
// for the exact requested key is authoritative, grant or deny, without
// touching roles or groups.
//
// # Caching and invalidation
//
// AuthorizationService caches resolved contexts per user in an injected
// ContextCache and answers all queries from them:
//
//	service := authz.NewAuthorizationService(resolver, cache, metrics)
//	allowed, err := service.HasPermission(ctx, userID, "resume", "read")
//
// Contexts populate lazily. Correctness rests on explicit invalidation,
// not TTLs: every mutation invalidates the affected user synchronously.
// Concurrent misses for one user collapse into a single resolution, and
// a generation counter guarantees a resolution racing an invalidation
// can never write a superseded context back.
//
// # Mutations
//
// ManagementService performs the six assignment mutations:
//
//	err := mgmt.AssignRole(ctx, userID, roleID, authz.AssignOptions{
//		Actor:     adminID,
//		ExpiresAt: &nextWeek,
//	})
//
// Each validates the referenced entity (ErrNotFound otherwise), writes
// through the assignment repository, invalidates the user's cache
// entry, records an audit event and publishes a domain event
// (authz.role_assigned, authz.permission_denied, ...). Grants and
// assignments are upserts: repeating one refreshes expiry and assigner
// instead of duplicating.
//
// # HTTP integration
//
// Middleware guards routes; Handlers expose the engine's API:
//
//	engine := authz.NewEngine(repos, authz.Options{Cache: cache})
//	router.Handle("/resumes",
//		engine.Middleware.RequirePermission("resume", "list")(listHandler),
//	).Methods("GET")
//	engine.RegisterRoutes(router)
//
// # Storage
//
// Repositories are ports. pkg/storage/postgres implements them on
// PostgreSQL, pkg/storage/memory in process memory; pkg/cache/memory
// and pkg/cache/redis provide the two ContextCache backends.
package authz

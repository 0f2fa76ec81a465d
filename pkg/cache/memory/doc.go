// Package memory provides an in-process authz.ContextCache backed by
// an expirable LRU.
//
// # Overview
//
// Resolved user contexts are kept in a size-bounded LRU. The engine
// invalidates entries explicitly whenever assignments change, so the
// TTL is a safety net against missed invalidations rather than the
// consistency mechanism. Hit and miss counters are exposed through
// Stats for operational visibility.
//
// # Usage Example
//
//	cache := memory.NewCache(&memory.Config{
//		MaxEntries: 50000,
//		TTL:        15 * time.Minute,
//	})
//
//	engine := authz.NewEngine(repos, authz.Options{Cache: cache})
//
// # Related Packages
//
//   - pkg/cache/redis: the shared cache for multi-instance deployments
package memory

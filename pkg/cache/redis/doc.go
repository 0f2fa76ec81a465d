// Package redis provides an authz.ContextCache backed by Redis for
// deployments running more than one engine instance.
//
// # Overview
//
// Resolved user contexts are stored as JSON under authz:ctx:<userID>,
// so an invalidation issued by any instance is seen by all of them.
// Misses return (nil, nil); entries that no longer unmarshal are
// deleted instead of served. InvalidateAll scans the key prefix rather
// than flushing the database, which keeps a shared Redis safe.
//
// # Usage Example
//
//	cache, err := redis.NewCache(redis.Config{
//		URL: "redis://localhost:6379",
//		TTL: 15 * time.Minute,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cache.Close()
//
//	engine := authz.NewEngine(repos, authz.Options{Cache: cache})
//
// # Related Packages
//
//   - pkg/cache/memory: the in-process cache for single-instance use
package redis

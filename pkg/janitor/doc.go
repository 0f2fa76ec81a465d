// Package janitor sweeps expired user assignments out of storage.
//
// # Overview
//
// Assignments with a past expiry are already invisible to resolution;
// the rows linger only as history. The janitor removes them on a cron
// schedule and invalidates the cached contexts of the affected users,
// which is what flips decisions that were cached while an assignment
// was still active.
//
// # Usage Example
//
//	j := janitor.New(store, engine.Authz, metrics, janitor.Config{
//		Schedule:  "@every 10m",
//		Retention: 24 * time.Hour,
//	})
//	if err := j.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer j.Stop()
package janitor

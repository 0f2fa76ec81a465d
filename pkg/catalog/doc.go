// Package catalog defines the static authorization configuration: the
// permissions the system knows about and the built-in role bundles.
//
// # Overview
//
// A catalogue is a YAML document listing resources with their actions
// and roles with their permission keys. The engine consumes it, never
// produces it: Seed applies a catalogue to a store additively, and the
// Watcher picks up edits to a catalogue file at runtime. An embedded
// default catalogue ships with the module.
//
// # Usage Example
//
//	c, err := catalog.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	store := memory.NewStore()
//	if err := catalog.Seed(ctx, store, c); err != nil {
//		log.Fatal(err)
//	}
//
//	w, err := catalog.NewWatcher(cfg.Catalog.Path, func(c *catalog.Catalog) {
//		catalog.Seed(ctx, store, c)
//		engine.Authz.InvalidateAllCaches(ctx)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer w.Close()
//	w.Start(ctx)
//
// # Related Packages
//
//   - pkg/storage/memory: the store the daemon seeds from the catalogue
package catalog

// Package postgres provides the PostgreSQL implementation of the authz
// repository ports.
//
// # Overview
//
// The Store runs plain SQL through database/sql and the lib/pq driver.
// Permission bundles on roles and groups live in JSON columns, mirroring
// how the entities carry them; assignments are rows keyed by
// (user, target) and upserted with ON CONFLICT. Expiry filtering stays
// in the resolver: reads return expired rows so every component shares
// one clock, and PurgeExpiredAssignments reclaims them without changing
// any decision.
//
// # Usage Example
//
//	db, err := postgres.Connect(ctx, postgres.Config{
//		URL:      cfg.Storage.PostgresURL,
//		MaxConns: cfg.Storage.PostgresMaxConns,
//		MinConns: cfg.Storage.PostgresMinConns,
//		Timeout:  cfg.Storage.PostgresTimeout,
//	})
//	if err != nil {
//		return err
//	}
//	if err := postgres.RunMigrations(ctx, db); err != nil {
//		return err
//	}
//
//	store := postgres.NewStore(db)
//	engine := authz.NewEngine(store.Repositories(), authz.Options{})
//
// # Schema
//
// Migrations() lists the versioned schema; RunMigrations applies the
// pending ones inside per-migration transactions and records them in
// authz_migrations. The SQL sticks to the portable subset both
// PostgreSQL and SQLite accept, which lets the package tests run the
// real migrations against an in-memory SQLite database while
// integration tests (build tag "integration") exercise a containerized
// PostgreSQL.
//
// # Facets
//
// The entity ports share method names, so one Store cannot satisfy all
// of them directly. Permissions(), Roles() and Groups() return facet
// views over the same handle; Repositories() bundles everything.
//
// # Related Packages
//
//   - pkg/storage/memory: the in-process backend with the same surface
//   - pkg/janitor: drives PurgeExpiredAssignments on a schedule
package postgres

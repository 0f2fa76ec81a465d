package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/resumekit/authz/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema migrations in order. IDs are opaque
// text tokens assigned by the application, never database serials, so
// the same identifiers work across backends and survive dump/restore.
// Role and group permission bundles live in JSON columns the way the
// entities carry them; assignments are rows keyed by (user, target).
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id TEXT PRIMARY KEY,
					resource TEXT NOT NULL,
					action TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (resource, action)
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_resource ON permissions(resource);
			`,
		},
		{
			Version:     2,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					display_name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					priority INTEGER NOT NULL DEFAULT 0,
					permission_ids JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_roles_name ON roles(name);
			`,
		},
		{
			Version:     3,
			Description: "Create groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					display_name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					parent_id TEXT REFERENCES groups(id) ON DELETE SET NULL,
					permission_ids JSONB NOT NULL DEFAULT '[]',
					role_ids JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_groups_parent_id ON groups(parent_id);
			`,
		},
		{
			Version:     4,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					user_id TEXT NOT NULL,
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					expires_at TIMESTAMP,
					assigned_by TEXT,
					assigned_at TIMESTAMP NOT NULL,
					PRIMARY KEY (user_id, role_id)
				);

				CREATE INDEX IF NOT EXISTS idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX IF NOT EXISTS idx_user_roles_expires_at ON user_roles(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create user_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_permissions (
					user_id TEXT NOT NULL,
					permission_id TEXT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					granted BOOLEAN NOT NULL,
					reason TEXT,
					expires_at TIMESTAMP,
					assigned_by TEXT,
					assigned_at TIMESTAMP NOT NULL,
					PRIMARY KEY (user_id, permission_id)
				);

				CREATE INDEX IF NOT EXISTS idx_user_permissions_user_id ON user_permissions(user_id);
				CREATE INDEX IF NOT EXISTS idx_user_permissions_expires_at ON user_permissions(expires_at);
			`,
		},
		{
			Version:     6,
			Description: "Create user_groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_groups (
					user_id TEXT NOT NULL,
					group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					expires_at TIMESTAMP,
					assigned_by TEXT,
					assigned_at TIMESTAMP NOT NULL,
					PRIMARY KEY (user_id, group_id)
				);

				CREATE INDEX IF NOT EXISTS idx_user_groups_user_id ON user_groups(user_id);
				CREATE INDEX IF NOT EXISTS idx_user_groups_expires_at ON user_groups(expires_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations inside per-migration
// transactions, recording each in authz_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	logger := observability.GetLogger(ctx).WithField("component", "migrations")

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("migration applied")
	}

	return nil
}

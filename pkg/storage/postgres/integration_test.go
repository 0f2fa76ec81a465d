//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/resumekit/authz/pkg/authz"
)

// setupPostgres starts a disposable PostgreSQL container and applies
// the real migrations. The portable-SQL paths the sqlite tests cover
// run here against the actual server, most importantly the ON CONFLICT
// upserts, the JSONB bundles and DELETE ... RETURNING.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:15-alpine",
		pgcontainer.WithDatabase("authz_test"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		pgcontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Connect(ctx, Config{URL: connStr, MaxConns: 5, MinConns: 1, Timeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(ctx, db), "Failed to run migrations")
	return db
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupPostgres(t)
	s := NewStore(db)
	ctx := context.Background()

	read, err := authz.NewPermission("resume", "read", "Read resumes")
	require.NoError(t, err)
	read, err = s.CreatePermission(ctx, read)
	require.NoError(t, err)

	del, err := authz.NewPermission("resume", "delete", "")
	require.NoError(t, err)
	del, err = s.CreatePermission(ctx, del)
	require.NoError(t, err)

	editor, err := authz.NewRole("editor", "Editor", "", 100)
	require.NoError(t, err)
	editor, err = s.CreateRole(ctx, editor.WithPermissions(read.ID, del.ID))
	require.NoError(t, err)

	t.Run("duplicate keys surface as validation errors", func(t *testing.T) {
		dup, err := authz.NewPermission("resume", "read", "again")
		require.NoError(t, err)
		_, err = s.CreatePermission(ctx, dup)
		assert.True(t, authz.IsValidation(err), "expected ValidationError, got %v", err)

		dupRole, err := authz.NewRole("editor", "Editor Again", "", 50)
		require.NoError(t, err)
		_, err = s.CreateRole(ctx, dupRole)
		assert.True(t, authz.IsValidation(err), "expected ValidationError, got %v", err)
	})

	t.Run("role bundle survives the jsonb round trip", func(t *testing.T) {
		got, err := s.Roles().FindByName(ctx, "editor")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{read.ID, del.ID}, got.PermissionIDs)
	})

	t.Run("assignment upsert replaces the row", func(t *testing.T) {
		first := authz.RoleAssignment{UserID: "u1", RoleID: editor.ID, AssignedAt: time.Now().UTC()}
		require.NoError(t, s.AssignRole(ctx, first))

		expiry := time.Now().Add(time.Hour).UTC()
		second := authz.RoleAssignment{UserID: "u1", RoleID: editor.ID, ExpiresAt: &expiry, AssignedAt: time.Now().UTC()}
		require.NoError(t, s.AssignRole(ctx, second))

		assignments, err := s.GetUserRoles(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, assignments, 1)
		assert.NotNil(t, assignments[0].ExpiresAt)
	})

	t.Run("ancestor walk over real foreign keys", func(t *testing.T) {
		root, err := authz.NewGroup("org", "Org", "")
		require.NoError(t, err)
		root, err = s.CreateGroup(ctx, root)
		require.NoError(t, err)

		leaf, err := authz.NewGroup("team", "Team", "")
		require.NoError(t, err)
		leaf, err = s.CreateGroup(ctx, leaf.WithParent(root.ID))
		require.NoError(t, err)

		ancestors, err := s.Groups().FindAncestors(ctx, leaf.ID)
		require.NoError(t, err)
		require.Len(t, ancestors, 1)
		assert.Equal(t, root.ID, ancestors[0].ID)
	})

	t.Run("purge deletes with returning", func(t *testing.T) {
		past := time.Now().Add(-time.Minute).UTC()
		expired := authz.PermissionAssignment{
			UserID: "u2", PermissionID: read.ID,
			Granted: true, ExpiresAt: &past, AssignedAt: past,
		}
		require.NoError(t, s.GrantPermission(ctx, expired))

		affected, removed, err := s.PurgeExpiredAssignments(ctx, time.Now())
		require.NoError(t, err)
		assert.EqualValues(t, 1, removed)
		assert.Equal(t, []string{"u2"}, affected)

		rows, err := s.GetUserPermissions(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("engine resolves over the real server", func(t *testing.T) {
		engine := authz.NewEngine(s.Repositories(), authz.Options{})

		require.NoError(t, engine.Management.AssignRole(ctx, "u3", editor.ID, authz.AssignOptions{}))

		allowed, err := engine.Authz.HasPermission(ctx, "u3", "resume", "read")
		require.NoError(t, err)
		assert.True(t, allowed)

		require.NoError(t, engine.Management.DenyPermission(ctx, "u3", del.ID, authz.AssignOptions{Reason: "offboarding"}))

		allowed, err = engine.Authz.HasPermission(ctx, "u3", "resume", "delete")
		require.NoError(t, err)
		assert.False(t, allowed, "denial must override the role grant")
	})
}

package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/resumekit/authz/pkg/authz"
)

// SeedTarget is the slice of a store the seeder writes to. The memory
// backend satisfies it.
type SeedTarget interface {
	Permissions() authz.PermissionRepository
	CreatePermission(ctx context.Context, p authz.Permission) (authz.Permission, error)
	CreateRole(ctx context.Context, r authz.Role) (authz.Role, error)
}

// Seed writes the catalogue's permissions and roles into the target as
// system entities. Seeding is additive and idempotent: entities that
// already exist are left untouched, so a reloaded catalogue can be
// re-applied to a live store. Changing an existing role's bundle
// therefore requires administrative action, not just a catalogue edit.
func Seed(ctx context.Context, target SeedTarget, c *Catalog) error {
	idsByKey := make(map[string]string)

	for _, res := range c.Resources {
		for _, action := range res.Actions {
			p, err := authz.NewPermission(res.Name, action, res.Description)
			if err != nil {
				return fmt.Errorf("invalid catalogue permission %s: %w", authz.PermissionKey(res.Name, action), err)
			}
			created, err := target.CreatePermission(ctx, p.AsSystem())
			switch {
			case err == nil:
				idsByKey[created.Key()] = created.ID
			case authz.IsValidation(err):
				existing, lookupErr := target.Permissions().FindByKey(ctx, res.Name, action)
				if lookupErr != nil {
					return fmt.Errorf("failed to look up existing permission %s: %w", p.Key(), lookupErr)
				}
				idsByKey[existing.Key()] = existing.ID
			default:
				return fmt.Errorf("failed to seed permission %s: %w", p.Key(), err)
			}
		}
	}

	for _, def := range c.Roles {
		role, err := authz.NewRole(def.Name, def.DisplayName, def.Description, def.Priority)
		if err != nil {
			return fmt.Errorf("invalid catalogue role %s: %w", def.Name, err)
		}
		permissionIDs := make([]string, 0, len(def.Permissions))
		for _, key := range def.Permissions {
			id, ok := idsByKey[key]
			if !ok {
				resource, action, _ := strings.Cut(key, ":")
				existing, lookupErr := target.Permissions().FindByKey(ctx, resource, action)
				if lookupErr != nil {
					return fmt.Errorf("role %s references unknown permission %s: %w", def.Name, key, lookupErr)
				}
				id = existing.ID
			}
			permissionIDs = append(permissionIDs, id)
		}
		role.IsSystem = true
		if _, err := target.CreateRole(ctx, role.WithPermissions(permissionIDs...)); err != nil {
			if authz.IsValidation(err) {
				continue
			}
			return fmt.Errorf("failed to seed role %s: %w", def.Name, err)
		}
	}
	return nil
}

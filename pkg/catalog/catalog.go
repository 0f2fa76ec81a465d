package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/resumekit/authz/pkg/authz"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog is the static authorization configuration: every permission
// the system knows about, grouped by resource, and the built-in role
// bundles referencing them by "resource:action" key.
type Catalog struct {
	Version   int        `yaml:"version"`
	Resources []Resource `yaml:"resources"`
	Roles     []RoleDef  `yaml:"roles"`
}

// Resource declares a protected entity type and the actions defined
// on it.
type Resource struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Actions     []string `yaml:"actions"`
}

// RoleDef declares a role bundle. Permissions are "resource:action"
// keys into the catalogue's resources.
type RoleDef struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description,omitempty"`
	Priority    int      `yaml:"priority"`
	Permissions []string `yaml:"permissions"`
}

// Parse unmarshals and validates a catalogue document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses a catalogue file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid catalogue %s: %w", path, err)
	}
	return c, nil
}

// Default returns the embedded catalogue.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Validate checks structural integrity: token rules are the engine's
// own (delegated to the entity factories), names are unique, and every
// role permission key resolves to a declared resource action.
func (c *Catalog) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported catalogue version %d", c.Version)
	}
	if len(c.Resources) == 0 {
		return fmt.Errorf("catalogue declares no resources")
	}

	keys := make(map[string]bool)
	seenResources := make(map[string]bool)
	for _, res := range c.Resources {
		if seenResources[res.Name] {
			return fmt.Errorf("duplicate resource %q", res.Name)
		}
		seenResources[res.Name] = true
		if len(res.Actions) == 0 {
			return fmt.Errorf("resource %q declares no actions", res.Name)
		}
		seenActions := make(map[string]bool)
		for _, action := range res.Actions {
			if seenActions[action] {
				return fmt.Errorf("resource %q repeats action %q", res.Name, action)
			}
			seenActions[action] = true
			if _, err := authz.NewPermission(res.Name, action, ""); err != nil {
				return fmt.Errorf("resource %q action %q: %w", res.Name, action, err)
			}
			keys[authz.PermissionKey(res.Name, action)] = true
		}
	}

	seenRoles := make(map[string]bool)
	for _, role := range c.Roles {
		if seenRoles[role.Name] {
			return fmt.Errorf("duplicate role %q", role.Name)
		}
		seenRoles[role.Name] = true
		if _, err := authz.NewRole(role.Name, role.DisplayName, role.Description, role.Priority); err != nil {
			return fmt.Errorf("role %q: %w", role.Name, err)
		}
		if len(role.Permissions) == 0 {
			return fmt.Errorf("role %q declares no permissions", role.Name)
		}
		for _, key := range role.Permissions {
			if _, _, ok := strings.Cut(key, ":"); !ok {
				return fmt.Errorf("role %q permission %q is not a resource:action key", role.Name, key)
			}
			if !keys[key] {
				return fmt.Errorf("role %q references undeclared permission %q", role.Name, key)
			}
		}
	}
	return nil
}

// PermissionKeys returns every "resource:action" key in declaration
// order.
func (c *Catalog) PermissionKeys() []string {
	var out []string
	for _, res := range c.Resources {
		for _, action := range res.Actions {
			out = append(out, authz.PermissionKey(res.Name, action))
		}
	}
	return out
}

// Role returns the named role bundle.
func (c *Catalog) Role(name string) (RoleDef, bool) {
	for _, role := range c.Roles {
		if role.Name == name {
			return role, true
		}
	}
	return RoleDef{}, false
}

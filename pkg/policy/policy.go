// Package policy holds the static route policy table consulted by the
// authorization pipeline. Policies are keyed by gorilla/mux route name and are
// built once at startup, either in code or from a YAML file.
package policy

import (
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/carepoint/gatekeeper/pkg/rbac"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// RequiredPermission is the fine-grained permission a route demands
type RequiredPermission struct {
	Resource         rbac.Resource `yaml:"resource"`
	Action           rbac.Action   `yaml:"action"`
	RequireOwnership bool          `yaml:"requireOwnership"`
	// ResourceIDParam names the mux variable holding the target resource id
	ResourceIDParam string `yaml:"resourceIdParam"`
}

// Permission returns the rbac permission
func (p *RequiredPermission) Permission() rbac.Permission {
	return rbac.Permission{Resource: p.Resource, Action: p.Action}
}

// Route is the declared metadata of one route
type Route struct {
	Public         bool                `yaml:"public"`
	AllowedRoles   []string            `yaml:"allowedRoles"`
	Permission     *RequiredPermission `yaml:"permission"`
	OriginFiltered bool                `yaml:"originFiltered"`
}

// Table maps route names to their policies. It is read-only after Build.
type Table struct {
	routes map[string]Route
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{routes: make(map[string]Route)}
}

// Add registers the policy for a named route
func (t *Table) Add(name string, route Route) *Table {
	t.routes[name] = route
	return t
}

// Lookup returns the policy for a route name
func (t *Table) Lookup(name string) (Route, bool) {
	route, ok := t.routes[name]
	return route, ok
}

// ForRequest returns the policy of the mux route matched for r. Unnamed or
// unregistered routes get the zero policy: authenticated, no role or
// permission restriction.
func (t *Table) ForRequest(r *http.Request) (string, Route) {
	current := mux.CurrentRoute(r)
	if current == nil {
		return "", Route{}
	}
	name := current.GetName()
	return name, t.routes[name]
}

// Names returns the registered route names in sorted order
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.routes))
	for name := range t.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every policy against the role table
func (t *Table) Validate(roles *rbac.Roles) error {
	for _, name := range t.Names() {
		route := t.routes[name]
		if route.Public && (len(route.AllowedRoles) > 0 || route.Permission != nil) {
			return fmt.Errorf("route %s: public routes cannot declare roles or permissions", name)
		}
		for _, role := range route.AllowedRoles {
			if _, ok := roles.Lookup(role); !ok {
				return fmt.Errorf("route %s: %w: %s", name, rbac.ErrUnknownRole, role)
			}
		}
		if p := route.Permission; p != nil {
			if p.Resource == "" || p.Action == "" {
				return fmt.Errorf("route %s: permission needs resource and action", name)
			}
			if p.RequireOwnership && p.ResourceIDParam == "" {
				return fmt.Errorf("route %s: requireOwnership needs resourceIdParam", name)
			}
		}
	}
	return nil
}

type tableFile struct {
	Routes map[string]Route `yaml:"routes"`
}

// Parse decodes a YAML policy table
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse route policies: %w", err)
	}
	t := NewTable()
	for name, route := range file.Routes {
		t.Add(name, route)
	}
	return t, nil
}

// Load reads a YAML policy table from path
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route policies: %w", err)
	}
	return Parse(data)
}

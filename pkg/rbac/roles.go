package rbac

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownRole is returned for roles missing from the table
var ErrUnknownRole = errors.New("unknown role")

// Roles is an immutable set of role definitions
type Roles struct {
	byName map[string]*RoleDefinition
}

// DefaultRoles returns the built-in role table
func DefaultRoles() *Roles {
	roles, err := NewRoles(builtinRoles())
	if err != nil {
		panic(fmt.Sprintf("rbac: built-in roles are invalid: %v", err))
	}
	return roles
}

func builtinRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Role:             RoleSuperAdmin,
			Hierarchy:        1,
			Permissions:      []string{Wildcard},
			OwnershipExempt:  true,
			EmergencyTrusted: true,
			Unrestricted:     true,
			AssignAny:        true,
		},
		{
			Role:      RoleClinicAdmin,
			Hierarchy: 2,
			Permissions: []string{
				"patients:*", "appointments:*", "users:*", "billing:*", "settings:*",
				"medical_records:read", "clinics:read", "clinics:update", "reports:read",
				"audit_logs:read", "emergency:access",
			},
			Restrictions:     Restrictions{ClinicScope: true},
			OwnershipExempt:  true,
			EmergencyTrusted: true,
			Unrestricted:     true,
		},
		{
			Role:      RoleDoctor,
			Hierarchy: 3,
			Permissions: []string{
				"patients:read", "patients:update", "patients:list",
				"appointments:*", "medical_records:*", "prescriptions:*",
				"emergency:access", "emergency:override",
			},
			Restrictions:     Restrictions{ClinicScope: true},
			EmergencyTrusted: true,
			Unrestricted:     true,
		},
		{
			Role:      RoleNurse,
			Hierarchy: 4,
			Permissions: []string{
				"patients:read", "patients:update", "patients:list",
				"appointments:read", "appointments:update", "appointments:list",
				"medical_records:read", "prescriptions:read", "emergency:access",
			},
			Restrictions: Restrictions{ClinicScope: true, TimeRestricted: true},
		},
		{
			Role:      RoleReceptionist,
			Hierarchy: 5,
			Permissions: []string{
				"appointments:*", "patients:read", "patients:create", "patients:list",
			},
			Restrictions: Restrictions{ClinicScope: true, TimeRestricted: true},
		},
		{
			Role:      RolePatient,
			Hierarchy: 6,
			Permissions: []string{
				"patients:read", "patients:update",
				"appointments:read", "appointments:create", "appointments:list",
				"medical_records:read", "prescriptions:read",
			},
			Restrictions: Restrictions{OwnerScope: true},
		},
	}
}

// NewRoles validates definitions and builds a table. Hierarchy levels must be
// positive and unique so the roles are totally ordered.
func NewRoles(defs []RoleDefinition) (*Roles, error) {
	if len(defs) == 0 {
		return nil, errors.New("no roles defined")
	}
	byName := make(map[string]*RoleDefinition, len(defs))
	levels := make(map[int]string, len(defs))
	for i := range defs {
		def := defs[i]
		if def.Role == "" {
			return nil, fmt.Errorf("role %d: name is required", i)
		}
		if def.Hierarchy < 1 {
			return nil, fmt.Errorf("role %s: hierarchy must be >= 1", def.Role)
		}
		if _, dup := byName[def.Role]; dup {
			return nil, fmt.Errorf("role %s defined twice", def.Role)
		}
		if other, dup := levels[def.Hierarchy]; dup {
			return nil, fmt.Errorf("roles %s and %s share hierarchy level %d", other, def.Role, def.Hierarchy)
		}
		for _, p := range def.Permissions {
			if p == Wildcard {
				continue
			}
			if _, err := ParsePermission(p); err != nil {
				return nil, fmt.Errorf("role %s: %w", def.Role, err)
			}
		}
		def.Permissions = append([]string(nil), def.Permissions...)
		byName[def.Role] = &def
		levels[def.Hierarchy] = def.Role
	}
	return &Roles{byName: byName}, nil
}

type rolesFile struct {
	Roles []RoleDefinition `yaml:"roles"`
}

// ParseRoles decodes a YAML role table
func ParseRoles(data []byte) (*Roles, error) {
	var file rolesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roles: %w", err)
	}
	return NewRoles(file.Roles)
}

// LoadRoles reads a YAML role table from path
func LoadRoles(path string) (*Roles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	return ParseRoles(data)
}

// Lookup returns the definition for role
func (r *Roles) Lookup(role string) (*RoleDefinition, bool) {
	def, ok := r.byName[role]
	return def, ok
}

// Names returns role names ordered from most to least privileged
func (r *Roles) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.byName[names[i]].Hierarchy < r.byName[names[j]].Hierarchy
	})
	return names
}

// CanAssign reports whether assigner may grant target. A role may only assign
// roles strictly below it unless it carries AssignAny.
func (r *Roles) CanAssign(assigner, target string) (bool, error) {
	from, ok := r.byName[assigner]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRole, assigner)
	}
	to, ok := r.byName[target]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRole, target)
	}
	if from.AssignAny {
		return true, nil
	}
	return from.Hierarchy < to.Hierarchy, nil
}

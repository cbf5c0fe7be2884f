package rbac

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/contextkeys"
)

// Resource represents a type of resource that can be accessed
type Resource string

const (
	ResourcePatients       Resource = "patients"
	ResourceAppointments   Resource = "appointments"
	ResourceMedicalRecords Resource = "medical_records"
	ResourcePrescriptions  Resource = "prescriptions"
	ResourceClinics        Resource = "clinics"
	ResourceUsers          Resource = "users"
	ResourceBilling        Resource = "billing"
	ResourceReports        Resource = "reports"
	ResourceAuditLogs      Resource = "audit_logs"
	ResourceSettings       Resource = "settings"
	ResourceEmergency      Resource = "emergency"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate   Action = "create"
	ActionRead     Action = "read"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionList     Action = "list"
	ActionApprove  Action = "approve"
	ActionAccess   Action = "access"
	ActionOverride Action = "override"
)

// Built-in role names
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleClinicAdmin  = "CLINIC_ADMIN"
	RoleDoctor       = "DOCTOR"
	RoleNurse        = "NURSE"
	RoleReceptionist = "RECEPTIONIST"
	RolePatient      = "PATIENT"
)

// Wildcard grants every permission
const Wildcard = "*"

// Decision conditions
const (
	ConditionAfterHours      = "after-hours"
	ConditionEmergencyAccess = "emergency-access"
)

// Permission is a resource:action pair
type Permission struct {
	Resource Resource `json:"resource" yaml:"resource"`
	Action   Action   `json:"action" yaml:"action"`
}

// String returns the string representation of a permission
func (p Permission) String() string {
	return fmt.Sprintf("%s:%s", p.Resource, p.Action)
}

// IsEmergency reports whether p is an emergency permission
func (p Permission) IsEmergency() bool {
	return p.Resource == ResourceEmergency
}

// ParsePermission parses "resource:action"
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: expected resource:action", s)
	}
	return Permission{Resource: Resource(resource), Action: Action(action)}, nil
}

// Restrictions limit where and when a role's permissions apply
type Restrictions struct {
	ClinicScope    bool `json:"clinicScope" yaml:"clinicScope"`
	OwnerScope     bool `json:"ownerScope" yaml:"ownerScope"`
	TimeRestricted bool `json:"timeRestricted" yaml:"timeRestricted"`
}

// RoleDefinition describes one role
type RoleDefinition struct {
	Role         string       `json:"role" yaml:"role"`
	Permissions  []string     `json:"permissions" yaml:"permissions"`
	Hierarchy    int          `json:"hierarchy" yaml:"hierarchy"`
	Restrictions Restrictions `json:"restrictions" yaml:"restrictions"`

	// OwnershipExempt roles skip ownership checks even on routes that require them
	OwnershipExempt bool `json:"ownershipExempt,omitempty" yaml:"ownershipExempt"`
	// EmergencyTrusted roles get emergency access without approval
	EmergencyTrusted bool `json:"emergencyTrusted,omitempty" yaml:"emergencyTrusted"`
	// Unrestricted roles keep working outside business hours
	Unrestricted bool `json:"unrestricted,omitempty" yaml:"unrestricted"`
	// AssignAny lets the role assign every role, including its own
	AssignAny bool `json:"assignAny,omitempty" yaml:"assignAny"`
}

// HasPermission reports whether the role grants p, honouring wildcards
func (d *RoleDefinition) HasPermission(p Permission) bool {
	want := p.String()
	resourceWildcard := string(p.Resource) + ":" + Wildcard
	for _, granted := range d.Permissions {
		if granted == Wildcard || granted == want || granted == resourceWildcard {
			return true
		}
	}
	return false
}

// Request is one permission check
type Request struct {
	Subject  string
	Role     string
	ClinicID string
	Resource Resource
	Action   Action

	// TargetResourceID identifies the resource instance, if any
	TargetResourceID string
	// TargetClinicID is the clinic owning the target resource, if known
	TargetClinicID string
	// TargetOwnerID is the subject owning the target resource, if known
	TargetOwnerID string
	// RequireOwnership is set by routes that only owners may use
	RequireOwnership bool
}

// Permission returns the requested permission
func (r Request) Permission() Permission {
	return Permission{Resource: r.Resource, Action: r.Action}
}

// Decision is the outcome of a permission check
type Decision struct {
	Granted          bool        `json:"granted"`
	Reason           string      `json:"reason"`
	Conditions       []string    `json:"conditions,omitempty"`
	AuditLevel       audit.Level `json:"auditLevel"`
	RequiresApproval bool        `json:"requiresApproval,omitempty"`
	Expiration       *time.Time  `json:"expiration,omitempty"`
	Cached           bool        `json:"cached,omitempty"`
}

// HasCondition reports whether c is among the decision's conditions
func (d *Decision) HasCondition(c string) bool {
	for _, have := range d.Conditions {
		if have == c {
			return true
		}
	}
	return false
}

// Unconditional reports whether the decision is a plain grant
func (d *Decision) Unconditional() bool {
	return d.Granted && len(d.Conditions) == 0 && !d.RequiresApproval
}

func (d *Decision) clone() *Decision {
	out := *d
	if d.Conditions != nil {
		out.Conditions = append([]string(nil), d.Conditions...)
	}
	return &out
}

// WithDecision stores the decision on ctx
func WithDecision(ctx context.Context, d *Decision) context.Context {
	return contextkeys.WithDecision(ctx, d)
}

// DecisionFromContext returns the decision stored by the pipeline
func DecisionFromContext(ctx context.Context) (*Decision, bool) {
	d, ok := ctx.Value(contextkeys.DecisionKey).(*Decision)
	return d, ok
}

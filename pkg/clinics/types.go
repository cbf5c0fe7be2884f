package clinics

import (
	"context"
	"errors"

	"github.com/carepoint/gatekeeper/pkg/contextkeys"
)

// ErrNotMember is reported when the caller has no membership in the clinic
var ErrNotMember = errors.New("clinics: caller is not a member of clinic")

// ErrClinicNotFound is returned by LookupClinic for unknown or inactive clinics
var ErrClinicNotFound = errors.New("clinics: clinic not found")

// ClinicContext is the tenant bound to a request. It is rebuilt per request and
// never persisted.
type ClinicContext struct {
	ClinicID   string `json:"clinicId"`
	LocationID string `json:"locationId,omitempty"`
	ClinicName string `json:"clinicName,omitempty"`
	IsValid    bool   `json:"isValid"`
}

// AccessResult is the outcome of a membership check
type AccessResult struct {
	Success bool
	Clinic  *ClinicContext
	// LocationIDs restricts the member to specific locations when non-empty
	LocationIDs []string
	// Error explains a failed check
	Error string
}

// Directory resolves clinic memberships
type Directory interface {
	// ValidateClinicAccess checks that subject is an active member of clinicID
	ValidateClinicAccess(ctx context.Context, subject, clinicID string) (*AccessResult, error)

	// LookupClinic loads an active clinic regardless of membership. Unknown or
	// inactive clinics yield ErrClinicNotFound.
	LookupClinic(ctx context.Context, clinicID string) (*ClinicContext, error)
}

// WithClinic stores the clinic context in ctx
func WithClinic(ctx context.Context, clinic *ClinicContext) context.Context {
	return contextkeys.WithClinic(ctx, clinic)
}

// FromContext retrieves the clinic context
func FromContext(ctx context.Context) (*ClinicContext, bool) {
	clinic, ok := ctx.Value(contextkeys.ClinicKey).(*ClinicContext)
	return clinic, ok && clinic != nil
}

package rbac

import (
	"fmt"

	"github.com/carepoint/gatekeeper/pkg/auth"
)

// RoleAllowed reports whether role is in allowed. An empty list allows every role.
func RoleAllowed(role string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

// CheckRole returns a role_not_allowed error when role is not in allowed
func CheckRole(role string, allowed []string) error {
	if RoleAllowed(role, allowed) {
		return nil
	}
	if role == "" {
		return auth.NewError(auth.KindRoleNotAllowed, "token carries no role")
	}
	return auth.NewError(auth.KindRoleNotAllowed, fmt.Sprintf("role %s is not allowed on this route", role))
}

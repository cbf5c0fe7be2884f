package rbac

import (
	"net/http"

	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/clinics"
	"github.com/carepoint/gatekeeper/pkg/httputil"
)

// PermissionMiddleware enforces a permission on handlers mounted behind the
// authentication pipeline. It reads the identity and clinic the pipeline bound.
type PermissionMiddleware struct {
	evaluator *Evaluator
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(evaluator *Evaluator) *PermissionMiddleware {
	return &PermissionMiddleware{evaluator: evaluator}
}

// RequirePermission creates middleware that requires resource:action
func (pm *PermissionMiddleware) RequirePermission(resource Resource, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				httputil.WriteAuthError(w, auth.NewError(auth.KindInvalidToken, "authentication required"))
				return
			}

			req := Request{
				Subject:  identity.Subject,
				Role:     identity.Role,
				Resource: resource,
				Action:   action,
			}
			if clinic, ok := clinics.FromContext(r.Context()); ok {
				req.ClinicID = clinic.ClinicID
			}

			decision, err := pm.evaluator.Enforce(r.Context(), req)
			if err != nil {
				httputil.WriteAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), decision)))
		})
	}
}

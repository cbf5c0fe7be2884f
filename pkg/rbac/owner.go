package rbac

import (
	"context"
	"net/http"
)

// OwnerResolver finds the subject that owns a targeted resource instance.
// An empty owner with a nil error means ownership is unknown.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, r *http.Request, resource Resource, resourceID string) (string, error)
}

// OwnerResolverFunc adapts a function to OwnerResolver
type OwnerResolverFunc func(ctx context.Context, r *http.Request, resource Resource, resourceID string) (string, error)

// ResolveOwner calls f
func (f OwnerResolverFunc) ResolveOwner(ctx context.Context, r *http.Request, resource Resource, resourceID string) (string, error) {
	return f(ctx, r, resource, resourceID)
}

// SelfOwnedResolver treats users and patients as owning their own record, so
// the resource id is the owner id. Other resources have no known owner.
func SelfOwnedResolver() OwnerResolver {
	return OwnerResolverFunc(func(ctx context.Context, r *http.Request, resource Resource, resourceID string) (string, error) {
		switch resource {
		case ResourceUsers, ResourcePatients:
			return resourceID, nil
		default:
			return "", nil
		}
	})
}

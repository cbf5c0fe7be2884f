package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/carepoint/gatekeeper/pkg/contextkeys"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the resolved principal for a request. It is not modified after
// token verification.
type Identity struct {
	Subject   string `json:"subject"`
	Role      string `json:"role"`
	SessionID string `json:"sessionId,omitempty"`
	TokenID   string `json:"tokenId,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Claims is the bearer token payload shared by both issuance paths
type Claims struct {
	Role       string `json:"role"`
	Email      string `json:"email,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	ClinicID   string `json:"clinicId,omitempty"`
	LocationID string `json:"locationId,omitempty"`
	jwt.RegisteredClaims
}

// Identity projects the claims onto an Identity
func (c *Claims) Identity() *Identity {
	return &Identity{
		Subject:   c.Subject,
		Role:      c.Role,
		SessionID: c.SessionID,
		TokenID:   c.ID,
		Email:     c.Email,
	}
}

// WithIdentity stores the identity and its claims in the context
func WithIdentity(ctx context.Context, identity *Identity, claims *Claims) context.Context {
	ctx = contextkeys.WithIdentity(ctx, identity)
	if claims != nil {
		ctx = contextkeys.WithClaims(ctx, claims)
	}
	return ctx
}

// IdentityFromContext retrieves the authenticated identity
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return identity, ok && identity != nil
}

// ClaimsFromContext retrieves the verified token claims
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextkeys.ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

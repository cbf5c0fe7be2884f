package auth

import (
	"context"
	"errors"
	"time"

	"github.com/carepoint/gatekeeper/pkg/storage"
)

// RevocationList records revoked token ids in the shared store
type RevocationList struct {
	store storage.Store
}

// NewRevocationList creates a revocation list over store
func NewRevocationList(store storage.Store) *RevocationList {
	return &RevocationList{store: store}
}

// IsRevoked reports whether jti has been revoked
func (l *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return l.store.Exists(ctx, storage.BlacklistKey(jti))
}

// Revoke lists jti until ttl elapses. ttl should cover the token's remaining lifetime.
func (l *RevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("cannot revoke token without jti")
	}
	return l.store.Set(ctx, storage.BlacklistKey(jti), "1", ttl)
}

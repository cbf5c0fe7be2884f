package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carepoint/gatekeeper/pkg/storage"
)

// DefaultTTL is the sliding session lifetime
const DefaultTTL = time.Hour

// Repository reads and writes session records
type Repository struct {
	store storage.Store
}

// NewRepository creates a session repository over store
func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

// Get loads a session record. It returns storage.ErrNotFound when absent.
func (r *Repository) Get(ctx context.Context, ownerID, sessionID string) (*Record, error) {
	raw, err := r.store.Get(ctx, storage.SessionKey(ownerID, sessionID))
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &record, nil
}

// Save writes record with the given TTL
func (r *Repository) Save(ctx context.Context, record *Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return r.store.Set(ctx, storage.SessionKey(record.OwnerID, record.SessionID), string(data), ttl)
}

// Delete removes a session record
func (r *Repository) Delete(ctx context.Context, ownerID, sessionID string) error {
	return r.store.Del(ctx, storage.SessionKey(ownerID, sessionID))
}

// Package kv defines the key-value backend port used for all persisted group
// state. Keys are plain namespaced strings; values are UTF-8 scalars; TTL
// metadata is owned by the backend.
package kv

import (
	"context"
	"time"
)

// NoTTL marks an entry that must be explicitly deleted.
const NoTTL time.Duration = 0

// Store is the persistence contract. Absence is not an error: Get reports it
// through the ok return and callers substitute their defaults.
type Store interface {
	// Get returns the value for key, or ok=false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes key to value. A ttl of NoTTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
}

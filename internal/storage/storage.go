package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("storage: key not found")

// Store is the secure key/value storage used for OAuth tokens and cached
// secrets. Values are opaque blobs; callers are responsible for their own
// encryption layer. Writes are atomic at single-key granularity.
type Store interface {
	// Set stores a value under key. A zero ttl means the entry never
	// expires on its own.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the stored value, or ErrNotFound if the key is absent
	// or its TTL has elapsed. Expired entries are removed on read.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// CleanupExpired removes expired entries and reports how many were
	// dropped.
	CleanupExpired(ctx context.Context) (int, error)
}

// envelope is the persisted representation of one entry.
type envelope struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newEnvelope(value []byte, ttl time.Duration, now time.Time) envelope {
	e := envelope{Data: value, CreatedAt: now}
	if ttl > 0 {
		exp := now.Add(ttl)
		e.ExpiresAt = &exp
	}
	return e
}

func (e *envelope) expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

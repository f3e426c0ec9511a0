// Package kv defines the narrow interface the trust core needs from the
// shared fast key-value store: rate-limit counters and the revocable-token
// registry. Keeping the surface this small means the same code is correct
// against the in-process driver (single instance, tests) and Redis
// (multi-instance deployments).
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports an absent or expired key.
var ErrNotFound = errors.New("kv: not found")

type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetWithTTL stores value at key, overwriting any previous value, and
	// expires the key after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Increment atomically adds one to the counter at key, creating it
	// with the given ttl if absent, and returns the post-increment count.
	// The add and the read are one operation; concurrent callers never
	// lose updates.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes key. Deleting an absent key is not an error, which is
	// what makes token revocation idempotent.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

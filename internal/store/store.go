// Package store provides the shared ephemeral key/value store used for PKCE
// verifier staging, rate-limit counters, and conditional-cache entries.
// Supports both in-memory and Redis-based storage for HA deployments.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store is the shared ephemeral store contract. All operations are short and
// idempotent; no multi-key transactions are required. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetDel atomically returns and removes the value for key, or ErrNotFound.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Health checks if the store is reachable.
	Health(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

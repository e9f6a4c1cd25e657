// Package store abstracts the external key/value store the cache engine
// runs against. The request path is stateless across processes, so every
// primitive here must be safe to call from any number of replicas: atomic
// increments, TTL-scoped writes, and cursor-based pattern scans.
package store

import (
	"context"
	"time"
)

// Store is the set of primitives the engine needs from the backing store.
// A ttl of zero means the key does not expire.
type Store interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// SetEx stores a value with the given TTL.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// HGetAll returns all fields of a hash, empty map if absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet writes hash fields.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HIncrBy atomically increments a hash field, creating it at zero.
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)

	// Incr atomically increments a counter key, creating it at zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Scan returns every key matching the glob pattern. Not atomic with
	// respect to concurrent writes; callers must tolerate keys vanishing
	// between discovery and use.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

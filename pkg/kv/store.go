package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend storage is unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// Store is the byte-oriented key-value contract shared by every backend.
// Values are opaque; callers own their encoding.
type Store interface {
	// Set writes value under key. A positive ttl makes the key expire.
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)

	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}

// TTLFrom returns the effective ttl from the optional variadic argument used by Set.
func TTLFrom(ttl []time.Duration) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return ttl[0]
	}
	return 0
}

package kv

import (
	"context"
	"fmt"
	"time"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
	// BackendSQLite persists keys to a local SQLite file
	BackendSQLite Backend = "sqlite"
)

// Config holds configuration for creating a Store instance
type Config struct {
	// Backend specifies which storage backend to use
	Backend Backend

	// RedisURL is the connection string for Redis (required when Backend is "redis")
	// Format: redis://localhost:6379/0 or redis://:password@localhost:6379/1
	RedisURL string

	// SQLitePath is the database file for the sqlite backend. ":memory:" is accepted.
	SQLitePath string

	// JanitorInterval controls how often the in-memory store cleans up expired keys.
	// Default: 30 seconds
	JanitorInterval time.Duration

	// FailoverEnabled keeps an in-memory fallback behind Redis and switches to it
	// while Redis is unreachable.
	FailoverEnabled bool

	// ProbeInterval controls how often to probe Redis for recovery after failover.
	// Default: 5 seconds
	ProbeInterval time.Duration

	// StartupProbeTimeout controls how long to wait for Redis at startup.
	// Default: 1 second
	StartupProbeTimeout time.Duration

	// Logger is used for logging failover events. If nil, no logging occurs.
	Logger LogFunc
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = 1 * time.Second
	}

	switch cfg.Backend {
	case BackendMemory, BackendSQLite:
		factory, exists := factories[cfg.Backend]
		if !exists {
			return nil, fmt.Errorf("%s backend not registered", cfg.Backend)
		}
		return factory(cfg)

	case BackendRedis:
		return createRedisStore(cfg)

	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis, BackendSQLite)
	}
}

// createRedisStore connects to Redis. With failover enabled an unreachable Redis
// degrades to the in-memory store instead of failing startup.
func createRedisStore(cfg Config) (Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}

	redisFactory, exists := factories[BackendRedis]
	if !exists {
		return nil, fmt.Errorf("redis backend not registered")
	}

	if !cfg.FailoverEnabled {
		return redisFactory(cfg)
	}

	memoryFactory, exists := factories[BackendMemory]
	if !exists {
		return nil, fmt.Errorf("memory backend not registered")
	}
	memoryStore, err := memoryFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store for failover: %w", err)
	}

	redisStore, err := redisFactory(cfg)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger("Redis unavailable at startup; using in-memory store", "error", err.Error())
		}
		return memoryStore, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
	defer cancel()

	if err := redisStore.Ping(ctx); err != nil {
		if cfg.Logger != nil {
			cfg.Logger("Redis unhealthy at startup; using in-memory store (will retry in background)",
				"error", err.Error())
		}
		return NewFailoverStoreWithFallbackActive(redisStore, memoryStore, cfg.ProbeInterval, cfg.Logger), nil
	}

	if cfg.Logger != nil {
		cfg.Logger("Redis healthy at startup; using Redis with in-memory failover")
	}
	return NewFailoverStore(redisStore, memoryStore, cfg.ProbeInterval, cfg.Logger), nil
}

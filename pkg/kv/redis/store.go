package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/openbridge/openbridge-backend/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed implementation of the kv.Store interface
type Store struct {
	client *redis.Client
}

var connectionErrors = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"connection closed",
	"client is closed",
	"EOF",
}

// IsConnectionError checks if an error is a connection-related error that should trigger failover
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	// Cancellation by the caller is not a backend failure
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}

	msg := err.Error()
	for _, s := range connectionErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func wrapConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return err
}

// New creates a Redis-backed store. The connection is established lazily, so
// an unreachable server surfaces on the first command or Ping.
func New(redisURL string) (*Store, error) {
	opt, err := parseOptions(redisURL)
	if err != nil {
		return nil, err
	}
	return &Store{client: redis.NewClient(opt)}, nil
}

// parseOptions accepts redis:// URLs and bare host:port[/db] addresses.
func parseOptions(redisURL string) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err == nil {
		return opt, nil
	}

	u, parseErr := url.Parse("redis://" + redisURL)
	if parseErr != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid redis URL %q: %w", redisURL, err)
	}

	opt = &redis.Options{Addr: u.Host}
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if db, dbErr := strconv.Atoi(p); dbErr == nil {
			opt.DB = db
		}
	}
	if u.User != nil {
		if password, ok := u.User.Password(); ok {
			opt.Password = password
		}
	}
	return opt, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	return wrapConnectionError(s.client.Set(ctx, key, value, kv.TTLFrom(ttl)).Err())
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, wrapConnectionError(err)
	}
	return result, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Del(ctx, keys...).Result()
	return n, wrapConnectionError(err)
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Exists(ctx, keys...).Result()
	return n, wrapConnectionError(err)
}

func (s *Store) Ping(ctx context.Context) error {
	return wrapConnectionError(s.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/openbridge/openbridge-backend/pkg/kv"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store. A positive janitorInterval starts a
// background goroutine that evicts expired keys.
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		entries:         make(map[string]entry),
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if d := kv.TTLFrom(ttl); d > 0 {
		e.expiresAt = time.Now().Add(d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, kv.ErrNotFound
	}
	if e.expired(time.Now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var deleted int64
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			if !e.expired(now) {
				deleted++
			}
			delete(s.entries, key)
		}
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var n int64
	for _, key := range keys {
		if e, ok := s.entries[key]; ok && !e.expired(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close stops the background janitor and drops all data
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.janitorInterval > 0 {
			close(s.janitorStop)
			<-s.janitorDone
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	return nil
}

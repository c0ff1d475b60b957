package kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LogFunc is a function type for structured logging
type LogFunc func(msg string, fields ...any)

// FailoverStore prefers the primary store, switches to the fallback when the
// primary reports ErrBackendUnavailable, and switches back once a background
// probe sees the primary healthy again.
type FailoverStore struct {
	primary       Store
	fallback      Store
	active        atomic.Value // Store
	probeInterval time.Duration
	logger        LogFunc

	mu        sync.Mutex
	probing   bool
	closed    chan struct{}
	closeOnce sync.Once
	probeStop chan struct{}
	probeDone chan struct{}
	promote   chan struct{}
}

// NewFailoverStore creates a failover store with the primary active.
func NewFailoverStore(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	if logger == nil {
		logger = func(msg string, fields ...any) {}
	}

	fs := &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		probeInterval: probeInterval,
		logger:        logger,
		closed:        make(chan struct{}),
		promote:       make(chan struct{}, 1),
	}
	fs.active.Store(primary)

	go fs.handlePromotions()

	return fs
}

// NewFailoverStoreWithFallbackActive starts on the fallback and probes the
// primary for recovery (used when the primary fails at startup).
func NewFailoverStoreWithFallbackActive(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	fs := NewFailoverStore(primary, fallback, probeInterval, logger)
	fs.active.Store(fallback)
	fs.startProbing()
	return fs
}

func (fs *FailoverStore) activeStore() Store {
	return fs.active.Load().(Store)
}

// UsingFallback reports whether requests are currently served by the fallback.
func (fs *FailoverStore) UsingFallback() bool {
	return fs.activeStore() == fs.fallback
}

func (fs *FailoverStore) demoteToFallback() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.activeStore() == fs.fallback {
		return
	}

	fs.active.Store(fs.fallback)
	fs.logger("Failing over to in-memory store", "reason", "primary_unavailable")
	fs.startProbingLocked()
}

func (fs *FailoverStore) handlePromotions() {
	for {
		select {
		case <-fs.closed:
			return
		case <-fs.promote:
			fs.promoteToPrimary()
		}
	}
}

// promoteToPrimary stops the probe and swaps in the primary under fs.mu, so a
// concurrent demotion either happens before and is undone, or after and
// starts a fresh probe.
func (fs *FailoverStore) promoteToPrimary() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.activeStore() == fs.primary {
		return
	}
	fs.stopProbingLocked()
	// the stopped probe may have queued a second signal
	select {
	case <-fs.promote:
	default:
	}
	fs.active.Store(fs.primary)
	fs.logger("Recovered to primary store", "reason", "primary_healthy")
}

func (fs *FailoverStore) signalPromotion() {
	select {
	case fs.promote <- struct{}{}:
	default:
	}
}

func (fs *FailoverStore) startProbing() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.startProbingLocked()
}

// startProbingLocked must be called with fs.mu held.
func (fs *FailoverStore) startProbingLocked() {
	if fs.probing {
		return
	}
	fs.probing = true
	fs.probeStop = make(chan struct{})
	fs.probeDone = make(chan struct{})
	go fs.probeLoop(fs.probeStop, fs.probeDone)
}

func (fs *FailoverStore) stopProbing() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.stopProbingLocked()
}

// stopProbingLocked must be called with fs.mu held.
func (fs *FailoverStore) stopProbingLocked() {
	if !fs.probing {
		return
	}
	close(fs.probeStop)
	<-fs.probeDone
	fs.probing = false
}

func (fs *FailoverStore) probeLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(fs.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.closed:
			return
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), fs.probeInterval/2)
			err := fs.primary.Ping(ctx)
			cancel()
			if err == nil {
				fs.signalPromotion()
			}
		}
	}
}

// withFailover runs fn on the active store and retries once on the fallback
// when the primary reports itself unavailable.
func withFailover[T any](fs *FailoverStore, fn func(Store) (T, error)) (T, error) {
	store := fs.activeStore()
	result, err := fn(store)

	if store == fs.primary && errors.Is(err, ErrBackendUnavailable) {
		fs.demoteToFallback()
		if fallback := fs.activeStore(); fallback != store {
			return fn(fallback)
		}
	}
	return result, err
}

func (fs *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	_, err := withFailover(fs, func(s Store) (struct{}, error) {
		return struct{}{}, s.Set(ctx, key, value, ttl...)
	})
	return err
}

func (fs *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	return withFailover(fs, func(s Store) ([]byte, error) {
		return s.Get(ctx, key)
	})
}

func (fs *FailoverStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return withFailover(fs, func(s Store) (int64, error) {
		return s.Del(ctx, keys...)
	})
}

func (fs *FailoverStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	return withFailover(fs, func(s Store) (int64, error) {
		return s.Exists(ctx, keys...)
	})
}

// Ping reports the health of the active store.
func (fs *FailoverStore) Ping(ctx context.Context) error {
	return fs.activeStore().Ping(ctx)
}

func (fs *FailoverStore) Close() error {
	fs.closeOnce.Do(func() { close(fs.closed) })
	fs.stopProbing()

	var errs []error
	if err := fs.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := fs.fallback.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/openbridge/openbridge-backend/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"Overwrite", testOverwrite},
		{"Del", testDel},
		{"Exists", testExists},
		{"TTLExpiry", testTTLExpiry},
		{"ZeroTTLPersists", testZeroTTLPersists},
		{"LargeValue", testLargeValue},
		{"HealthCheck", testHealthCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:string"
	value := []byte("hello world")

	if err := store.Set(ctx, key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(result, value) {
		t.Fatalf("Expected %q, got %q", value, result)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:overwrite"

	if err := store.Set(ctx, key, []byte("first")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, key, []byte("second")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(result) != "second" {
		t.Fatalf("Expected %q, got %q", "second", result)
	}
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()

	for _, key := range []string{"test:del1", "test:del2"} {
		if err := store.Set(ctx, key, []byte("v")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	deleted, err := store.Del(ctx, "test:del1", "test:del2", "test:del3")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("Expected 2 deleted, got %d", deleted)
	}

	if _, err := store.Get(ctx, "test:del1"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after Del, got %v", err)
	}
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()

	if err := store.Set(ctx, "test:exists", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	n, err := store.Exists(ctx, "test:exists", "test:missing")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 existing key, got %d", n)
	}
}

func testTTLExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:ttl"

	if err := store.Set(ctx, key, []byte("short-lived"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("Expected key before expiry: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after expiry, got %v", err)
	}
	if n, err := store.Exists(ctx, key); err != nil || n != 0 {
		t.Fatalf("Expected expired key to not exist, got %d (%v)", n, err)
	}
}

func testZeroTTLPersists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:zero-ttl"

	if err := store.Set(ctx, key, []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("Expected key with zero ttl to persist: %v", err)
	}
}

func testLargeValue(t *testing.T, store kv.Store) {
	ctx := context.Background()
	value := make([]byte, 256*1024)
	for i := range value {
		value[i] = byte(i % 251)
	}

	if err := store.Set(ctx, "test:large", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	result, err := store.Get(ctx, "test:large")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(result, value) {
		t.Fatalf("Large value round trip mismatch")
	}
}

func testHealthCheck(t *testing.T, store kv.Store) {
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

// Package kv provides a small key-value store abstraction with in-memory,
// Redis and SQLite backed implementations.
//
// The transfer history document and the fee-quote cache both live behind
// this interface, so a deployment can keep state in process memory, share it
// through Redis, or persist it to a local SQLite file without code changes.
//
// Example usage:
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendSQLite, SQLitePath: "openbridge.db"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Set(ctx, "openbridge_transfers", payload); err != nil {
//		log.Fatal(err)
//	}
//
//	value, err := store.Get(ctx, "openbridge_transfers")
//	if errors.Is(err, kv.ErrNotFound) {
//		// first run
//	}
//
// Backends register themselves from init functions; import
// pkg/kv/memory, pkg/kv/redis and pkg/kv/sqlite for their side effects.
package kv

// Package db provides a standardized interface for embedded ordered byte-stores.
// It defines the KVDB interface the versioned storage engine (lib/store) is built on,
// so that the engine can run on different backends without code changes.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides point reads (Get, Has), point writes (Put, Delete), atomic batch
//     writes (Write) and ordered prefix iteration (Iterate).
//
//   - Batch: A backend independent list of staged writes. The storage engine stages
//     session batches in it and hands it to Write on commit. Lookup lets the owner of
//     a batch read its own staged writes back.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the available backends ("leveldb", "pebble", "memory", "pebble-memory").
//
// Related Packages:
//
// The engines/level package (github.com/ValentinKolb/dvkv/lib/db/engines/level) implements
// KVDB on top of goleveldb, either file backed or in memory.
//
// The engines/pebble package (github.com/ValentinKolb/dvkv/lib/db/engines/pebble) implements
// KVDB on top of cockroachdb/pebble.
//
// The util package (github.com/ValentinKolb/dvkv/lib/db/util) provides hash functions
// and statistics helpers (SizeHistogram, DistributionStats).
//
// The testing package (github.com/ValentinKolb/dvkv/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db

// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite for the KVDB contract (point reads and writes,
//     atomic batches, ordered prefix iteration, edge cases, concurrent use)
//   - benchmark: Performance tests for measuring throughput of common database operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t testing.TB) db.KVDB {
//		database, err := NewMyDatabase(t.TempDir())
//		if err != nil {
//			t.Fatal(err)
//		}
//		return database
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing

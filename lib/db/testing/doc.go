// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: a conformance suite for the KVDB interface contract, including
//     TTL semantics, stale writes, snapshots and concurrent use
//   - range testing: ordered scan tests for db.OrderedKVDB implementations
//     (skipped unless db.FeatureRange is supported)
//   - benchmark: throughput of common operations plus the memory reserved per key
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing

// Package util provides utility components for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - statistics: summary statistics, shard distribution quality and a bucketed Histogram
//   - functions: seed generation and seeded xxhash key hashing
//   - mapheap: a generic keyed min-heap used to schedule expiration and deletion
//
// Each component works with any implementation of the db.KVDB interface.
package util

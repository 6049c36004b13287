// Package db provides a standardized interface for key-value database implementations.
// It defines the KVDB interface that allows for consistent interaction with database
// backends while abstracting implementation details, and the OrderedKVDB extension
// for backends that keep their keys sorted.
//
// The package focuses on:
//   - A unified interface for key-value operations
//   - Feature discovery through capability flags
//   - Ordered range scans for sorted backends
//   - Standardized persistence operations and metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete),
//     time-based operations (SetE, Expire), specialized operations (SetEIfUnset),
//     metadata retrieval (GetInfo), and persistence operations (Save, Load).
//
//   - OrderedKVDB Interface: KVDB plus Range, which visits the entries of a
//     half-open key interval in byte-wise lexicographic order.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. FeatureRange marks an
//     OrderedKVDB.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the database backends (currently "hot").
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state, including size statistics, implementation type,
//     and implementation-specific metadata.
//
// Note on Time-Based Operations:
//   - All write operations require a write-index parameter that serves as a logical
//     timestamp. It records when an entry was written and is the base for expiration
//     and deletion offsets.
//   - Read operations always act on the most recently set write-index.
//   - SetWriteIdx advances the logical time without a write. The write-index only ever
//     increases; lower values are ignored.
//
// Note on Garbage Collection:
//   - Implementations must eventually remove deleted entries.
//   - Get() must never return an entry that has logically expired and Has() must never
//     return true for an entry that has logically been deleted, regardless of whether the
//     garbage collector already ran.
//
// Related Packages:
//
// The engines/hot package (github.com/ValentinKolb/hotkv/lib/db/engines/hot) implements
// OrderedKVDB on top of sharded height-optimized tries (github.com/ValentinKolb/hotkv/lib/hot).
//
// The util package provides MapHeap, Histogram and hashing helpers for implementations.
//
// The testing package (github.com/ValentinKolb/hotkv/lib/db/testing) provides
// standardized tests and benchmarks for implementations:
//   - RunKVDBTests / RunOrderedKVDBTests: conformance suites
//   - RunKVDBBenchmarks: performance benchmarks for comparing implementations
package db

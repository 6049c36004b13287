// Package hot implements a memory-efficient, ordered key-value database
// (KVDB) on top of the height-optimized trie in lib/hot. It implements
// db.KVDB and db.OrderedKVDB.
//
// Key Components:
//
//   - DB: The central database structure. It hashes keys onto shards, keeps a
//     monotonically increasing write index, runs the garbage collector and
//     exposes the public API. Like every KVDB, DB does not generate write
//     indices itself; the caller passes them with each write.
//
//   - Shard: A partition of the key space. Each shard holds one trie of
//     entries and two keyed min-heaps that schedule expiration and deletion.
//     All fields of a shard are guarded by one sync.RWMutex: reads take the
//     read lock, writes and the GC take the write lock.
//
//   - Entry: The value stored per key, with expiration index, deletion index
//     and the index of its last write.
//
// Internal Mechanisms:
//
//   - Sharding: keys are hashed with a seeded xxhash and the hash is
//     right-shifted by 7 bits before the modulo. The seed is stored in
//     snapshots so a loaded database keeps its distribution.
//
//   - Stale Write Prevention: a write is only applied if its write index is
//     greater than or equal to the index stored with the entry.
//
//   - Time-based Operations: expireIn and deleteIn are relative to the write
//     index of the write. Expired entries return false for Get() but true for
//     Has(); deleted entries return false for both. Delete() removes the key
//     from the trie right away.
//
//   - Garbage Collection: the heaps are updated inline on every write, so a
//     single goroutine only has to pop due items every GCInterval. After each
//     cycle, shards whose orphaned arena bytes exceed CompactRatio of the used
//     bytes are rebuilt with hot.Map.Compact.
//
//   - Range Scans: Range copies batches of entries from every shard under the
//     read lock and merges the shards by key. The callback runs without locks.
//
//   - Snapshots: Save copies the shards in parallel and writes a binary
//     snapshot whose body may be compressed with zstd or lz4. Load validates
//     the header and rebuilds every shard.
//
//   - Keys: keys longer than MaxKeyLen cannot be stored in the trie. Writes
//     with such keys are dropped and counted; lookups miss.
//
// Metrics:
//
// Every DB owns a VictoriaMetrics set with operation counters, GC and
// compaction counters and size gauges. WritePrometheus exposes it.
package hot

// Package hot implements an in-memory ordered map from byte-string keys to
// values, built as a binary height-optimized trie (HOT) that is packed into
// flat byte arenas.
//
// The package focuses on:
//   - Low per-key overhead: a key costs its bytes plus a few bytes of framing,
//     an inner node costs 14 bytes
//   - Logarithmic point lookups, inserts and removals
//   - Ordered iteration without a sort pass
//
// Key Components:
//
//   - Arenas: three append-only stores owned by one Map. The key-data arena
//     holds leaf records ([u16 length][key][u16 value slot]), the node-data
//     arena holds node records ([u16 discriminator][6 byte left ref][6 byte
//     right ref]) and the values arena holds one slot per leaf ever written.
//     Offsets never move, so a record can be addressed by its offset for the
//     lifetime of the arena.
//
//   - Ref: a 48-bit tagged reference. Bit 47 distinguishes leaves from nodes,
//     the remaining 47 bits are the arena offset and the all-ones pattern is
//     null.
//
//   - Map: the trie itself. Each inner node names the bit position where the
//     keys of its two subtrees first differ. Positions strictly increase from
//     the root to every leaf. Lookups follow the key's bits to a single leaf
//     and confirm with one full key comparison.
//
// Internal Mechanisms:
//
//   - Bit order: bit 0 is the most significant bit of byte 0. Bits past the
//     end of a key read as 0.
//
//   - Length discriminators: two keys that are equal after zero padding
//     ("a" and "a\x00") are split by a node that compares key length instead
//     of a bit. These discriminators sort after every bit position, which
//     caps insertable keys at MaxKeyLen bytes.
//
//   - Removal: the leaf is unlinked and its sibling takes the parent node's
//     place. The value slot is tombstoned. Records that became unreachable
//     stay in their arenas until Compact rebuilds them.
//
// Thread-safety: none. A Map must be confined to one goroutine or guarded by
// the caller. The engine in lib/db/engines/hot does this with one RWMutex per
// shard.
package hot

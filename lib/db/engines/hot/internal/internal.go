package internal

import (
	"sync"
	"unsafe"

	"github.com/ValentinKolb/hotkv/lib/db/util"
	"github.com/ValentinKolb/hotkv/lib/hot"
)

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry is the value stored for every key of the trie
type Entry struct {
	Value    []byte // Stored data (nil once expired)
	ExpireAt uint64 // Write index at which the value expires (0 = never)
	DeleteAt uint64 // Write index at which the entry is deleted (0 = never)
	Index    uint64 // Write index of the last write to this entry
}

// TTLInfo returns whether the entry is expired and whether the entry is deleted (at the given write index)
func (e Entry) TTLInfo(writeIdx uint64) (isExpired, isDeleted bool) {
	isExpired = e.ExpireAt != 0 && writeIdx >= e.ExpireAt
	isDeleted = e.DeleteAt != 0 && writeIdx >= e.DeleteAt
	return isExpired || isDeleted, isDeleted
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard is a partition of the database. Every field is guarded by Mu.
type Shard struct {
	Mu         sync.RWMutex
	Data       *hot.Map[Entry]       // entries ordered by key
	ExpireHeap *util.MapHeap[string] // keys by ExpireAt
	DeleteHeap *util.MapHeap[string] // keys by DeleteAt
	ValueBytes int64                 // sum of len(Value) over all entries
}

// NewShard creates an empty shard
func NewShard() *Shard {
	s := &Shard{}
	s.Reset()
	return s
}

// Reset drops all entries. The caller must hold Mu for writing.
func (s *Shard) Reset() {
	s.Data = hot.New[Entry]()
	s.ExpireHeap = util.NewMapHeap[string]()
	s.DeleteHeap = util.NewMapHeap[string]()
	s.ValueBytes = 0
}

// Track registers the TTLs of e with the GC heaps of the shard.
// The caller must hold Mu for writing.
func (s *Shard) Track(key string, e Entry) {
	if e.ExpireAt != 0 && e.Value != nil {
		s.ExpireHeap.AddItem(key, e.ExpireAt)
	} else {
		s.ExpireHeap.RemoveByKey(key)
	}
	if e.DeleteAt != 0 {
		s.DeleteHeap.AddItem(key, e.DeleteAt)
	} else {
		s.DeleteHeap.RemoveByKey(key)
	}
}

// Untrack removes key from the GC heaps. The caller must hold Mu for writing.
func (s *Shard) Untrack(key string) {
	s.ExpireHeap.RemoveByKey(key)
	s.DeleteHeap.RemoveByKey(key)
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](hash uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(hash>>7)%uint64(len(shards))]
}

// KeyBytes returns a read-only byte view of key without copying.
// The trie copies keys on insert and never writes through lookup keys.
func KeyBytes(key string) []byte {
	return unsafe.Slice(unsafe.StringData(key), len(key))
}

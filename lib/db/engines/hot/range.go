package hot

import (
	"container/heap"

	"github.com/ValentinKolb/hotkv/lib/db/engines/hot/internal"
	trie "github.com/ValentinKolb/hotkv/lib/hot"
)

// rangeBatchSize is the number of entries copied out of a shard per lock
const rangeBatchSize = 256

// --------------------------------------------------------------------------
// Ordered Range Scans
// --------------------------------------------------------------------------

// Range calls fn for every visible entry with start <= key < end in ascending
// key order until fn returns false. An empty end means no upper bound.
//
// Every shard is read in batches under its read lock and the shards are merged
// by key. fn runs without any lock held, so it may call back into the database.
// The scan is not a snapshot: writes that land during the scan may or may not
// be observed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Range(start, end string, fn func(key string, value []byte) bool) {
	hdb.metrics.ranges.Inc()

	writeIndex := hdb.currIndex.Load()

	cursors := make(cursorHeap, 0, len(hdb.shards))
	for _, shard := range hdb.shards {
		c := &rangeCursor{shard: shard, from: start, end: end, first: true}
		if c.fill(writeIndex) {
			cursors = append(cursors, c)
		}
	}
	heap.Init(&cursors)

	for cursors.Len() > 0 {
		c := cursors[0]
		kv := c.batch[c.pos]
		if !fn(kv.key, kv.value) {
			return
		}

		c.pos++
		if c.pos < len(c.batch) || c.fill(writeIndex) {
			heap.Fix(&cursors, 0)
		} else {
			heap.Pop(&cursors)
		}
	}
}

// rangeEntry is a key-value pair copied out of a shard
type rangeEntry struct {
	key   string
	value []byte
}

// rangeCursor walks one shard in key order, one batch at a time
type rangeCursor struct {
	shard *internal.Shard
	from  string // next batch starts at this key
	first bool   // from is inclusive
	end   string
	done  bool

	batch []rangeEntry
	pos   int
}

// fill loads the next batch of visible entries and reports whether there is one.
//
// Thread-safety: takes the shard's read lock.
func (c *rangeCursor) fill(writeIndex uint64) bool {
	c.batch, c.pos = c.batch[:0], 0
	if c.done {
		return false
	}

	lo := trie.Excluded(internal.KeyBytes(c.from))
	if c.first {
		lo = trie.Included(internal.KeyBytes(c.from))
	}
	hi := trie.Unbounded()
	if c.end != "" {
		hi = trie.Excluded(internal.KeyBytes(c.end))
	}

	c.shard.Mu.RLock()
	defer c.shard.Mu.RUnlock()

	it := c.shard.Data.Iter(lo, hi)
	var (
		last []byte
		seen bool
	)
	for len(c.batch) < rangeBatchSize {
		if !it.Next() {
			c.done = true
			break
		}
		last, seen = it.Key(), true

		e := it.Value()
		if isExpired, _ := e.TTLInfo(writeIndex); isExpired {
			continue
		}

		value := make([]byte, len(e.Value))
		copy(value, e.Value)
		c.batch = append(c.batch, rangeEntry{key: string(last), value: value})
	}

	if seen {
		c.from, c.first = string(last), false
	}
	return len(c.batch) > 0
}

// cursorHeap orders cursors by their current key
type cursorHeap []*rangeCursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	return h[i].batch[h[i].pos].key < h[j].batch[h[j].pos].key
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*rangeCursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

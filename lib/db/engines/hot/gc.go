package hot

import (
	"time"

	"github.com/ValentinKolb/hotkv/lib/db/engines/hot/internal"
	"github.com/dustin/go-humanize"
)

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the garbage collector
// if the GC is already running, this function does nothing
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) startGC() {
	if hdb.gcIsRunning.CompareAndSwap(false, true) {
		hdb.gcStop = make(chan struct{})
		hdb.gcDone = make(chan struct{})
		go hdb.garbageCollector(hdb.gcStop, hdb.gcDone)
	}
}

// stopGC stops the garbage collector and waits for the running cycle to end.
// if the GC is not running, this function does nothing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) stopGC() {
	if hdb.gcIsRunning.CompareAndSwap(true, false) {
		close(hdb.gcStop)
		<-hdb.gcDone
	}
}

// garbageCollector is the main garbage collection loop
// WARNING: this method should never be called directly! use startGC() and stopGC()
func (hdb *DB) garbageCollector(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(hdb.opts.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hdb.collect()
		}
	}
}

// collect runs one GC cycle over all shards
func (hdb *DB) collect() {
	/*
		Note: We only get this index once at the beginning of one gc cycle to ensure that
		we don't end up in an endless loop if the index is updated during the gc cycle.
	*/
	writeIndex := hdb.currIndex.Load()

	for i, shard := range hdb.shards {
		expired, deleted := hdb.collectShard(shard, writeIndex)
		if expired > 0 || deleted > 0 {
			hdb.metrics.gcExpired.Add(expired)
			hdb.metrics.gcDeleted.Add(deleted)
			hdb.log.WithField("shard", i).Debugf("gc expired %d and deleted %d entries", expired, deleted)
		}

		if reclaimed, ok := hdb.maybeCompact(shard); ok {
			hdb.log.WithField("shard", i).Debugf("compacted shard, reclaimed %s", humanize.IBytes(uint64(reclaimed)))
		}
	}
}

// collectShard drops the values of expired entries and removes deleted entries
// of one shard. It returns how many entries were expired and deleted.
//
// Thread-safety: takes the shard's write lock.
func (hdb *DB) collectShard(shard *internal.Shard, writeIndex uint64) (expired, deleted int) {
	shard.Mu.Lock()
	defer shard.Mu.Unlock()

	// the heaps always hold the current TTLs of their keys, writes update them inline
	for {
		item, exists := shard.ExpireHeap.Peek()
		if !exists || item.Priority > writeIndex {
			break
		}
		shard.ExpireHeap.PopMin()

		e, ok := shard.Data.Get(internal.KeyBytes(item.Key))
		if !ok {
			continue
		}
		if isExpired, _ := e.TTLInfo(writeIndex); isExpired && e.Value != nil {
			shard.ValueBytes -= int64(len(e.Value))
			e.Value = nil
			expired++
		}
	}

	for {
		item, exists := shard.DeleteHeap.Peek()
		if !exists || item.Priority > writeIndex {
			break
		}
		shard.DeleteHeap.PopMin()

		key := internal.KeyBytes(item.Key)
		e, ok := shard.Data.Get(key)
		if !ok {
			continue
		}
		if _, isDeleted := e.TTLInfo(writeIndex); isDeleted {
			removed, _ := shard.Data.Remove(key)
			shard.ValueBytes -= int64(len(removed.Value))
			shard.ExpireHeap.RemoveByKey(item.Key)
			deleted++
		}
	}

	return expired, deleted
}

// maybeCompact rebuilds the trie of a shard once its orphaned bytes pass both
// CompactMinBytes and CompactRatio of the used arena bytes.
//
// Thread-safety: takes the shard's write lock.
func (hdb *DB) maybeCompact(shard *internal.Shard) (int, bool) {
	if hdb.opts.CompactRatio < 0 {
		return 0, false
	}

	shard.Mu.Lock()
	defer shard.Mu.Unlock()

	orphaned, used := shard.Data.OrphanedBytes(), shard.Data.UsedBytes()
	if orphaned < hdb.opts.CompactMinBytes || float64(orphaned) < hdb.opts.CompactRatio*float64(used) {
		return 0, false
	}

	reclaimed := shard.Data.Compact()
	hdb.metrics.compactions.Inc()
	hdb.metrics.reclaimed.Add(reclaimed)
	return reclaimed, true
}

// Compact rebuilds the tries of all shards regardless of their garbage and
// returns the number of bytes reclaimed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Compact() int {
	total := 0
	for _, shard := range hdb.shards {
		shard.Mu.Lock()
		total += shard.Data.Compact()
		shard.Mu.Unlock()
	}
	hdb.metrics.compactions.Add(len(hdb.shards))
	hdb.metrics.reclaimed.Add(total)
	return total
}

package hot

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hotkv/lib/db"
	"github.com/ValentinKolb/hotkv/lib/db/engines/hot/internal"
	"github.com/ValentinKolb/hotkv/lib/db/util"
	trie "github.com/ValentinKolb/hotkv/lib/hot"
	"github.com/ValentinKolb/hotkv/lib/logging"
	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum               = "HOTKVDB\x00"          // File format identifier
	hotVersion             = 1                      // Snapshot format version
	defaultGCInterval      = 100 * time.Millisecond // Default interval between GC runs
	defaultCompactRatio    = 0.5                    // Orphaned share of the arenas that triggers a rebuild
	defaultCompactMinBytes = 64 << 10               // Shards with less garbage are never rebuilt
)

// MaxKeyLen is the longest key the engine stores. Writes with longer keys
// are dropped.
const MaxKeyLen = trie.MaxKeyLen

// --------------------------------------------------------------------------
// Core HOT database structure
// --------------------------------------------------------------------------

// DB is a sharded, thread-safe key-value database whose shards are
// height-optimized tries. Besides db.KVDB it implements db.OrderedKVDB.
type DB struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp (for TTLInfo)

	opts    DBOptions
	log     *logrus.Entry
	metrics *engineMetrics

	// garbage collection
	gcIsRunning atomic.Bool
	gcStop      chan struct{}
	gcDone      chan struct{}
}

// DBOptions configures the DB behavior during initialization
type DBOptions struct {
	NumShards       int           // Number of shards (0 = auto)
	GCInterval      time.Duration // Time between GC runs (0 = use default: 100ms)
	CompactRatio    float64       // Orphaned/used arena bytes that trigger a shard rebuild (0 = default, < 0 = never)
	CompactMinBytes uint64        // Minimum orphaned bytes before a shard is rebuilt (0 = default)
	Compression     Compression   // Compression of snapshots written by Save
	Logger          *logrus.Entry // Logger (nil = logging.NewLogger("engine/hot"))
}

// DefaultOptions returns the default DB options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:       runtime.NumCPU(),
		GCInterval:      defaultGCInterval,
		CompactRatio:    defaultCompactRatio,
		CompactMinBytes: defaultCompactMinBytes,
		Compression:     CompressionNone,
	}
}

// withDefaults fills zero fields of o with their defaults
func (o DBOptions) withDefaults() DBOptions {
	def := DefaultOptions()
	if o.NumShards <= 0 {
		o.NumShards = def.NumShards
	}
	if o.GCInterval <= 0 {
		o.GCInterval = def.GCInterval
	}
	if o.CompactRatio == 0 {
		o.CompactRatio = def.CompactRatio
	}
	if o.CompactMinBytes == 0 {
		o.CompactMinBytes = def.CompactMinBytes
	}
	if o.Logger == nil {
		o.Logger = logging.NewLogger("engine/hot")
	}
	return o
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewHotDB creates a new DB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewHotDB(opts *DBOptions) *DB {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := opts.withDefaults()

	shards := make([]*internal.Shard, o.NumShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	newDB := &DB{
		numShards: o.NumShards,
		seed:      util.GenerateSeed(),
		shards:    shards,
		opts:      o,
		log:       o.Logger,
	}
	newDB.metrics = newEngineMetrics(newDB)

	newDB.startGC()

	return newDB
}

// shardFor returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashKey(key, hdb.seed), hdb.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key, value, and currentIndex.
// If the key already exists, the old value is overwritten.
// The writeIndex parameter is used as a logical timestamp for the entry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Set(key string, value []byte, writeIdx uint64) {
	hdb.metrics.sets.Inc()
	hdb.compute(key, value, writeIdx, 0, 0, func(new, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return new, false
	})
}

// SetE stores a value for a key with an expiration time.
// If the key already exists, the old value, old expireIn and old deleteIn are overwritten.
//
//   - key: the key to store
//   - value: the value to store
//   - writeIndex: the current logical index
//   - expireIn: when the value should expire (relative to writeIndex) (0 = no expiration, the key can still be found with the Has() method)
//   - deleteIn: when the key and value should be deleted (relative to writeIndex) (0 = no expiration)
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) SetE(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64) {
	hdb.metrics.sets.Inc()
	hdb.compute(key, value, writeIndex, expireIn, deleteIn, func(new, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return new, false
	})
}

// SetEIfUnset inserts an entry with the given key, value, and currentIndex.
// If the key already exists and is not deleted, the old entry is kept.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) SetEIfUnset(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64) {
	hdb.metrics.sets.Inc()
	hdb.compute(key, value, writeIndex, expireIn, deleteIn, func(new, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded {
			return old, false
		}
		return new, false
	})
}

// compute is the shared write path of Set, SetE, SetEIfUnset, Expire and Delete.
// It stores the entry returned by fn, keeps the GC heaps of the shard in sync
// and ignores stale writes.
//
// fn receives the new entry, the old entry and whether the old entry was loaded
// (existed and is not deleted). The bool it returns requests removal of the key.
//
// Thread-safety: The whole read-modify-write runs under the shard's write lock.
func (hdb *DB) compute(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64, fn func(new, old internal.Entry, loaded bool) (entry internal.Entry, delete bool)) {

	// the trie can't hold longer keys, the write is dropped
	if len(key) > MaxKeyLen {
		hdb.metrics.rejected.Inc()
		hdb.log.WithField("len", len(key)).Warn("key exceeds maximum length, write dropped")
		return
	}

	// update the current index
	hdb.SetWriteIdx(writeIndex)

	shard := hdb.shardFor(key)
	keyBytes := internal.KeyBytes(key)

	var valueCopy []byte
	if value != nil {
		valueCopy = make([]byte, len(value))
		copy(valueCopy, value)
	}

	var expireAt, deleteAt uint64
	if expireIn > 0 {
		expireAt = writeIndex + expireIn
	}
	if deleteIn > 0 {
		deleteAt = writeIndex + deleteIn
	}

	shard.Mu.Lock()
	defer shard.Mu.Unlock()

	stored, exists := shard.Data.Get(keyBytes)

	var oldEntry internal.Entry
	if exists {
		oldEntry = *stored

		// stale writes are ignored
		if writeIndex < oldEntry.Index {
			return
		}
	}

	// fn only ever sees a consistent view of the old entry
	loaded := exists
	if exists {
		isExpired, isDeleted := oldEntry.TTLInfo(writeIndex)
		loaded = !isDeleted
		if isExpired {
			oldEntry.Value = nil
			oldEntry.ExpireAt = writeIndex
		}
	}

	entry, del := fn(internal.Entry{
		Value:    valueCopy,
		ExpireAt: expireAt,
		DeleteAt: deleteAt,
		Index:    writeIndex,
	}, oldEntry, loaded)

	// CASE DELETE

	if del {
		if exists {
			removed, _ := shard.Data.Remove(keyBytes)
			shard.ValueBytes -= int64(len(removed.Value))
			shard.Untrack(key)
		}
		return
	}

	// CASE WRITE

	if exists {
		shard.ValueBytes += int64(len(entry.Value)) - int64(len(stored.Value))
		*stored = entry
	} else {
		shard.Data.Insert(keyBytes, entry)
		shard.ValueBytes += int64(len(entry.Value))
	}
	shard.Track(key, entry)
}

// Expire marks the entry with the specified key as expired. This change is immediate.
// The key is still findable with the Has() method.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Expire(key string, writeIndex uint64) {
	hdb.metrics.expires.Inc()
	hdb.compute(key, nil, writeIndex, 0, 0, func(_, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			return old, true
		}
		old.ExpireAt = writeIndex
		old.Value = nil
		return old, false
	})
}

// Delete removes an entry with the specified key. The key is removed from the
// trie right away and is not findable anymore.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Delete(key string, writeIndex uint64) {
	hdb.metrics.deletes.Inc()
	hdb.compute(key, nil, writeIndex, 0, 0, func(_, old internal.Entry, _ bool) (internal.Entry, bool) {
		return old, true
	})
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The boolean indicates whether a (not expired) value for the key was found.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Get(key string) ([]byte, bool) {
	hdb.metrics.gets.Inc()

	shard := hdb.shardFor(key)

	shard.Mu.RLock()
	defer shard.Mu.RUnlock()

	e, ok := shard.Data.Get(internal.KeyBytes(key))
	if !ok {
		return nil, false
	}
	if isExpired, _ := e.TTLInfo(hdb.currIndex.Load()); isExpired {
		return nil, false
	}

	hdb.metrics.hits.Inc()
	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true
}

// Has checks if a key exists in the database.
// This method does not check if the value for the key is expired. Use Get() for that.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Has(key string) bool {
	shard := hdb.shardFor(key)

	shard.Mu.RLock()
	defer shard.Mu.RUnlock()

	e, ok := shard.Data.Get(internal.KeyBytes(key))
	if !ok {
		return false
	}
	_, isDeleted := e.TTLInfo(hdb.currIndex.Load())
	return !isDeleted
}

// Len returns the number of keys stored, including expired keys and deleted
// keys the GC has not collected yet.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (hdb *DB) Len() int {
	n := 0
	for _, shard := range hdb.shards {
		shard.Mu.RLock()
		n += shard.Data.Len()
		shard.Mu.RUnlock()
	}
	return n
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Lifecycle
// --------------------------------------------------------------------------

// supportedFeatures lists every feature of the HOT engine
const supportedFeatures = db.FeatureSet |
	db.FeatureSetE |
	db.FeatureSetEIfUnset |
	db.FeatureGet |
	db.FeatureExpire |
	db.FeatureDelete |
	db.FeatureHas |
	db.FeatureSave |
	db.FeatureLoad |
	db.FeatureGarbageCollect |
	db.FeatureRange

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (hdb *DB) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

// Close stops the garbage collector
func (hdb *DB) Close() error {
	hdb.stopGC()
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// It uses atomic operations to ensure that the index only increases.
func (hdb *DB) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := hdb.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if hdb.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (hdb *DB) WriteIdx() uint64 {
	return hdb.currIndex.Load()
}

// MaxKeyLength returns MaxKeyLen
func (hdb *DB) MaxKeyLength() int {
	return MaxKeyLen
}

var (
	_ db.KVDB        = (*DB)(nil)
	_ db.OrderedKVDB = (*DB)(nil)
	_ db.KeyLimited  = (*DB)(nil)
)

package hot

import (
	"github.com/ValentinKolb/hotkv/lib/db"
	"github.com/ValentinKolb/hotkv/lib/db/engines/hot/internal"
	"github.com/ValentinKolb/hotkv/lib/db/util"
	trie "github.com/ValentinKolb/hotkv/lib/hot"
	"golang.org/x/sync/errgroup"
)

// infoSamplesPerShard bounds the entries per shard that feed the size histograms
const infoSamplesPerShard = 1000

// Info is the implementation specific metadata returned by GetInfo
type Info struct {
	CurrentWriteIndex uint64                 `json:"current_write_index"`
	ShardCount        int                    `json:"shard_count"`
	Keys              int                    `json:"keys"`
	ShardDistribution util.DistributionStats `json:"shard_distribution"`
	KeySizes          util.HistogramSummary  `json:"key_sizes"`
	ValueSizes        util.HistogramSummary  `json:"value_sizes"`
	ExpiredBacklog    float64                `json:"expired_backlog"`
	DeletedBacklog    float64                `json:"deleted_backlog"`
	Memory            trie.MemoryUsage       `json:"memory"`
	ValueBytes        int64                  `json:"value_bytes"`
	Trie              TrieStats              `json:"trie"`
	Compression       string                 `json:"compression"`
}

// TrieStats aggregates the trie statistics of all shards
type TrieStats struct {
	NodesReachable int     `json:"nodes_reachable"`
	LengthNodes    int     `json:"length_nodes"`
	MaxDepth       int     `json:"max_depth"`
	AvgDepth       float64 `json:"avg_depth"`
	OrphanedBytes  uint64  `json:"orphaned_bytes"`
	BytesPerKey    float64 `json:"bytes_per_key"`
}

// shardInfo is collected for each shard under its read lock
type shardInfo struct {
	keys    int
	expired int
	deleted int
	sampled int
	memory  trie.MemoryUsage
	values  int64
	stats   trie.Stats
}

// GetInfo returns statistics about the database.
// SizeBytes is exact: the reserved arena capacity of all tries plus the stored
// value bytes. Key and value size histograms and GC backlogs are sampled.
func (hdb *DB) GetInfo() db.DatabaseInfo {
	currentWriteIndex := hdb.currIndex.Load()

	keySizes := util.NewHistogram(util.KeySizeBoundaries)
	valueSizes := util.NewHistogram(util.ValueSizeBoundaries)
	infos := make([]shardInfo, len(hdb.shards))

	g := new(errgroup.Group)
	for i, shard := range hdb.shards {
		g.Go(func() error {
			localKeys := util.NewHistogram(util.KeySizeBoundaries)
			localValues := util.NewHistogram(util.ValueSizeBoundaries)
			infos[i] = inspectShard(shard, currentWriteIndex, localKeys, localValues)
			keySizes.Merge(localKeys)
			valueSizes.Merge(localValues)
			return nil
		})
	}
	_ = g.Wait()

	meta := &Info{
		CurrentWriteIndex: currentWriteIndex,
		ShardCount:        len(hdb.shards),
		KeySizes:          keySizes.Summary(),
		ValueSizes:        valueSizes.Summary(),
		Compression:       hdb.opts.Compression.String(),
	}

	shardSizes := make([]float64, len(infos))
	var (
		sampled, expired, deleted int
		depthSum                  float64
	)
	for i, info := range infos {
		shardSizes[i] = float64(info.keys)
		meta.Keys += info.keys
		sampled += info.sampled
		expired += info.expired
		deleted += info.deleted

		meta.Memory.KeyData += info.memory.KeyData
		meta.Memory.NodeData += info.memory.NodeData
		meta.Memory.Values += info.memory.Values
		meta.Memory.Bitmap += info.memory.Bitmap
		meta.Memory.Total += info.memory.Total
		meta.ValueBytes += info.values

		meta.Trie.NodesReachable += info.stats.NodesReachable
		meta.Trie.LengthNodes += info.stats.LengthNodes
		meta.Trie.OrphanedBytes += info.stats.OrphanedBytes
		meta.Trie.MaxDepth = max(meta.Trie.MaxDepth, info.stats.MaxDepth)
		depthSum += info.stats.AvgDepth * float64(info.stats.LiveLeaves)
	}
	meta.ShardDistribution = util.NewDistributionStats(shardSizes)
	if sampled > 0 {
		// share of entries that are expired or deleted but not yet processed by the gc
		meta.ExpiredBacklog = float64(expired) / float64(sampled)
		meta.DeletedBacklog = float64(deleted) / float64(sampled)
	}
	if meta.Keys > 0 {
		meta.Trie.AvgDepth = depthSum / float64(meta.Keys)
		meta.Trie.BytesPerKey = float64(meta.Memory.KeyData+meta.Memory.NodeData) / float64(meta.Keys)
	}

	return db.DatabaseInfo{
		SizeBytes:         int(meta.Memory.Total) + int(meta.ValueBytes),
		DbType:            db.ImplHOT,
		SupportedFeatures: supportedFeatures.Features(),
		Metadata:          meta,
	}
}

// inspectShard collects the statistics of one shard
//
// Thread-safety: takes the shard's read lock.
func inspectShard(shard *internal.Shard, writeIndex uint64, keySizes, valueSizes *util.Histogram) shardInfo {
	shard.Mu.RLock()
	defer shard.Mu.RUnlock()

	info := shardInfo{
		keys:   shard.Data.Len(),
		memory: shard.Data.MemoryUsage(),
		values: shard.ValueBytes,
		stats:  shard.Data.Stats(),
	}

	for key, e := range shard.Data.All() {
		keySizes.AddSample(len(key))
		valueSizes.AddSample(len(e.Value))

		isExpired, isDeleted := e.TTLInfo(writeIndex)
		if isExpired && e.Value != nil {
			info.expired++
		}
		if isDeleted {
			info.deleted++
		}

		info.sampled++
		if info.sampled >= infoSamplesPerShard {
			break
		}
	}
	return info
}

package hot

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/hotkv/lib/db"
	dbtesting "github.com/ValentinKolb/hotkv/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "HOT", func() db.KVDB {
		return NewHotDB(nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunKVDBTests(t, "HOT/1", func() db.KVDB {
		return NewHotDB(&DBOptions{NumShards: 1})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "HOT", func() db.KVDB {
		return NewHotDB(nil)
	})
}

// newTestDB returns a database with a GC interval that is long enough to never
// interfere with a test unless it calls collect itself
func newTestDB(t *testing.T, opts DBOptions) *DB {
	if opts.GCInterval == 0 {
		opts.GCInterval = time.Hour
	}
	hdb := NewHotDB(&opts)
	t.Cleanup(func() { hdb.Close() })
	return hdb
}

func TestKeyTooLong(t *testing.T) {
	hdb := newTestDB(t, DBOptions{})

	tooLong := strings.Repeat("k", MaxKeyLen+1)
	hdb.Set(tooLong, []byte("v"), 1)

	_, ok := hdb.Get(tooLong)
	assert.False(t, ok)
	assert.False(t, hdb.Has(tooLong))
	assert.Equal(t, int64(1), hdb.metrics.rejected.Value())
	assert.Equal(t, 0, hdb.Len())

	longest := strings.Repeat("k", MaxKeyLen)
	hdb.Set(longest, []byte("v"), 2)
	v, ok := hdb.Get(longest)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestGarbageCollection(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 4})

	for i := 0; i < 100; i++ {
		hdb.SetE(fmt.Sprintf("expire-%03d", i), []byte("value"), 1, 10, 0)
		hdb.SetE(fmt.Sprintf("delete-%03d", i), []byte("value"), 1, 0, 10)
		hdb.Set(fmt.Sprintf("keep-%03d", i), []byte("value"), 1)
	}
	require.Equal(t, 300, hdb.Len())

	// nothing is due yet
	hdb.collect()
	assert.Equal(t, 300, hdb.Len())

	hdb.SetWriteIdx(11)
	hdb.collect()

	// deleted keys are gone, expired keys stay without their value
	assert.Equal(t, 200, hdb.Len())
	assert.True(t, hdb.Has("expire-000"))
	assert.False(t, hdb.Has("delete-000"))
	for _, shard := range hdb.shards {
		assert.Zero(t, shard.ExpireHeap.Len())
		assert.Zero(t, shard.DeleteHeap.Len())
	}

	var valueBytes int64
	for _, shard := range hdb.shards {
		valueBytes += shard.ValueBytes
	}
	assert.Equal(t, int64(100*len("value")), valueBytes)
}

func TestGCHeapsFollowUpdates(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 1})
	shard := hdb.shards[0]

	hdb.SetE("key", []byte("v1"), 1, 5, 10)
	assert.Equal(t, 1, shard.ExpireHeap.Len())
	assert.Equal(t, 1, shard.DeleteHeap.Len())

	// a plain Set drops the ttl
	hdb.Set("key", []byte("v2"), 2)
	assert.Zero(t, shard.ExpireHeap.Len())
	assert.Zero(t, shard.DeleteHeap.Len())

	hdb.SetWriteIdx(20)
	hdb.collect()
	v, ok := hdb.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	// Delete untracks right away
	hdb.SetE("other", []byte("v"), 21, 5, 10)
	hdb.Delete("other", 22)
	assert.Zero(t, shard.ExpireHeap.Len())
	assert.Zero(t, shard.DeleteHeap.Len())
}

func TestCompaction(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 2, CompactMinBytes: 1, CompactRatio: 0.25})

	for i := 0; i < 2000; i++ {
		hdb.Set(fmt.Sprintf("https://example.com/item/%05d", i), []byte("v"), 1)
	}
	for i := 0; i < 2000; i += 2 {
		hdb.Delete(fmt.Sprintf("https://example.com/item/%05d", i), 2)
	}

	var orphaned uint64
	for _, shard := range hdb.shards {
		orphaned += shard.Data.OrphanedBytes()
	}
	require.NotZero(t, orphaned)

	hdb.collect()

	for _, shard := range hdb.shards {
		assert.Zero(t, shard.Data.OrphanedBytes(), "shard should have been compacted")
	}
	assert.Equal(t, 1000, hdb.Len())
	for i := 1; i < 2000; i += 2 {
		_, ok := hdb.Get(fmt.Sprintf("https://example.com/item/%05d", i))
		require.True(t, ok)
	}
}

func TestCompactionDisabled(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 1, CompactMinBytes: 1, CompactRatio: -1})

	for i := 0; i < 100; i++ {
		hdb.Set(fmt.Sprintf("key-%d", i), nil, 1)
		hdb.Delete(fmt.Sprintf("key-%d", i), 2)
	}
	hdb.collect()
	assert.NotZero(t, hdb.shards[0].Data.OrphanedBytes())

	assert.Positive(t, hdb.Compact())
	assert.Zero(t, hdb.shards[0].Data.OrphanedBytes())
}

func TestSnapshotCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			src := newTestDB(t, DBOptions{NumShards: 3, Compression: c})
			for i := 0; i < 500; i++ {
				src.Set(fmt.Sprintf("key-%03d", i), bytes.Repeat([]byte{byte(i)}, i), uint64(i+1))
			}
			src.SetE("expired", []byte("gone"), 600, 1, 0)
			src.SetWriteIdx(601)
			src.SetE("deleted", []byte("gone"), 601, 0, 1)
			src.SetWriteIdx(602)

			var buf bytes.Buffer
			require.NoError(t, src.Save(&buf))

			// the reader takes the compression from the header
			dst := newTestDB(t, DBOptions{NumShards: 5})
			require.NoError(t, dst.Load(&buf))

			assert.Equal(t, src.WriteIdx(), dst.WriteIdx())
			assert.Equal(t, src.seed, dst.seed)
			for i := 0; i < 500; i++ {
				v, ok := dst.Get(fmt.Sprintf("key-%03d", i))
				require.True(t, ok)
				assert.Equal(t, bytes.Repeat([]byte{byte(i)}, i), v)
			}

			_, ok := dst.Get("expired")
			assert.False(t, ok)
			assert.True(t, dst.Has("expired"))
			assert.False(t, dst.Has("deleted"))
			assert.Equal(t, 501, dst.Len())
		})
	}
}

func TestLoadRejectsBadHeaders(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 1})
	hdb.Set("key", []byte("value"), 1)

	var buf bytes.Buffer
	require.NoError(t, hdb.Save(&buf))
	valid := buf.Bytes()

	corrupt := func(i int, b byte) []byte {
		c := bytes.Clone(valid)
		c[i] = b
		return c
	}

	assert.ErrorContains(t, hdb.Load(bytes.NewReader(corrupt(0, 'X'))), "magic number")
	assert.ErrorContains(t, hdb.Load(bytes.NewReader(corrupt(len(magicNum), 99))), "unsupported version")
	assert.ErrorContains(t, hdb.Load(bytes.NewReader(corrupt(len(magicNum)+9, 42))), "unsupported compression")
	assert.Error(t, hdb.Load(bytes.NewReader(valid[:len(valid)-2])), "truncated snapshot")

	// failed loads leave the database untouched
	v, ok := hdb.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "ZSTD": CompressionZstd, "lz4": CompressionLZ4} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestGetInfo(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 4})

	for i := 0; i < 1000; i++ {
		hdb.Set(fmt.Sprintf("https://example.com/%d", i), []byte("0123456789"), 1)
	}

	info := hdb.GetInfo()
	assert.Equal(t, db.ImplHOT, info.DbType)
	assert.Contains(t, info.SupportedFeatures, db.FeatureRange)

	meta, ok := info.Metadata.(*Info)
	require.True(t, ok)
	assert.Equal(t, 1000, meta.Keys)
	assert.Equal(t, 4, meta.ShardCount)
	assert.Equal(t, int64(10000), meta.ValueBytes)
	assert.Equal(t, int(meta.Memory.Total)+10000, info.SizeBytes)
	assert.Equal(t, int64(1000), meta.KeySizes.Count)
	assert.Positive(t, meta.Trie.AvgDepth)
	assert.Positive(t, meta.Trie.BytesPerKey)
	assert.Zero(t, meta.ExpiredBacklog)
}

func TestSupportsFeature(t *testing.T) {
	hdb := newTestDB(t, DBOptions{})
	assert.True(t, hdb.SupportsFeature(db.FeatureRange|db.FeatureSave|db.FeatureGarbageCollect))
	assert.False(t, hdb.SupportsFeature(db.Feature(1<<40)))
}

func TestWritePrometheus(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 2})
	hdb.Set("a", []byte("1"), 1)
	hdb.Get("a")
	hdb.Get("missing")
	hdb.Range("", "", func(string, []byte) bool { return true })

	var buf bytes.Buffer
	hdb.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `hotkv_ops_total{op="set"} 1`)
	assert.Contains(t, out, `hotkv_ops_total{op="get"} 2`)
	assert.Contains(t, out, `hotkv_get_hits_total 1`)
	assert.Contains(t, out, `hotkv_ops_total{op="range"} 1`)
	assert.Contains(t, out, "hotkv_keys 1")
}

func TestRangeAcrossBatches(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 3})

	n := rangeBatchSize*4 + 7
	for i := 0; i < n; i++ {
		hdb.Set(fmt.Sprintf("key-%05d", i), []byte{byte(i)}, 1)
	}
	// invisible entries inside a batch are skipped without ending the scan
	for i := 0; i < n; i += 3 {
		hdb.Expire(fmt.Sprintf("key-%05d", i), 2)
	}

	var keys []string
	hdb.Range("key-00010", "key-01000", func(key string, value []byte) bool {
		keys = append(keys, key)
		return true
	})

	var want []string
	for i := 10; i < 1000; i++ {
		if i%3 != 0 {
			want = append(want, fmt.Sprintf("key-%05d", i))
		}
	}
	assert.Equal(t, want, keys)
}

func TestRangeCallbackMayWrite(t *testing.T) {
	hdb := newTestDB(t, DBOptions{NumShards: 2})
	for i := 0; i < 10; i++ {
		hdb.Set(fmt.Sprintf("key-%d", i), nil, 1)
	}

	// fn runs without locks, so writing from it must not deadlock
	seen := 0
	hdb.Range("", "", func(key string, _ []byte) bool {
		hdb.Delete(key, 2)
		seen++
		return true
	})
	assert.Equal(t, 10, seen)
	assert.Zero(t, hdb.Len())
}

func TestCloseIsIdempotent(t *testing.T) {
	hdb := NewHotDB(&DBOptions{NumShards: 1, GCInterval: time.Millisecond})
	hdb.SetE("key", []byte("v"), 1, 0, 1)
	hdb.SetWriteIdx(5)

	require.Eventually(t, func() bool { return hdb.Len() == 0 }, time.Second, time.Millisecond)

	assert.NoError(t, hdb.Close())
	assert.NoError(t, hdb.Close())
}

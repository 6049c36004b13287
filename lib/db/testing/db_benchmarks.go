package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/hotkv/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("SetExisting", func(b *testing.B) {
			benchmarkSetExisting(b, factory())
		})

		b.Run("SetLargeValue", func(b *testing.B) {
			benchmarkSetLargeValue(b, factory())
		})

		b.Run("SetWithExpiry", func(b *testing.B) {
			benchmarkSetWithExpiry(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("GetWithExpiry", func(b *testing.B) {
			benchmarkGetWithExpiry(b, factory())
		})

		b.Run("Delete", func(b *testing.B) {
			benchmarkDelete(b, factory())
		})

		b.Run("Has", func(b *testing.B) {
			benchmarkHas(b, factory())
		})

		b.Run("Has(not)", func(b *testing.B) {
			benchmarkHasNot(b, factory())
		})

		b.Run("Range", func(b *testing.B) {
			benchmarkRange(b, factory())
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})

		b.Run("MemoryPerKey", func(b *testing.B) {
			benchmarkMemoryPerKey(b, factory)
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})

		b.Run("MixedUsageWithExpiry", func(b *testing.B) {
			benchmarkMixedOperationsWithExpiry(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// populate writes n keys of the form prefix + i with small values and returns the keys
func populate(database db.KVDB, prefix string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s%d", prefix, i)
		database.Set(keys[i], []byte(fmt.Sprintf("test-value-%d", i)), 0)
	}
	return keys
}

// urlKey returns a URL-like key, the typical workload of an ordered index
func urlKey(i int) string {
	return fmt.Sprintf("https://www.example.com/section-%d/article/%d?ref=feed", i%97, i)
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Set(fmt.Sprintf("test-key-%d", counter), []byte(fmt.Sprintf("test-value-%d", counter)), 0)
			counter++
		}
	})
}

// Benchmark for Set operation with existing keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet)

	keys := populate(database, "test-key-", min(b.N, 100_000))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Set(keys[counter%len(keys)], []byte(fmt.Sprintf("test-value-%d", counter)), 0)
			counter++
		}
	})
}

// Benchmark for Set operation with large values
func benchmarkSetLargeValue(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet)

	largeValue := make([]byte, 1*1024*1024) // 1MB

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Set(fmt.Sprintf("test-key-%d", counter%64), largeValue, 0)
			counter++
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	keys := populate(database, "test-key-", 10_000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(keys[counter%len(keys)])
			counter++
		}
	})
}

// Parallel benchmarking for Delete operation
func benchmarkDelete(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureDelete)

	keys := populate(database, "test-key-", min(b.N, 100_000))

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Delete(keys[int(counter.Add(1)-1)%len(keys)], 0)
		}
	})
}

// Parallel benchmarking for Has operation (with key miss)
func benchmarkHasNot(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureHas)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Has("test-key")
		}
	})
}

// Parallel benchmarking for Has operation
func benchmarkHas(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureHas)

	keys := populate(database, "test-key-", 10_000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Has(keys[counter%len(keys)])
			counter++
		}
	})
}

// Benchmark for ordered scans of 100 keys from a random start
func benchmarkRange(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	ordered := requireOrdered(b, database)

	numKeys := 100_000
	for i := 0; i < numKeys; i++ {
		ordered.Set(urlKey(i), []byte("v"), 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			n := 0
			ordered.Range(urlKey(rnd.Intn(numKeys)), "", func(string, []byte) bool {
				n++
				return n < 100
			})
		}
	})
}

// Benchmark for Save and Load operations
// For these operations, parallelization is not meaningful as they typically
// lock the entire database
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)

	populate(database, "test-key-", 10_000)

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	var loadBuf bytes.Buffer
	if err := database.Save(&loadBuf); err != nil {
		b.Fatal(err)
	}
	data := loadBuf.Bytes()
	b.ReportMetric(float64(len(data)), "snapshot-B")

	b.Run("Load", func(b *testing.B) {
		loadDB := factory()
		b.Cleanup(func() { loadDB.Close() })
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := loadDB.Load(bytes.NewReader(data)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// benchmarkMemoryPerKey reports the bytes the database reserves per stored
// URL-like key (values are empty)
func benchmarkMemoryPerKey(b *testing.B, factory DBFactory) {
	const numKeys = 100_000

	for i := 0; i < b.N; i++ {
		database := factory()
		requireFeature(b, database, db.FeatureSet)
		for k := 0; k < numKeys; k++ {
			database.Set(urlKey(k), nil, 0)
		}

		b.StopTimer()
		info := database.GetInfo()
		b.ReportMetric(float64(info.SizeBytes)/numKeys, "B/key")
		database.Close()
		b.StartTimer()
	}
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureHas)

	keys := populate(database, "test-key-", min(b.N, 100_000))

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		localCounter := 0
		for pb.Next() {
			idx := int(counter.Add(1)-1) % len(keys)

			// every 10th operation uses a new key
			key := keys[idx]
			if localCounter%10 == 0 {
				key = fmt.Sprintf("new-key-%d", localCounter)
			}

			switch localCounter % 4 {
			case 0:
				database.Get(key)
			case 1:
				database.Set(key, []byte(fmt.Sprintf("mixed-value-%d", localCounter)), 0)
			case 2:
				database.Delete(key, 0)
			case 3:
				database.Has(key)
			}
			localCounter++
		}
	})
}

// benchmarkSetWithExpiry tests the performance of SetE with TTL
func benchmarkSetWithExpiry(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSetE)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		currentIndex := uint64(0)
		for pb.Next() {
			key := fmt.Sprintf("test-expiry-key-%d", currentIndex)
			database.SetE(key, []byte(key), currentIndex, currentIndex+1, currentIndex+2)
			currentIndex++
		}
	})
}

// benchmarkGetWithExpiry tests the performance of Get with expired keys
func benchmarkGetWithExpiry(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSetE|db.FeatureGet)

	numKeys := 10_000
	baseIndex := uint64(1000)
	for i := 0; i < numKeys; i++ {
		ttl := uint64(0)
		if i%2 == 0 {
			ttl = uint64(i % 1000)
		}
		database.SetE(fmt.Sprintf("test-expiry-key-%d", i), []byte("test-expiry-value"), baseIndex, 0, ttl)
	}

	// about 25% of keys are deleted at this index
	database.SetWriteIdx(baseIndex + 500)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(fmt.Sprintf("test-expiry-key-%d", counter%numKeys))
			counter++
		}
	})
}

// benchmarkMixedOperationsWithExpiry tests mixed operations with expiration
func benchmarkMixedOperationsWithExpiry(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { database.Close() })
	requireFeature(b, database, db.FeatureSetE|db.FeatureGet)

	numKeys := 50_000
	baseIndex := uint64(1000)
	for i := 0; i < numKeys; i++ {
		database.SetE(fmt.Sprintf("test-mixed-key-%d", i), []byte("test-mixed-value"), baseIndex, 0, uint64(i%2000))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			key := fmt.Sprintf("test-mixed-key-%d", counter%numKeys)

			// 70% Get, 30% Set with TTL
			if rnd.Float32() < .7 {
				database.Get(key)
			} else {
				value := []byte(fmt.Sprintf("test-mixed-updated-value-%d", counter))
				database.SetE(key, value, baseIndex+uint64(counter), 0, uint64(rnd.Intn(1000)))
			}
			counter++
		}
	})
}

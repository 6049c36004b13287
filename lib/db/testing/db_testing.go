package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/hotkv/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
// Implementations that support db.FeatureRange are also run through the
// ordered range tests.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Expire", func(t *testing.T) {
			testExpire(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			testSetEIfUnset(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})

		t.Run("Ordered", func(t *testing.T) {
			RunOrderedKVDBTests(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skipf("feature %s not supported", feature)
	}
}

// requireValue fails the test unless key holds value
func requireValue(t testing.TB, database db.KVDB, key string, value []byte) {
	t.Helper()
	got, ok := database.Get(key)
	require.Truef(t, ok, "key %q not found", key)
	require.Truef(t, bytes.Equal(value, got), "key %q: expected %q, got %q", key, value, got)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("test-key", []byte("test-value1"), 0)
	requireValue(t, database, "test-key", []byte("test-value1"))

	database.Set("test-key", []byte("test-value2"), 0)
	requireValue(t, database, "test-key", []byte("test-value2"))

	_, exists := database.Get("nonexistent-key")
	assert.False(t, exists, "nonexistent key must not be found")

	// Get returns a copy
	retrieved, _ := database.Get("test-key")
	retrieved[0] = 'X'
	requireValue(t, database, "test-key", []byte("test-value2"))

	// Set copies its input
	input := []byte("updated-value")
	database.Set("test-key", input, 1)
	input[0] = 'X'
	requireValue(t, database, "test-key", []byte("updated-value"))
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureGet|db.FeatureHas)

	value := []byte("expiring-value")
	database.SetE("expiring-key", value, 100, 10, 20)

	database.SetWriteIdx(109)
	requireValue(t, database, "expiring-key", value)
	assert.True(t, database.Has("expiring-key"), "key should exist at index 109")

	database.SetWriteIdx(110)
	_, exists := database.Get("expiring-key")
	assert.False(t, exists, "key should have expired at index 110")
	assert.True(t, database.Has("expiring-key"), "expired key should still be found by Has")

	database.SetWriteIdx(120)
	_, exists = database.Get("expiring-key")
	assert.False(t, exists, "key should have been deleted at index 120")
	assert.False(t, database.Has("expiring-key"), "deleted key should not be found by Has")

	// deleteIn without expireIn
	database.SetE("test-key2", []byte("test-value2"), 200, 0, 10)
	database.SetWriteIdx(209)
	requireValue(t, database, "test-key2", []byte("test-value2"))
	database.SetWriteIdx(210)
	_, exists = database.Get("test-key2")
	assert.False(t, exists, "key should have been deleted at index 210")
	assert.False(t, database.Has("test-key2"))

	// no ttl
	database.SetE("not-expiring-key", []byte("not-expiring-value"), 300, 0, 0)
	database.SetWriteIdx(1000)
	requireValue(t, database, "not-expiring-key", []byte("not-expiring-value"))
	assert.True(t, database.Has("not-expiring-key"))
}

func testManyExpiringKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureGet|db.FeatureHas)

	numKeys := 1000
	baseIndex := uint64(1000)

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		database.SetE(key, []byte(fmt.Sprintf("expire-value-%d", i)), baseIndex, uint64(i%100), 0)
		require.Truef(t, database.Has(key), "key %s not found after Set", key)
	}

	for offset := uint64(0); offset <= 100; offset += 10 {
		database.SetWriteIdx(baseIndex + offset)

		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("expire-key-%d", i)
			ttl := uint64(i % 100)

			_, exists := database.Get(key)
			if ttl > 0 && ttl <= offset {
				assert.Falsef(t, exists, "key %s should have expired at offset %d (TTL=%d)", key, offset, ttl)
			} else {
				assert.Truef(t, exists, "key %s should be live at offset %d (TTL=%d)", key, offset, ttl)
			}
		}
	}
}

func testExpire(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureExpire)

	value := []byte("expire-test-value")
	database.Set("expire-test-key", value, 0)
	requireValue(t, database, "expire-test-key", value)

	database.Expire("expire-test-key", 10)

	_, exists := database.Get("expire-test-key")
	assert.False(t, exists, "key should not be returned after Expire")
	assert.True(t, database.Has("expire-test-key"), "key should still be found by Has after Expire")

	// expiring a missing key must not create it
	database.Expire("nonexistent-key", 11)
	assert.False(t, database.Has("nonexistent-key"))
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("delete-test-key", []byte("delete-test-value"), 0)
	requireValue(t, database, "delete-test-key", []byte("delete-test-value"))

	database.Delete("delete-test-key", 10)

	_, exists := database.Get("delete-test-key")
	assert.False(t, exists, "key should not be returned after Delete")
	assert.False(t, database.Has("delete-test-key"), "key should not be found after Delete")

	// deleting a missing key must not create it
	database.Delete("nonexistent-key", 11)
	assert.False(t, database.Has("nonexistent-key"))

	// a key can be written again after it was deleted
	database.Set("delete-test-key", []byte("again"), 12)
	requireValue(t, database, "delete-test-key", []byte("again"))
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureExpire|db.FeatureHas)

	assert.False(t, database.Has("has-exists-test-key"), "Has should return false for a nonexistent key")

	database.Set("has-exists-test-key", []byte("has-exists-test-value"), 0)
	assert.True(t, database.Has("has-exists-test-key"), "Has should return true after Set")

	database.Expire("has-exists-test-key", 0)
	assert.True(t, database.Has("has-exists-test-key"), "Has should return true after Expire")
}

func testSetEIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetEIfUnset|db.FeatureGet)

	database.SetEIfUnset("test-key", []byte("test-value"), 0, 10, 0)
	requireValue(t, database, "test-key", []byte("test-value"))

	database.SetEIfUnset("test-key", []byte("test-value2"), 5, 20, 0)
	requireValue(t, database, "test-key", []byte("test-value"))

	database.SetWriteIdx(11)
	_, exists := database.Get("test-key")
	assert.False(t, exists, "key should not be returned after its ttl expired")

	// a deleted key counts as unset
	database.SetE("deleted-key", []byte("old"), 20, 0, 1)
	database.SetEIfUnset("deleted-key", []byte("new"), 21, 0, 0)
	requireValue(t, database, "deleted-key", []byte("new"))
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("stale-key", []byte("new"), 10)
	database.Set("stale-key", []byte("old"), 5)
	requireValue(t, database, "stale-key", []byte("new"))

	// equal indices are applied
	database.Set("stale-key", []byte("same"), 10)
	requireValue(t, database, "stale-key", []byte("same"))

	assert.GreaterOrEqual(t, database.WriteIdx(), uint64(10))
	database.SetWriteIdx(3)
	assert.GreaterOrEqual(t, database.WriteIdx(), uint64(10), "the write index never decreases")
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.Set(fmt.Sprintf("save-load-test-key-%d", i), []byte(fmt.Sprintf("save-load-test-value-%d", i)), 0)
	}
	database.SetE("save-load-expiring", []byte("v"), 1, 5, 0)

	var buf bytes.Buffer
	require.NoError(t, database.Save(&buf))
	require.NoError(t, database2.Load(&buf))

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		requireValue(t, database2, key, value)
		requireValue(t, database, key, value)
	}

	assert.Equal(t, database.WriteIdx(), database2.WriteIdx(), "write index should survive Save/Load")

	// ttl metadata survives
	requireValue(t, database2, "save-load-expiring", []byte("v"))
	database2.SetWriteIdx(6)
	_, exists := database2.Get("save-load-expiring")
	assert.False(t, exists, "loaded entry should expire at its saved index")

	assert.Error(t, database2.Load(bytes.NewReader([]byte("not a snapshot"))), "Load should reject garbage")
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("", []byte("value for empty key"), 0)
	requireValue(t, database, "", []byte("value for empty key"))

	var emptyValue []byte
	database.Set("empty-value-key", emptyValue, 0)
	requireValue(t, database, "empty-value-key", emptyValue)

	database.Set("nil-value-key", nil, 0)
	result, exists := database.Get("nil-value-key")
	require.True(t, exists, "key for nil value not found after Set")
	assert.Empty(t, result)

	// keys that only differ by trailing zero bytes are distinct
	database.Set("zero", []byte("0"), 0)
	database.Set("zero\x00", []byte("1"), 0)
	database.Set("zero\x00\x00", []byte("2"), 0)
	requireValue(t, database, "zero", []byte("0"))
	requireValue(t, database, "zero\x00", []byte("1"))
	requireValue(t, database, "zero\x00\x00", []byte("2"))

	largeKey := string(make([]byte, 1000))
	database.Set(largeKey, []byte("value for large key"), 0)
	requireValue(t, database, largeKey, []byte("value for large key"))

	largeValue := make([]byte, 100*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	database.Set("large-value-key", largeValue, 0)
	result, exists = database.Get("large-value-key")
	require.True(t, exists, "key for large value not found after Set")
	require.Equal(t, len(largeValue), len(result), "large value size mismatch")
	assert.True(t, bytes.Equal(result, largeValue), "large value content mismatch")
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)), 0)
	}
	for i := 0; i < numKeys; i++ {
		requireValue(t, database, fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)))
	}

	for i := 0; i < numKeys; i += 2 {
		database.Delete(fmt.Sprintf("%s%d", prefix, i), 10)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := database.Get(key)
		if i%2 == 0 {
			assert.Falsef(t, exists, "key %s should be deleted", key)
		} else {
			assert.Truef(t, exists, "key %s should still exist", key)
		}
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)
	allKeys := make(map[string]bool)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "set"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		// a few hot keys shared by all workers, the rest is unique
		key := fmt.Sprintf("key-%d", i)
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		}

		var value []byte
		if op == "set" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := range value {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
		allKeys[key] = true
	}

	numWorkers := 8
	opsPerWorker := numOperations / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for _, op := range operations[workerId*opsPerWorker : (workerId+1)*opsPerWorker] {
				switch op.op {
				case "set":
					database.Set(op.key, op.value, 0)
				case "get":
					database.Get(op.key)
				case "delete":
					database.Delete(op.key, 0)
				}
			}
		}(w)
	}
	wg.Wait()

	// once the writers are done, concurrent readers must agree with each other
	var (
		mu        sync.Mutex
		keyValues = make(map[string][]byte)
	)
	var verifyWg sync.WaitGroup
	for key := range allKeys {
		verifyWg.Add(1)
		go func(k string) {
			defer verifyWg.Done()
			if value, ok := database.Get(k); ok {
				mu.Lock()
				keyValues[k] = value
				mu.Unlock()
			}
		}(key)
	}
	verifyWg.Wait()

	for key := range allKeys {
		value, exists := database.Get(key)
		expected, existed := keyValues[key]
		if !assert.Equalf(t, existed, exists, "existence of key %s changed between passes", key) {
			continue
		}
		if exists {
			assert.Truef(t, bytes.Equal(value, expected), "value of key %s changed between passes", key)
		}
	}
}

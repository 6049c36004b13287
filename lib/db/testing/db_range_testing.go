package testing

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/hotkv/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunOrderedKVDBTests runs the range scan tests for a db.OrderedKVDB.
// The tests are skipped if the implementation does not support db.FeatureRange.
func RunOrderedKVDBTests(t *testing.T, factory DBFactory) {
	t.Run("RangeAll", func(t *testing.T) {
		testRangeAll(t, factory())
	})

	t.Run("RangeBounds", func(t *testing.T) {
		testRangeBounds(t, factory())
	})

	t.Run("RangeEarlyStop", func(t *testing.T) {
		testRangeEarlyStop(t, factory())
	})

	t.Run("RangeSkipsInvisible", func(t *testing.T) {
		testRangeSkipsInvisible(t, factory())
	})

	t.Run("RangeByteOrder", func(t *testing.T) {
		testRangeByteOrder(t, factory())
	})

	t.Run("RangeConcurrentWrites", func(t *testing.T) {
		testRangeConcurrentWrites(t, factory())
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireOrdered returns database as db.OrderedKVDB or skips the test
func requireOrdered(t testing.TB, database db.KVDB) db.OrderedKVDB {
	requireFeature(t, database, db.FeatureRange)
	ordered, ok := database.(db.OrderedKVDB)
	require.True(t, ok, "FeatureRange is advertised but db.OrderedKVDB is not implemented")
	return ordered
}

// collectRange returns the keys Range visits
func collectRange(database db.OrderedKVDB, start, end string) []string {
	var keys []string
	database.Range(start, end, func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testRangeAll(t *testing.T, database db.KVDB) {
	defer database.Close()
	ordered := requireOrdered(t, database)

	assert.Empty(t, collectRange(ordered, "", ""), "empty database should yield nothing")

	numKeys := 2000
	expected := make([]string, 0, numKeys)
	for _, i := range rand.Perm(numKeys) {
		key := fmt.Sprintf("https://example.com/%d/page", i)
		ordered.Set(key, []byte(key), 0)
		expected = append(expected, key)
	}
	slices.Sort(expected)

	var keys []string
	ordered.Range("", "", func(key string, value []byte) bool {
		assert.Equal(t, key, string(value))
		keys = append(keys, key)
		return true
	})
	assert.Equal(t, expected, keys)
}

func testRangeBounds(t *testing.T, database db.KVDB) {
	defer database.Close()
	ordered := requireOrdered(t, database)

	for _, k := range []string{"a", "ab", "abc", "b", "ba", "c"} {
		ordered.Set(k, []byte(k), 0)
	}

	tests := []struct {
		start, end string
		want       []string
	}{
		{"", "", []string{"a", "ab", "abc", "b", "ba", "c"}},
		{"ab", "", []string{"ab", "abc", "b", "ba", "c"}},
		{"aa", "b", []string{"ab", "abc"}},
		{"b", "c", []string{"b", "ba"}},
		{"", "a", nil},
		{"c", "", []string{"c"}},
		{"d", "", nil},
		{"b", "b", nil},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, collectRange(ordered, tt.start, tt.end), "Range(%q, %q)", tt.start, tt.end)
	}
}

func testRangeEarlyStop(t *testing.T, database db.KVDB) {
	defer database.Close()
	ordered := requireOrdered(t, database)

	for i := 0; i < 1000; i++ {
		ordered.Set(fmt.Sprintf("key-%04d", i), nil, 0)
	}

	var keys []string
	ordered.Range("key-0100", "", func(key string, _ []byte) bool {
		keys = append(keys, key)
		return len(keys) < 3
	})
	assert.Equal(t, []string{"key-0100", "key-0101", "key-0102"}, keys)
}

func testRangeSkipsInvisible(t *testing.T, database db.KVDB) {
	defer database.Close()
	ordered := requireOrdered(t, database)

	ordered.Set("live", []byte("1"), 1)
	ordered.SetE("expiring", []byte("2"), 1, 5, 0)
	ordered.SetE("deleting", []byte("3"), 1, 0, 5)
	ordered.Set("removed", []byte("4"), 1)
	ordered.Set("expired", []byte("5"), 1)

	ordered.Delete("removed", 2)
	ordered.Expire("expired", 3)

	assert.Equal(t, []string{"deleting", "expiring", "live"}, collectRange(ordered, "", ""))

	ordered.SetWriteIdx(6)
	assert.Equal(t, []string{"live"}, collectRange(ordered, "", ""))
}

func testRangeByteOrder(t *testing.T, database db.KVDB) {
	defer database.Close()
	ordered := requireOrdered(t, database)

	keys := []string{"", "\x00", "\x00\x00", "\x01", "a", "a\x00", "a\x00\x00", "a\x7f", "a\x80", "a\xff", "\xff"}
	for _, i := range rand.Perm(len(keys)) {
		ordered.Set(keys[i], []byte{byte(i)}, 0)
	}
	assert.Equal(t, keys, collectRange(ordered, "", ""))
	assert.Equal(t, keys[5:8], collectRange(ordered, "a\x00", "a\x80"))
}

func testRangeConcurrentWrites(t *testing.T, database db.KVDB) {
	defer database.Close()
	ordered := requireOrdered(t, database)

	for i := 0; i < 1000; i++ {
		ordered.Set(fmt.Sprintf("stable-%04d", i), []byte("x"), 0)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			key := fmt.Sprintf("churn-%04d", i%500)
			if i%3 == 0 {
				ordered.Delete(key, 0)
			} else {
				ordered.Set(key, []byte("y"), 0)
			}
		}
	}()

	// keys that are never written during the scan are always seen, in order
	for round := 0; round < 20; round++ {
		var prev string
		stable := 0
		ordered.Range("", "", func(key string, _ []byte) bool {
			if prev != "" {
				assert.Less(t, prev, key, "keys must be strictly ascending")
			}
			prev = key
			if strings.HasPrefix(key, "stable-") {
				stable++
			}
			return true
		})
		assert.Equal(t, 1000, stable)
	}

	close(stop)
	wg.Wait()
}

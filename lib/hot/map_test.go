package hot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkTrie verifies the structural invariants of m: discriminators strictly
// increase on every root to leaf path, every reachable leaf is live and the
// number of reachable leaves equals Len.
func checkTrie[V any](t *testing.T, m *Map[V]) {
	t.Helper()
	if m.root.IsNull() {
		require.Equal(t, 0, m.Len())
		return
	}

	type frame struct {
		ref    Ref
		parent int // -1 at the root
	}
	leaves := 0
	stack := []frame{{m.root, -1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		require.False(t, f.ref.IsNull(), "null child below a node")
		if f.ref.IsLeaf() {
			_, slot := m.a.readKey(f.ref.Offset())
			require.NotNil(t, m.a.peekValue(slot), "reachable leaf has a tombstoned slot")
			leaves++
			continue
		}
		disc, left, right := m.a.readNode(f.ref.Offset())
		require.Greater(t, int(disc), f.parent, "discriminators must increase along a path")
		stack = append(stack, frame{left, int(disc)}, frame{right, int(disc)})
	}
	require.Equal(t, m.Len(), leaves)
}

func getInt(t *testing.T, m *Map[int], key string) (int, bool) {
	t.Helper()
	v, ok := m.Get([]byte(key))
	if !ok {
		return 0, false
	}
	require.NotNil(t, v)
	return *v, true
}

func TestEmptyMap(t *testing.T) {
	m := New[int]()

	assert.Equal(t, 0, m.Len())
	assert.True(t, m.IsEmpty())
	assert.False(t, m.Contains([]byte("anything")))
	assert.False(t, m.Contains(nil))

	_, removed := m.Remove([]byte("anything"))
	assert.False(t, removed)

	for range m.All() {
		t.Fatal("empty map yielded an entry")
	}
	checkTrie(t, m)
}

func TestInsertGet(t *testing.T) {
	m := New[int]()

	_, replaced := m.Insert([]byte("hello"), 1)
	assert.False(t, replaced)
	_, replaced = m.Insert([]byte("world"), 2)
	assert.False(t, replaced)

	v, ok := getInt(t, m, "hello")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = getInt(t, m, "world")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = getInt(t, m, "xyz")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
	checkTrie(t, m)
}

func TestInsertReplaces(t *testing.T) {
	m := New[int]()

	m.Insert([]byte("key"), 1)
	old, replaced := m.Insert([]byte("key"), 2)
	assert.True(t, replaced)
	assert.Equal(t, 1, old)

	v, ok := getInt(t, m, "key")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, m.Len())

	// updates do not write new records
	s := m.Stats()
	assert.Equal(t, 1, s.LeavesWritten)
	assert.Equal(t, 0, s.NodesAllocated)
}

func TestRemoveMiddle(t *testing.T) {
	m := New[int]()
	m.Insert([]byte("a"), 1)
	m.Insert([]byte("b"), 2)
	m.Insert([]byte("c"), 3)

	old, removed := m.Remove([]byte("b"))
	assert.True(t, removed)
	assert.Equal(t, 2, old)

	var keys []string
	var values []int
	for k, v := range m.All() {
		keys = append(keys, string(k))
		values = append(values, *v)
	}
	assert.Equal(t, []string{"a", "c"}, keys)
	assert.Equal(t, []int{1, 3}, values)
	assert.Equal(t, 2, m.Len())
	checkTrie(t, m)
}

func TestSharedPrefixes(t *testing.T) {
	m := New[int]()
	m.Insert([]byte("test"), 1)
	m.Insert([]byte("testing"), 2)
	m.Insert([]byte("tested"), 3)

	for key, want := range map[string]int{"test": 1, "testing": 2, "tested": 3} {
		v, ok := getInt(t, m, key)
		assert.True(t, ok, key)
		assert.Equal(t, want, v, key)
	}
	assert.Equal(t, 3, m.Len())

	_, ok := getInt(t, m, "tes")
	assert.False(t, ok)
	_, ok = getInt(t, m, "testi")
	assert.False(t, ok)
	checkTrie(t, m)
}

func TestThousandKeys(t *testing.T) {
	m := New[int]()
	for i := 0; i < 1000; i++ {
		m.Insert([]byte(fmt.Sprintf("key%05d", i)), i)
	}

	for i := 0; i < 1000; i++ {
		v, ok := getInt(t, m, fmt.Sprintf("key%05d", i))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	assert.Equal(t, 1000, m.Len())

	i := 0
	for k, v := range m.All() {
		require.Equal(t, fmt.Sprintf("key%05d", i), string(k))
		require.Equal(t, i, *v)
		i++
	}
	assert.Equal(t, 1000, i)
	checkTrie(t, m)
}

func TestRemoveOnly(t *testing.T) {
	m := New[int]()
	m.Insert([]byte("only"), 42)
	require.True(t, m.root.IsLeaf())

	old, removed := m.Remove([]byte("only"))
	assert.True(t, removed)
	assert.Equal(t, 42, old)
	assert.True(t, m.IsEmpty())
	assert.True(t, m.root.IsNull())

	_, ok := getInt(t, m, "only")
	assert.False(t, ok)

	// the container is reusable
	m.Insert([]byte("again"), 7)
	v, ok := getInt(t, m, "again")
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestRemoveAbsent(t *testing.T) {
	m := New[int]()
	m.Insert([]byte("abc"), 1)
	m.Insert([]byte("abd"), 2)

	for _, key := range []string{"ab", "abe", "abcd", "", "zzz"} {
		_, removed := m.Remove([]byte(key))
		assert.False(t, removed, key)
	}
	assert.Equal(t, 2, m.Len())

	_, removed := m.Remove([]byte("abc"))
	assert.True(t, removed)
	_, removed = m.Remove([]byte("abc"))
	assert.False(t, removed)
	assert.Equal(t, 1, m.Len())
	checkTrie(t, m)
}

func TestPrefixPair(t *testing.T) {
	for _, order := range [][]string{{"abc", "abcd"}, {"abcd", "abc"}} {
		m := New[string]()
		for _, key := range order {
			m.Insert([]byte(key), key)
		}
		for _, key := range order {
			v, ok := m.Get([]byte(key))
			require.True(t, ok, key)
			assert.Equal(t, key, *v)
		}
		assert.Equal(t, []string{"abc", "abcd"}, keyStrings(m))
		checkTrie(t, m)
	}
}

func TestZeroSuffixKeys(t *testing.T) {
	keys := []string{"a\x00\x00", "a", "a\x01", "a\x00", "", "\x00", "b"}

	m := New[int]()
	for i, key := range keys {
		_, replaced := m.Insert([]byte(key), i)
		require.False(t, replaced, "%q", key)
	}
	require.Equal(t, len(keys), m.Len())

	for i, key := range keys {
		v, ok := getInt(t, m, key)
		require.True(t, ok, "%q", key)
		assert.Equal(t, i, v, "%q", key)
	}

	assert.Equal(t, []string{"", "\x00", "a", "a\x00", "a\x00\x00", "a\x01", "b"}, keyStrings(m))
	assert.Greater(t, m.Stats().LengthNodes, 0)
	checkTrie(t, m)

	_, removed := m.Remove([]byte("a\x00"))
	require.True(t, removed)
	assert.True(t, m.Contains([]byte("a")))
	assert.True(t, m.Contains([]byte("a\x00\x00")))
	assert.False(t, m.Contains([]byte("a\x00")))
	checkTrie(t, m)
}

func TestLastBitDifference(t *testing.T) {
	m := New[int]()
	m.Insert([]byte("ab"), 1) // 0x62
	m.Insert([]byte("ac"), 2) // 0x63

	s := m.Stats()
	assert.Equal(t, 1, s.NodesAllocated)
	assert.Equal(t, 1, s.NodesReachable)
	assert.Equal(t, 1, s.MaxDepth)

	disc, _, _ := m.a.readNode(m.root.Offset())
	assert.Equal(t, uint16(15), disc)
}

func TestEmptyKey(t *testing.T) {
	m := New[int]()
	m.Insert(nil, 1)
	m.Insert([]byte("x"), 2)

	v, ok := getInt(t, m, "")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"", "x"}, keyStrings(m))
}

func TestInsertCopiesKey(t *testing.T) {
	m := New[int]()
	key := []byte("mutable")
	m.Insert(key, 1)
	key[0] = 'M'

	assert.True(t, m.Contains([]byte("mutable")))
	assert.False(t, m.Contains([]byte("Mutable")))
}

func TestKeyTooLong(t *testing.T) {
	m := New[int]()

	ok := make([]byte, MaxKeyLen)
	assert.NotPanics(t, func() { m.Insert(ok, 1) })

	tooLong := make([]byte, MaxKeyLen+1)
	err := recoverErr(func() { m.Insert(tooLong, 2) })
	require.ErrorIs(t, err, ErrKeyTooLong)

	// lookups of such keys simply miss
	assert.False(t, m.Contains(tooLong))
	assert.Equal(t, 1, m.Len())
}

func TestWideSlots(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}

	const n = slotEscape + 1000
	m := New[int]()
	for i := 0; i < n; i++ {
		m.Insert([]byte(fmt.Sprintf("k%07d", i)), i)
	}

	for _, i := range []int{0, slotEscape - 1, slotEscape, slotEscape + 1, n - 1} {
		v, ok := getInt(t, m, fmt.Sprintf("k%07d", i))
		require.True(t, ok, i)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, n, m.Len())
}

func TestOffsetsAreStable(t *testing.T) {
	m := New[int]()
	offsets := map[string]Ref{}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("stable-%d", i)
		m.Insert([]byte(key), i)
		offsets[key] = m.descend([]byte(key))
	}
	for i := 0; i < 200; i += 2 {
		m.Remove([]byte(fmt.Sprintf("stable-%d", i)))
	}

	for i := 1; i < 200; i += 2 {
		key := fmt.Sprintf("stable-%d", i)
		assert.Equal(t, offsets[key], m.descend([]byte(key)), key)
	}
}

func TestCompact(t *testing.T) {
	m := New[string]()
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("compact/%04d", i)
		m.Insert([]byte(key), strings.Repeat("v", i%7))
	}
	for i := 0; i < 1000; i += 2 {
		m.Remove([]byte(fmt.Sprintf("compact/%04d", i)))
	}
	require.Greater(t, m.OrphanedBytes(), uint64(0))
	before := keyStrings(m)

	reclaimed := m.Compact()
	assert.Greater(t, reclaimed, 0)
	assert.Equal(t, uint64(0), m.OrphanedBytes())
	assert.Equal(t, before, keyStrings(m))
	assert.Equal(t, 500, m.Len())

	s := m.Stats()
	assert.Equal(t, 500, s.LeavesWritten)
	assert.Equal(t, 499, s.NodesAllocated)
	assert.Equal(t, s.NodesAllocated, s.NodesReachable)

	for i := 1; i < 1000; i += 2 {
		v, ok := m.Get([]byte(fmt.Sprintf("compact/%04d", i)))
		require.True(t, ok)
		assert.Equal(t, strings.Repeat("v", i%7), *v)
	}
	checkTrie(t, m)

	// still fully mutable
	m.Insert([]byte("compact/0000"), "back")
	assert.True(t, m.Contains([]byte("compact/0000")))
	checkTrie(t, m)
}

func TestCompactEmpty(t *testing.T) {
	m := New[int]()
	m.Insert([]byte("x"), 1)
	m.Remove([]byte("x"))

	m.Compact()
	assert.True(t, m.IsEmpty())
	assert.Equal(t, 0, m.Stats().LeavesWritten)
}

func TestMemoryUsage(t *testing.T) {
	m := New[int64]()
	for i := 0; i < 100; i++ {
		m.Insert([]byte(fmt.Sprintf("mem%03d", i)), int64(i))
	}

	u := m.MemoryUsage()
	assert.GreaterOrEqual(t, u.KeyData, uint64(100*(keyLenSize+6+slotSize)))
	assert.GreaterOrEqual(t, u.NodeData, uint64(99*nodeRecordSize))
	assert.GreaterOrEqual(t, u.Values, uint64(100*8))
	assert.Equal(t, u.KeyData+u.NodeData+u.Values+u.Bitmap, u.Total)

	m.ShrinkToFit()
	shrunk := m.MemoryUsage()
	assert.Equal(t, uint64(100*(keyLenSize+6+slotSize)), shrunk.KeyData)
	assert.Equal(t, uint64(99*nodeRecordSize), shrunk.NodeData)
	assert.Equal(t, uint64(100*8), shrunk.Values)
	assert.LessOrEqual(t, shrunk.Total, u.Total)
	assert.Equal(t, 100, m.Len())
}

func keyStrings[V any](m *Map[V]) []string {
	var out []string
	for k := range m.All() {
		out = append(out, string(k))
	}
	return out
}

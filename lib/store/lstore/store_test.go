package lstore

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/hotkv/lib/db"
	"github.com/ValentinKolb/hotkv/lib/db/engines/hot"
	"github.com/ValentinKolb/hotkv/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.IStore {
	var database *hot.DB
	s := NewLocalStore(func() db.KVDB {
		database = hot.NewHotDB(&hot.DBOptions{NumShards: 4})
		return database
	})
	t.Cleanup(func() { database.Close() })
	return s
}

func TestWriteIndexAdvances(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetE("session", []byte("data"), 2, 0))
	v, ok, err := s.Get("session")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("data"), v)

	// every write moves the index by one, the value expires two writes later
	require.NoError(t, s.Set("a", nil))
	require.NoError(t, s.Set("b", nil))

	_, ok, err = s.Get("session")
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.Has("session")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSetEIfUnset(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetEIfUnset("lock", []byte("owner-1"), 0, 0))
	require.NoError(t, s.SetEIfUnset("lock", []byte("owner-2"), 0, 0))

	v, _, err := s.Get("lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("owner-1"), v)

	require.NoError(t, s.Delete("lock"))
	require.NoError(t, s.SetEIfUnset("lock", []byte("owner-2"), 0, 0))
	v, _, err = s.Get("lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("owner-2"), v)
}

func TestKeyTooLong(t *testing.T) {
	s := newTestStore(t)
	key := strings.Repeat("x", hot.MaxKeyLen+1)

	err := s.Set(key, []byte("v"))
	require.Error(t, err)
	assert.True(t, store.HasCode(err, store.RetCInvalidOperation))
	assert.Contains(t, err.Error(), "InvalidOperation")

	assert.True(t, store.HasCode(s.SetE(key, nil, 1, 1), store.RetCInvalidOperation))
	assert.True(t, store.HasCode(s.SetEIfUnset(key, nil, 1, 1), store.RetCInvalidOperation))

	// reads of long keys simply miss
	_, ok, err := s.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScan(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("user:%02d", i), []byte(fmt.Sprint(i))))
	}
	require.NoError(t, s.Set("order:1", nil))

	entries, err := s.Scan("user:", "user;", 5)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("user:%02d", i), e.Key)
		assert.Equal(t, []byte(fmt.Sprint(i)), e.Value)
	}

	all, err := s.Scan("", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 51)
	assert.Equal(t, "order:1", all[0].Key)

	_, err = s.Scan("b", "a", 0)
	assert.True(t, store.HasCode(err, store.RetCInvalidOperation))
}

// unorderedDB hides the Range method of the wrapped database
type unorderedDB struct{ db.KVDB }

func (u unorderedDB) SupportsFeature(f db.Feature) bool {
	return f&db.FeatureRange == 0 && u.KVDB.SupportsFeature(f)
}

func TestScanUnsupported(t *testing.T) {
	database := hot.NewHotDB(&hot.DBOptions{NumShards: 1})
	defer database.Close()

	s := NewLocalStore(func() db.KVDB { return unorderedDB{database} })

	_, err := s.Scan("", "", 0)
	assert.True(t, store.HasCode(err, store.RetCUnsupportedOperation))

	// the wrapper hides the key limit as well, the store passes the write on
	assert.NoError(t, s.Set(strings.Repeat("x", hot.MaxKeyLen+1), nil))
}

func TestGetDBInfo(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("key", []byte("value")))

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, db.ImplHOT, info.DbType)
	assert.Positive(t, info.SizeBytes)
}

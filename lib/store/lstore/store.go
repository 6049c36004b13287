package lstore

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/hotkv/lib/db"
	"github.com/ValentinKolb/hotkv/lib/store"
)

type storeImpl struct {
	db        db.KVDB
	index     atomic.Uint64
	maxKeyLen int // 0 = unlimited
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// The database is created with factory and used directly.
func NewLocalStore(factory store.DBFactory) store.IStore {
	s := &storeImpl{db: factory()}
	if limited, ok := s.db.(db.KeyLimited); ok {
		s.maxKeyLen = limited.MaxKeyLength()
	}
	return s
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// checkWrite returns an error if the database can't execute a write of key
func (s *storeImpl) checkWrite(op string, feature db.Feature, key string) error {
	if !s.db.SupportsFeature(feature) {
		return store.NewError(store.RetCUnsupportedOperation, op+" operation is not supported")
	}
	if s.maxKeyLen > 0 && len(key) > s.maxKeyLen {
		return store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("key of %d bytes exceeds the maximum key length of %d bytes", len(key), s.maxKeyLen))
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.checkWrite("Set", db.FeatureSet, key); err != nil {
		return err
	}
	s.db.Set(key, value, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	if err := s.checkWrite("SetE", db.FeatureSetE, key); err != nil {
		return err
	}
	s.db.SetE(key, value, s.incAndGetIndex(), expireIn, deleteIn)
	return nil
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) error {
	if err := s.checkWrite("SetEIfUnset", db.FeatureSetEIfUnset, key); err != nil {
		return err
	}
	s.db.SetEIfUnset(key, value, s.incAndGetIndex(), expireIn, deleteIn)
	return nil
}

func (s *storeImpl) Expire(key string) error {
	if !s.db.SupportsFeature(db.FeatureExpire) {
		return store.NewError(store.RetCUnsupportedOperation, "Expire operation is not supported")
	}
	s.db.Expire(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) Delete(key string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return store.NewError(store.RetCUnsupportedOperation, "Delete operation is not supported")
	}
	s.db.Delete(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	return s.db.Has(key), nil
}

func (s *storeImpl) Scan(start, end string, limit int) ([]store.KeyValue, error) {
	ordered, ok := s.db.(db.OrderedKVDB)
	if !ok || !s.db.SupportsFeature(db.FeatureRange) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "Scan operation is not supported")
	}
	if end != "" && end < start {
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("scan end %q is before start %q", end, start))
	}

	var entries []store.KeyValue
	ordered.Range(start, end, func(key string, value []byte) bool {
		entries = append(entries, store.KeyValue{Key: key, Value: value})
		return limit <= 0 || len(entries) < limit
	})
	return entries, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

package hot

import (
	"bytes"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Map
// --------------------------------------------------------------------------

// Map is an ordered map from byte-string keys to values of type V, stored as
// a binary height-optimized trie in flat byte arenas.
//
// Keys and values are copied in. Pointers and key slices handed out by Get,
// All, Range and Iterator borrow the map's storage and are only valid until
// the next Insert, Remove, Compact or ShrinkToFit.
//
// Thread-safety: a Map is not safe for concurrent use. Concurrent readers
// are fine as long as no goroutine mutates the map.
type Map[V any] struct {
	a     *arena[V]
	root  Ref
	count int
	mods  uint64 // bumped on every mutation, checked by iterators

	// bytes of records that are no longer reachable from root
	orphanKeyBytes  uint64
	orphanNodeBytes uint64
}

// New returns an empty map.
func New[V any]() *Map[V] {
	return &Map[V]{
		a:    newArena[V](),
		root: nullRef,
	}
}

// Len returns the number of live keys.
func (m *Map[V]) Len() int { return m.count }

// IsEmpty reports whether the map holds no live keys.
func (m *Map[V]) IsEmpty() bool { return m.count == 0 }

// descend follows key from the root and returns the reference it ends at:
// a leaf (not necessarily holding key) or null.
func (m *Map[V]) descend(key []byte) Ref {
	cur := m.root
	for cur.IsNode() {
		off := cur.Offset()
		cur = m.a.nodeChild(off, direction(key, m.a.nodeDisc(off)))
	}
	return cur
}

// Get returns a pointer to the value stored for key.
func (m *Map[V]) Get(key []byte) (*V, bool) {
	leaf := m.descend(key)
	if !leaf.IsLeaf() {
		return nil, false
	}

	// the bit path is necessary but not sufficient
	stored, slot := m.a.readKey(leaf.Offset())
	if !bytes.Equal(stored, key) {
		return nil, false
	}

	v := m.a.peekValue(slot)
	return v, v != nil
}

// Contains reports whether key is present.
func (m *Map[V]) Contains(key []byte) bool {
	_, ok := m.Get(key)
	return ok
}

// newLeaf appends value and key records and returns a reference to the leaf.
func (m *Map[V]) newLeaf(key []byte, value V) Ref {
	slot := m.a.appendValue(value)
	return leafRef(m.a.appendKey(key, slot))
}

// Insert stores value for key. If key was present its previous value is
// returned with replaced set to true.
//
// Insert panics with ErrKeyTooLong for keys longer than MaxKeyLen and with
// ErrArenaOverflow if an arena runs out of addressable space.
func (m *Map[V]) Insert(key []byte, value V) (old V, replaced bool) {
	if len(key) > MaxKeyLen {
		panic(errors.Wrapf(ErrKeyTooLong, "%d bytes (max %d)", len(key), MaxKeyLen))
	}
	m.mods++

	// CASE empty

	if m.root.IsNull() {
		m.root = m.newLeaf(key, value)
		m.count++
		return old, false
	}

	// CASE same key -> update in place

	leaf := m.descend(key)
	stored, slot := m.a.readKey(leaf.Offset())
	disc, differ := splitDisc(stored, key)
	if !differ {
		old, replaced = m.a.putValue(slot, value)
		if !replaced {
			m.count++
		}
		return old, replaced
	}

	// CASE split

	/*
		Note: the split is not necessarily placed above the leaf we found.
		Every key below a node agrees on all positions smaller than the node's
		discriminator, so the new node belongs at the first reference on the
		path whose target discriminates at a position greater than disc. This
		keeps discriminators strictly increasing from root to leaf.
	*/
	newLeaf := m.newLeaf(key, value)
	node := m.a.allocNode()
	m.a.setNodeDisc(node, disc)

	var (
		parent     uint64
		parentSide uint8
		atRoot     = true
		cur        = m.root
	)
	for cur.IsNode() {
		off := cur.Offset()
		d := m.a.nodeDisc(off)
		if d > disc {
			break
		}
		parent, parentSide, atRoot = off, direction(key, d), false
		cur = m.a.nodeChild(off, parentSide)
	}

	side := direction(key, disc)
	m.a.setNodeChild(node, side, newLeaf)
	m.a.setNodeChild(node, 1-side, cur)

	if atRoot {
		m.root = nodeRef(node)
	} else {
		m.a.setNodeChild(parent, parentSide, nodeRef(node))
	}
	m.count++
	return old, false
}

// Remove deletes key and returns the value it held.
//
// The removed leaf's parent node is replaced by the leaf's sibling. Both
// records stay in their arenas until Compact.
func (m *Map[V]) Remove(key []byte) (old V, removed bool) {
	var (
		grand, parent         uint64
		grandSide, parentSide uint8
		depth                 int
		cur                   = m.root
	)
	for cur.IsNode() {
		grand, grandSide = parent, parentSide
		parent = cur.Offset()
		parentSide = direction(key, m.a.nodeDisc(parent))
		cur = m.a.nodeChild(parent, parentSide)
		depth++
	}
	if !cur.IsLeaf() {
		return old, false
	}

	stored, slot := m.a.readKey(cur.Offset())
	if !bytes.Equal(stored, key) {
		return old, false
	}
	if old, removed = m.a.takeValue(slot); !removed {
		return old, false
	}

	m.mods++
	m.count--
	m.orphanKeyBytes += m.a.leafSize(cur.Offset())

	switch depth {
	case 0:
		m.root = nullRef
	case 1:
		m.root = m.a.nodeChild(parent, 1-parentSide)
		m.orphanNodeBytes += nodeRecordSize
	default:
		m.a.setNodeChild(grand, grandSide, m.a.nodeChild(parent, 1-parentSide))
		m.orphanNodeBytes += nodeRecordSize
	}
	return old, true
}

package hot

import (
	"bytes"
	"iter"
)

// --------------------------------------------------------------------------
// Bounds
// --------------------------------------------------------------------------

type boundKind uint8

const (
	boundNone boundKind = iota
	boundIncluded
	boundExcluded
)

// Bound is one end of a key range.
type Bound struct {
	kind boundKind
	key  []byte
}

// Unbounded returns a bound that admits every key.
func Unbounded() Bound { return Bound{} }

// Included returns a bound that admits key itself.
func Included(key []byte) Bound { return Bound{kind: boundIncluded, key: key} }

// Excluded returns a bound that stops just short of key.
func Excluded(key []byte) Bound { return Bound{kind: boundExcluded, key: key} }

// IsUnbounded reports whether b admits every key.
func (b Bound) IsUnbounded() bool { return b.kind == boundNone }

// admitsAbove reports whether key satisfies b used as a lower bound.
func (b Bound) admitsAbove(key []byte) bool {
	switch b.kind {
	case boundIncluded:
		return bytes.Compare(key, b.key) >= 0
	case boundExcluded:
		return bytes.Compare(key, b.key) > 0
	}
	return true
}

// admitsBelow reports whether key satisfies b used as an upper bound.
func (b Bound) admitsBelow(key []byte) bool {
	switch b.kind {
	case boundIncluded:
		return bytes.Compare(key, b.key) <= 0
	case boundExcluded:
		return bytes.Compare(key, b.key) < 0
	}
	return true
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// Iterator walks the live entries of a Map in ascending byte-lexicographic
// key order.
//
// The trie is traversed depth first, left before right. With most significant
// bit first discrimination and length discriminators for zero-padded ties,
// that order is already the key order, so nothing is sorted.
//
// Advancing an Iterator after its map was mutated panics with
// ErrIteratorInvalidated.
type Iterator[V any] struct {
	m      *Map[V]
	mods   uint64
	lo, hi Bound
	stack  []Ref
	key    []byte
	value  *V
	done   bool
}

// Iter returns an iterator over the entries whose keys lie within lo and hi.
// The iterator is positioned before the first entry.
func (m *Map[V]) Iter(lo, hi Bound) *Iterator[V] {
	it := &Iterator[V]{m: m, mods: m.mods, lo: lo, hi: hi}
	switch {
	case m.root.IsNull():
	case lo.IsUnbounded():
		it.stack = append(it.stack, m.root)
	default:
		it.seek(lo.key)
	}
	return it
}

// seek fills the stack so that traversal starts at the first key >= lo.
//
// The leaf reached by following lo's bits shares the longest discriminating
// prefix with lo. Let d be the position where the two first differ. The
// subtree entered by the first node on that path with a discriminator above
// d holds only keys that differ from lo at d, so it is either entirely
// before lo or entirely after it. Right siblings of left turns above that
// point are after lo as well.
func (it *Iterator[V]) seek(lo []byte) {
	// no stored key is longer than MaxKeyLen, so the keys >= lo are a
	// subset of the keys >= lo[:MaxKeyLen]; the bound check filters the rest
	if len(lo) > MaxKeyLen {
		lo = lo[:MaxKeyLen]
	}

	a := it.m.a
	stored, _ := a.readKey(it.m.descend(lo).Offset())
	d, differ := splitDisc(stored, lo)

	cur := it.m.root
	for cur.IsNode() {
		disc, left, right := a.readNode(cur.Offset())
		if differ && disc > d {
			break
		}
		if direction(lo, disc) == 0 {
			it.stack = append(it.stack, right)
			cur = left
		} else {
			cur = right
		}
	}

	if !differ || direction(lo, d) == 0 {
		it.stack = append(it.stack, cur)
	}
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator[V]) Next() bool {
	if it.done {
		return false
	}
	if it.mods != it.m.mods {
		panic(ErrIteratorInvalidated)
	}

	a := it.m.a
	for len(it.stack) > 0 {
		r := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		if r.IsNode() {
			_, left, right := a.readNode(r.Offset())
			it.stack = append(it.stack, right, left)
			continue
		}
		if !r.IsLeaf() {
			continue
		}

		key, slot := a.readKey(r.Offset())
		if !it.lo.admitsAbove(key) {
			continue
		}
		if !it.hi.admitsBelow(key) {
			break
		}
		v := a.peekValue(slot)
		if v == nil {
			continue
		}
		it.key, it.value = key, v
		return true
	}

	it.done = true
	it.stack = nil
	it.key, it.value = nil, nil
	return false
}

// Key returns the current key. The slice borrows the map's storage.
func (it *Iterator[V]) Key() []byte { return it.key }

// Value returns a pointer to the current value.
func (it *Iterator[V]) Value() *V { return it.value }

// All returns every entry in ascending key order.
func (m *Map[V]) All() iter.Seq2[[]byte, *V] {
	return m.Range(Unbounded(), Unbounded())
}

// Range returns the entries whose keys lie within lo and hi in ascending
// key order.
func (m *Map[V]) Range(lo, hi Bound) iter.Seq2[[]byte, *V] {
	return func(yield func([]byte, *V) bool) {
		it := m.Iter(lo, hi)
		for it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
	}
}

// Keys returns copies of all keys in ascending order.
func (m *Map[V]) Keys() [][]byte {
	out := make([][]byte, 0, m.count)
	for k := range m.All() {
		out = append(out, bytes.Clone(k))
	}
	return out
}

package hot

import (
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
)

// --------------------------------------------------------------------------
// Memory accounting
// --------------------------------------------------------------------------

// MemoryUsage reports the bytes reserved by each arena of a Map.
type MemoryUsage struct {
	KeyData  uint64 `json:"key_data"`
	NodeData uint64 `json:"node_data"`
	Values   uint64 `json:"values"`
	Bitmap   uint64 `json:"bitmap"`
	Total    uint64 `json:"total"`
}

// MemoryUsage returns the reserved capacity of every arena. Values are
// counted by their in-line size; memory referenced by V is not followed.
func (m *Map[V]) MemoryUsage() MemoryUsage {
	var zero V
	u := MemoryUsage{
		KeyData:  uint64(cap(m.a.keys)),
		NodeData: uint64(cap(m.a.nodes)),
		Values:   uint64(cap(m.a.values)) * uint64(unsafe.Sizeof(zero)),
		Bitmap:   m.a.live.GetSizeInBytes(),
	}
	u.Total = u.KeyData + u.NodeData + u.Values + u.Bitmap
	return u
}

// ShrinkToFit releases spare arena capacity. Orphaned records and tombstoned
// slots are kept; use Compact to drop them.
func (m *Map[V]) ShrinkToFit() {
	m.mods++
	m.a.shrink()
}

// UsedBytes returns the bytes written to the key-data and node-data arenas,
// including orphaned records.
func (m *Map[V]) UsedBytes() uint64 {
	return uint64(len(m.a.keys) + len(m.a.nodes))
}

// OrphanedBytes returns the arena bytes that are no longer reachable from
// the root.
func (m *Map[V]) OrphanedBytes() uint64 {
	return m.orphanKeyBytes + m.orphanNodeBytes
}

// --------------------------------------------------------------------------
// Compaction
// --------------------------------------------------------------------------

// Compact rebuilds the arenas from the reachable trie, dropping orphaned
// records and tombstoned value slots. The trie shape is preserved. It
// returns the number of bytes reclaimed.
func (m *Map[V]) Compact() int {
	before := m.MemoryUsage().Total

	fresh := &arena[V]{
		keys:   make([]byte, 0, uint64(len(m.a.keys))-m.orphanKeyBytes),
		nodes:  make([]byte, 0, uint64(len(m.a.nodes))-m.orphanNodeBytes),
		values: make([]V, 0, m.count),
		live:   roaring.New(),
	}

	m.root = m.copyTrie(fresh, m.root)
	fresh.shrink()

	m.a = fresh
	m.orphanKeyBytes, m.orphanNodeBytes = 0, 0
	m.mods++

	after := m.MemoryUsage().Total
	if after >= before {
		return 0
	}
	return int(before - after)
}

// copyTrie copies the subtree at r into dst and returns its new reference.
// Children are written before their parent.
func (m *Map[V]) copyTrie(dst *arena[V], r Ref) Ref {
	switch {
	case r.IsNull():
		return r
	case r.IsLeaf():
		key, slot := m.a.readKey(r.Offset())
		v := m.a.peekValue(slot)
		if v == nil {
			return nullRef
		}
		return leafRef(dst.appendKey(key, dst.appendValue(*v)))
	}

	disc, left, right := m.a.readNode(r.Offset())
	l := m.copyTrie(dst, left)
	rr := m.copyTrie(dst, right)
	if l.IsNull() {
		return rr
	}
	if rr.IsNull() {
		return l
	}

	off := dst.allocNode()
	dst.setNodeDisc(off, disc)
	dst.setNodeChild(off, 0, l)
	dst.setNodeChild(off, 1, rr)
	return nodeRef(off)
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats describes the shape of a Map and the garbage in its arenas.
type Stats struct {
	LeavesWritten  int     `json:"leaves_written"`
	LiveLeaves     int     `json:"live_leaves"`
	NodesAllocated int     `json:"nodes_allocated"`
	NodesReachable int     `json:"nodes_reachable"`
	MaxDepth       int     `json:"max_depth"`
	AvgDepth       float64 `json:"avg_depth"`
	LengthNodes    int     `json:"length_nodes"`
	OrphanedBytes  uint64  `json:"orphaned_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
}

// Stats walks the trie and returns its statistics.
func (m *Map[V]) Stats() Stats {
	s := Stats{
		LeavesWritten:  len(m.a.values),
		NodesAllocated: len(m.a.nodes) / nodeRecordSize,
		OrphanedBytes:  m.OrphanedBytes(),
		UsedBytes:      m.UsedBytes(),
	}
	if m.root.IsNull() {
		return s
	}

	type frame struct {
		ref   Ref
		depth int
	}
	var depthSum int
	stack := []frame{{m.root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.ref.IsLeaf() {
			s.LiveLeaves++
			depthSum += f.depth
			s.MaxDepth = max(s.MaxDepth, f.depth)
			continue
		}
		disc, left, right := m.a.readNode(f.ref.Offset())
		s.NodesReachable++
		if disc >= lengthDisc {
			s.LengthNodes++
		}
		stack = append(stack, frame{left, f.depth + 1}, frame{right, f.depth + 1})
	}
	s.AvgDepth = float64(depthSum) / float64(s.LiveLeaves)
	return s
}

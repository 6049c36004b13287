package hot

import (
	"encoding/binary"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Record layout
// --------------------------------------------------------------------------

const (
	// leaf record: [u16 len][key bytes][u16 slot] or, for slots >= slotEscape,
	// [u16 len][key bytes][0xFFFF][u32 slot]
	keyLenSize     = 2
	slotSize       = 2
	slotEscape     = math.MaxUint16
	wideSlotSize   = slotSize + 4
	maxValueSlots  = math.MaxUint32
	nodeRecordSize = 2 + 2*refBytes // [u16 disc][6B left][6B right]
	nodeLeftOff    = 2
	nodeRightOff   = 2 + refBytes
)

// --------------------------------------------------------------------------
// Arena
// --------------------------------------------------------------------------

// arena owns the three append-only resources of a Map: the key-data buffer,
// the node-data buffer and the values sequence. Offsets handed out by arena
// never move and stay valid until the arena is dropped.
type arena[V any] struct {
	keys   []byte          // leaf records
	nodes  []byte          // fixed size node records
	values []V             // one slot per leaf ever written
	live   *roaring.Bitmap // slots that are not tombstoned
}

func newArena[V any]() *arena[V] {
	return &arena[V]{live: roaring.New()}
}

// mustFit panics with ErrArenaOverflow if an arena would end past the
// addressable range.
func mustFit(end uint64, what string) {
	if end > maxArenaOffset {
		panic(errors.Wrapf(ErrArenaOverflow, "%s arena would end at offset %d", what, end))
	}
}

func slotWidth(slot uint32) int {
	if slot >= slotEscape {
		return wideSlotSize
	}
	return slotSize
}

// appendKey writes a leaf record and returns its offset.
func (a *arena[V]) appendKey(key []byte, slot uint32) uint64 {
	off := uint64(len(a.keys))
	size := keyLenSize + len(key) + slotWidth(slot)
	mustFit(off+uint64(size), "key-data")

	a.keys = binary.LittleEndian.AppendUint16(a.keys, uint16(len(key)))
	a.keys = append(a.keys, key...)
	if slot >= slotEscape {
		a.keys = binary.LittleEndian.AppendUint16(a.keys, slotEscape)
		a.keys = binary.LittleEndian.AppendUint32(a.keys, slot)
	} else {
		a.keys = binary.LittleEndian.AppendUint16(a.keys, uint16(slot))
	}
	return off
}

// leafKey returns the key stored at off. The slice aliases the arena.
func (a *arena[V]) leafKey(off uint64) []byte {
	n := uint64(binary.LittleEndian.Uint16(a.keys[off:]))
	start := off + keyLenSize
	return a.keys[start : start+n : start+n]
}

// readKey decodes the leaf record at off.
func (a *arena[V]) readKey(off uint64) ([]byte, uint32) {
	key := a.leafKey(off)
	pos := off + keyLenSize + uint64(len(key))
	slot := uint32(binary.LittleEndian.Uint16(a.keys[pos:]))
	if slot == slotEscape {
		slot = binary.LittleEndian.Uint32(a.keys[pos+slotSize:])
	}
	return key, slot
}

// leafSize returns the byte size of the leaf record at off.
func (a *arena[V]) leafSize(off uint64) uint64 {
	key, slot := a.readKey(off)
	return uint64(keyLenSize + len(key) + slotWidth(slot))
}

// allocNode reserves a zeroed node record and returns its offset.
func (a *arena[V]) allocNode() uint64 {
	off := uint64(len(a.nodes))
	mustFit(off+nodeRecordSize, "node-data")
	a.nodes = append(a.nodes, make([]byte, nodeRecordSize)...)
	return off
}

// readNode decodes the node record at off.
func (a *arena[V]) readNode(off uint64) (disc uint16, left, right Ref) {
	rec := a.nodes[off : off+nodeRecordSize]
	return binary.LittleEndian.Uint16(rec), getRef(rec[nodeLeftOff:]), getRef(rec[nodeRightOff:])
}

func (a *arena[V]) nodeDisc(off uint64) uint16 {
	return binary.LittleEndian.Uint16(a.nodes[off:])
}

// nodeChild returns the left (side 0) or right (side 1) child of a node.
func (a *arena[V]) nodeChild(off uint64, side uint8) Ref {
	return getRef(a.nodes[off+nodeLeftOff+uint64(side)*refBytes:])
}

func (a *arena[V]) setNodeDisc(off uint64, disc uint16) {
	binary.LittleEndian.PutUint16(a.nodes[off:], disc)
}

func (a *arena[V]) setNodeChild(off uint64, side uint8, r Ref) {
	putRef(a.nodes[off+nodeLeftOff+uint64(side)*refBytes:], r)
}

// appendValue stores v in a fresh slot and returns the slot index.
func (a *arena[V]) appendValue(v V) uint32 {
	if uint64(len(a.values)) >= maxValueSlots {
		panic(errors.Wrapf(ErrArenaOverflow, "values arena is full (%d slots)", len(a.values)))
	}
	slot := uint32(len(a.values))
	a.values = append(a.values, v)
	a.live.Add(slot)
	return slot
}

// peekValue returns a pointer to the value in slot, or nil for a tombstone.
func (a *arena[V]) peekValue(slot uint32) *V {
	if !a.live.Contains(slot) {
		return nil
	}
	return &a.values[slot]
}

// takeValue tombstones slot and returns the value it held.
func (a *arena[V]) takeValue(slot uint32) (V, bool) {
	var zero V
	if !a.live.Contains(slot) {
		return zero, false
	}
	v := a.values[slot]
	a.values[slot] = zero
	a.live.Remove(slot)
	return v, true
}

// putValue overwrites slot with v. A tombstoned slot is revived.
func (a *arena[V]) putValue(slot uint32, v V) (V, bool) {
	old := a.values[slot]
	wasLive := a.live.Contains(slot)
	a.values[slot] = v
	if !wasLive {
		var zero V
		old = zero
		a.live.Add(slot)
	}
	return old, wasLive
}

// shrink reallocates every buffer to its exact length.
func (a *arena[V]) shrink() {
	a.keys = clip(a.keys)
	a.nodes = clip(a.nodes)
	a.values = clip(a.values)
	a.live.RunOptimize()
}

func clip[T any](s []T) []T {
	if cap(s) == len(s) {
		return s
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

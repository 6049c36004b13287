package hot

// --------------------------------------------------------------------------
// Tagged references
// --------------------------------------------------------------------------

// Ref is a 48-bit tagged reference into one of the two byte arenas.
//
//   - leaf: bit 47 set, the low 47 bits are an offset into the key-data arena
//   - node: bit 47 clear, the low 47 bits are an offset into the node-data arena
//   - null: all 48 bits set
//
// The upper 16 bits of the uint64 are always zero.
type Ref uint64

const (
	refBits    = 48
	refBytes   = refBits / 8
	refMask    = Ref(1)<<refBits - 1
	leafTag    = Ref(1) << 47
	offsetMask = leafTag - 1

	// nullRef is the reserved all-ones pattern. It carries the leaf tag, so
	// no leaf may ever live at offset offsetMask (see maxArenaOffset).
	nullRef = refMask

	// maxArenaOffset is the exclusive upper bound for any arena end offset.
	// Records therefore start at most at 2^47-2 and never alias nullRef.
	maxArenaOffset = uint64(offsetMask)
)

func leafRef(off uint64) Ref {
	return leafTag | Ref(off)&offsetMask
}

func nodeRef(off uint64) Ref {
	return Ref(off) & offsetMask
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool { return r&refMask == nullRef }

// IsLeaf reports whether r points at a leaf record. Null is not a leaf.
func (r Ref) IsLeaf() bool { return !r.IsNull() && r&leafTag != 0 }

// IsNode reports whether r points at a node record.
func (r Ref) IsNode() bool { return !r.IsNull() && r&leafTag == 0 }

// Offset returns the arena offset stored in r.
func (r Ref) Offset() uint64 { return uint64(r & offsetMask) }

// putRef writes the 6-byte little-endian form of r into b.
func putRef(b []byte, r Ref) {
	_ = b[refBytes-1]
	b[0] = byte(r)
	b[1] = byte(r >> 8)
	b[2] = byte(r >> 16)
	b[3] = byte(r >> 24)
	b[4] = byte(r >> 32)
	b[5] = byte(r >> 40)
}

// getRef decodes a 6-byte little-endian reference from b.
func getRef(b []byte) Ref {
	_ = b[refBytes-1]
	return Ref(b[0]) | Ref(b[1])<<8 | Ref(b[2])<<16 |
		Ref(b[3])<<24 | Ref(b[4])<<32 | Ref(b[5])<<40
}

package hot

import "math/bits"

// --------------------------------------------------------------------------
// Bit discrimination
// --------------------------------------------------------------------------

const (
	// lengthDisc is the first discriminator value that splits on key length
	// instead of on a key bit. A node with discriminator lengthDisc+L sends
	// keys of length <= L left and longer keys right.
	lengthDisc uint16 = 0x8000

	// MaxKeyLen is the longest key that can be inserted. Every data bit of a
	// key of this length has a discriminator below lengthDisc.
	MaxKeyLen = int(lengthDisc) / 8
)

// bitAt returns bit pos of key, where bit 0 is the most significant bit of
// byte 0. Bits past the end of the key are 0.
func bitAt(key []byte, pos int) uint8 {
	i := pos >> 3
	if i >= len(key) {
		return 0
	}
	return (key[i] >> (7 - uint(pos&7))) & 1
}

// firstDiffBit returns the smallest bit position at which a and b disagree
// when the shorter key is padded with zero bytes. ok is false when the keys
// are equal under that padding, which includes keys that differ only by
// trailing zero bytes.
func firstDiffBit(a, b []byte) (pos int, ok bool) {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return i*8 + bits.LeadingZeros8(x^y), true
		}
	}
	return 0, false
}

// splitDisc returns the discriminator of the node that separates a and b.
// Keys that agree on every padded bit are split on their length, so "a" and
// "a\x00" remain distinct. ok is false only for byte-identical keys.
func splitDisc(a, b []byte) (disc uint16, ok bool) {
	if pos, ok := firstDiffBit(a, b); ok {
		return uint16(pos), true
	}
	if len(a) == len(b) {
		return 0, false
	}
	return lengthDisc + uint16(min(len(a), len(b))), true
}

// direction returns the child (0 = left, 1 = right) that key descends into
// at a node with discriminator disc.
func direction(key []byte, disc uint16) uint8 {
	if disc >= lengthDisc {
		if len(key) > int(disc-lengthDisc) {
			return 1
		}
		return 0
	}
	return bitAt(key, int(disc))
}

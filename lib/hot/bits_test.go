package hot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitAt(t *testing.T) {
	key := []byte{0x80, 0x01}

	assert.Equal(t, uint8(1), bitAt(key, 0))
	assert.Equal(t, uint8(0), bitAt(key, 1))
	assert.Equal(t, uint8(0), bitAt(key, 14))
	assert.Equal(t, uint8(1), bitAt(key, 15))

	// past the end
	assert.Equal(t, uint8(0), bitAt(key, 16))
	assert.Equal(t, uint8(0), bitAt(nil, 0))
}

func TestFirstDiffBit(t *testing.T) {
	tests := []struct {
		a, b string
		pos  int
		ok   bool
	}{
		{"a", "b", 6, true}, // 0x61 ^ 0x62 = 0x03
		{"b", "a", 6, true},
		{"ab", "ac", 15, true}, // last bit of the second byte
		{"a", "ab", 9, true},   // 0x62 against padding
		{"", "\x80", 0, true},
		{"abc", "abc", 0, false},
		{"a", "a\x00", 0, false},
		{"", "\x00\x00", 0, false},
	}

	for _, tt := range tests {
		pos, ok := firstDiffBit([]byte(tt.a), []byte(tt.b))
		assert.Equal(t, tt.ok, ok, "%q vs %q", tt.a, tt.b)
		if tt.ok {
			assert.Equal(t, tt.pos, pos, "%q vs %q", tt.a, tt.b)
		}
	}
}

func TestSplitDisc(t *testing.T) {
	disc, ok := splitDisc([]byte("a"), []byte("b"))
	assert.True(t, ok)
	assert.Equal(t, uint16(6), disc)

	_, ok = splitDisc([]byte("same"), []byte("same"))
	assert.False(t, ok)

	// zero suffix: split on length
	disc, ok = splitDisc([]byte("a"), []byte("a\x00\x00"))
	assert.True(t, ok)
	assert.Equal(t, lengthDisc+1, disc)
	assert.Equal(t, uint8(0), direction([]byte("a"), disc))
	assert.Equal(t, uint8(1), direction([]byte("a\x00"), disc))
	assert.Equal(t, uint8(1), direction([]byte("a\x00\x00"), disc))

	disc, ok = splitDisc(nil, []byte{0})
	assert.True(t, ok)
	assert.Equal(t, lengthDisc, disc)
	assert.Equal(t, uint8(0), direction(nil, disc))
	assert.Equal(t, uint8(1), direction([]byte{0}, disc))
}

func TestDataDiscsSortBeforeLengthDiscs(t *testing.T) {
	long := make([]byte, MaxKeyLen)
	other := make([]byte, MaxKeyLen)
	other[MaxKeyLen-1] = 1

	disc, ok := splitDisc(long, other)
	assert.True(t, ok)
	assert.Less(t, disc, lengthDisc)

	disc, ok = splitDisc(long[:MaxKeyLen-1], long)
	assert.True(t, ok)
	assert.Equal(t, lengthDisc+uint16(MaxKeyLen-1), disc)
}

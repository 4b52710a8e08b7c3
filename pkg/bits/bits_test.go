package bits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignExtend(t *testing.T) {
	tests := []struct {
		v        uint32
		width    int
		expected int32
	}{
		{v: 0x0000, width: 13, expected: 0},
		{v: 0x0fff, width: 13, expected: 4095},
		{v: 0x1000, width: 13, expected: -4096},
		{v: 0x1fff, width: 13, expected: -1},
		{v: 0x7, width: 4, expected: 7},
		{v: 0x8, width: 4, expected: -8},
		{v: 0xffffffff, width: 32, expected: -1},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, SignExtend(test.v, test.width), "v=%#x width=%d", test.v, test.width)
	}
}

func TestField(t *testing.T) {
	data := []byte{0b10110011, 0b01011100}
	assert.Equal(t, uint32(0b0011), Field(data, 0, 4))
	assert.Equal(t, uint32(0b1011), Field(data, 4, 4))
	assert.Equal(t, uint32(0b1100_1011), Field(data, 4, 8))
	// reading past the end yields zeros
	assert.Equal(t, uint32(0b0101), Field(data, 12, 8))
}

func TestLittleEndianWindows(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	assert.Equal(t, uint16(0x0201), Uint16(data, 0))
	assert.Equal(t, uint32(0x05040302), Uint32(data, 1))
	assert.Equal(t, uint32(0), Uint32(data, 2))
	assert.Equal(t, uint16(0), Uint16(data, 4))
}

func TestNibbles(t *testing.T) {
	assert.Equal(t, uint8(0x0a), LowNibble(0x5a))
	assert.Equal(t, uint8(0x50), HighNibble(0x5a))
}

func TestBitsString(t *testing.T) {
	b := New([]byte{0xff, 0x30}, 4)
	assert.Equal(t, "11111111 0011", b.String())
	assert.Equal(t, 12, b.Len())
	assert.Equal(t, "ff 30", b.Hex())
	assert.True(t, b.Equal(New([]byte{0xff, 0x30}, 4)))
	assert.False(t, b.Equal(New([]byte{0xff, 0x30}, 0)))
}

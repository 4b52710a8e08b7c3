// Package bits holds the fixed-width bit helpers used to unpack sensor records.
package bits

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Uint16 reads a little-endian uint16 at offset. It returns 0 if the window
// does not fit in data.
func Uint16(data []byte, offset int) uint16 {
	if offset < 0 || offset+2 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint16(data[offset:])
}

// Uint32 reads a little-endian uint32 at offset. It returns 0 if the window
// does not fit in data.
func Uint32(data []byte, offset int) uint32 {
	if offset < 0 || offset+4 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint32(data[offset:])
}

// Field extracts width bits starting at bitOffset, counting from the least
// significant bit of data[0]. Bits outside of data read as zero.
func Field(data []byte, bitOffset, width int) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		bit := bitOffset + i
		byteIdx := bit / 8
		if byteIdx >= len(data) {
			break
		}
		if data[byteIdx]&(1<<(bit%8)) != 0 {
			v |= 1 << i
		}
	}
	return v
}

// SignExtend interprets the low width bits of v as a two's complement number.
func SignExtend(v uint32, width int) int32 {
	shift := 32 - width
	return int32(v<<shift) >> shift
}

// LowNibble returns the low 4 bits of b.
func LowNibble(b byte) uint8 {
	return b & 0x0f
}

// HighNibble returns the high 4 bits of b in place (not shifted down).
func HighNibble(b byte) uint8 {
	return b & 0xf0
}

// Bits is a byte string with an optional number of unused trailing bits. It is
// mostly used for logging raw reports.
type Bits struct {
	missingBits uint8
	bytes       []byte
}

func New(data []byte, missingBits int) Bits {
	return Bits{
		bytes:       data,
		missingBits: uint8(missingBits),
	}
}

func (b Bits) String() string {
	parts := make([]string, 0, len(b.bytes))
	for i, byte := range b.bytes {
		isLast := i == len(b.bytes)-1
		s := fmt.Sprintf("%08b", byte)
		if isLast && b.missingBits > 0 {
			s = s[:8-b.missingBits]
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Hex renders the bytes as space separated hex pairs.
func (b Bits) Hex() string {
	parts := make([]string, len(b.bytes))
	for i, byte := range b.bytes {
		parts[i] = fmt.Sprintf("%02x", byte)
	}
	return strings.Join(parts, " ")
}

func (b Bits) Bytes() []byte {
	return b.bytes
}

func (b Bits) Len() int {
	return len(b.bytes)*8 - int(b.missingBits)
}

func (b Bits) Equal(other Bits) bool {
	if b.missingBits != other.missingBits {
		return false
	}
	if len(b.bytes) != len(other.bytes) {
		return false
	}
	for i, byte := range b.bytes {
		if byte != other.bytes[i] {
			return false
		}
	}
	return true
}

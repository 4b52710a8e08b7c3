// Package trackpad turns raw Magic Trackpad 2 input reports into per-slot
// contact events and click/force-click transitions.
package trackpad

import (
	"fmt"

	"github.com/neuroplastio/neio-trackpad/pkg/bits"
)

const (
	// HeaderSize is the number of leading report bytes (report id and
	// timestamp) that precede the contact records.
	HeaderSize = 4
	// RecordSize is the stride of a single contact record.
	RecordSize = 9
	// MaxOrientation bounds the reported orientation to ±MaxOrientation.
	MaxOrientation = 16384

	orientationShift = 6
	xBits            = 13
)

// record byte offsets
const (
	offTouchMajor  = 4
	offTouchMinor  = 5
	offSize        = 6
	offPressure    = 7
	offOrientation = 8
)

// ContactRecord is one contact decoded from a frame.
type ContactRecord struct {
	ID          uint8 `json:"id" yaml:"id"`
	X           int32 `json:"x" yaml:"x"`
	Y           int32 `json:"y" yaml:"y"`
	TouchMajor  int32 `json:"touchMajor" yaml:"touchMajor"`
	TouchMinor  int32 `json:"touchMinor" yaml:"touchMinor"`
	Size        uint8 `json:"size" yaml:"size"`
	Pressure    uint8 `json:"pressure" yaml:"pressure"`
	Orientation int32 `json:"orientation" yaml:"orientation"`
}

func (c ContactRecord) String() string {
	return fmt.Sprintf("#%d (%d,%d) p=%d", c.ID, c.X, c.Y, c.Pressure)
}

// Frame is the decoded form of one input report.
type Frame struct {
	// Empty is set for reports that carry only a header. The device sends
	// them when every finger has been lifted.
	Empty    bool
	Contacts []ContactRecord
}

// Decode parses buf into a Frame. Reports of HeaderSize bytes or less are
// empty frames. Trailing bytes that do not form a whole record are ignored.
func Decode(buf []byte) Frame {
	if len(buf) <= HeaderSize {
		return Frame{Empty: true}
	}
	n := (len(buf) - HeaderSize) / RecordSize
	frame := Frame{
		Contacts: make([]ContactRecord, 0, n),
	}
	for i := 0; i < n; i++ {
		start := HeaderSize + i*RecordSize
		frame.Contacts = append(frame.Contacts, DecodeRecord(buf[start:start+RecordSize]))
	}
	return frame
}

// DecodeRecord unpacks a single 9-byte record. x and y share bits 13..15 of
// the first two bytes, the windows overlap on purpose.
func DecodeRecord(rec []byte) ContactRecord {
	rec = rec[:RecordSize:RecordSize]
	x := bits.SignExtend(bits.Field(rec, 0, xBits), xBits)
	y := (-(int32(bits.Uint32(rec, 0)) << 6)) >> 19
	return ContactRecord{
		ID:          bits.LowNibble(rec[offOrientation]),
		X:           x,
		Y:           y,
		TouchMajor:  widen(rec[offTouchMajor]),
		TouchMinor:  widen(rec[offTouchMinor]),
		Size:        rec[offSize],
		Pressure:    rec[offPressure],
		Orientation: MaxOrientation - int32(bits.HighNibble(rec[offOrientation]))<<orientationShift,
	}
}

// widen scales a one-byte axis length to the coordinate resolution.
func widen(b byte) int32 {
	return int32(int16(uint16(b))) << 2
}
